package controllers

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
)

// RequestSubmitter принимает запросы на сертификат
type RequestSubmitter interface {
	Submit(name string, csrPEM []byte) (bool, error)
}

// SubmitCertificateRequest сохраняет CSR узла :name из тела запроса (PEM).
// Если автоподпись разрешает узел, сертификат выпускается сразу
func SubmitCertificateRequest(submitter RequestSubmitter) fiber.Handler {
	return func(c fiber.Ctx) error {
		name := c.Params("name")
		body := c.Body()
		if len(body) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Пустое тело запроса",
			})
		}

		signed, err := submitter.Submit(name, body)
		if err != nil {
			slog.Warn("CA: Запрос на сертификат отклонен", "name", name, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Запрос на сертификат отклонен",
				"data":    err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"status": "success",
			"name":   name,
			"signed": signed,
		})
	}
}

package controllers

import (
	"encoding/base64"
	"log/slog"
	"net/url"

	"github.com/addspin/tlsca/ocsp"
	"github.com/gofiber/fiber/v3"
)

// HandleOCSP обрабатывает OCSP-запросы. Тело POST - DER запроса, в GET запрос
// передается в пути в base64. Ответ всегда упакован в JSON-конверт, даже
// неразобранный запрос получает ответ со статусом malformedRequest
func HandleOCSP(responder *ocsp.Responder) fiber.Handler {
	return func(c fiber.Ctx) error {
		var der []byte

		switch c.Method() {
		case fiber.MethodGet:
			path, err := url.PathUnescape(c.Params("*"))
			if err != nil || path == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"status":  "error",
					"message": "Некорректный OCSP-запрос: пустой путь",
				})
			}
			der, err = base64.StdEncoding.DecodeString(path)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"status":  "error",
					"message": "Ошибка декодирования OCSP-запроса",
					"data":    err.Error(),
				})
			}
		case fiber.MethodPost:
			der = c.Body()
			if len(der) == 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"status":  "error",
					"message": "Пустое тело запроса",
				})
			}
		default:
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"status":  "error",
				"message": "Метод не поддерживается",
			})
		}

		envelope, err := ocsp.Handle(responder, der)
		if err != nil {
			slog.Error("OCSP: Ошибка формирования ответа", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Ошибка формирования OCSP-ответа",
				"data":    err.Error(),
			})
		}

		c.Set(fiber.HeaderContentType, ocsp.EnvelopeContentType)
		return c.Send(envelope)
	}
}

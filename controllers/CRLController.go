package controllers

import (
	"crypto/x509"
	"log/slog"

	"github.com/gofiber/fiber/v3"
)

// CRLSource - откуда берется текущий список отзыва
type CRLSource interface {
	CRL() (*x509.RevocationList, error)
}

// GetCRL отдает текущий CRL в DER
func GetCRL(source CRLSource) fiber.Handler {
	return func(c fiber.Ctx) error {
		list, err := source.CRL()
		if err != nil {
			slog.Error("CRL: Ошибка получения CRL", "error", err)
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "CRL не найден",
			})
		}

		c.Set(fiber.HeaderContentType, "application/pkix-crl")
		c.Set(fiber.HeaderContentDisposition, "attachment; filename=revoked.crl")
		return c.Send(list.Raw)
	}
}

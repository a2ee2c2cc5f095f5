package controllers

import (
	"github.com/gofiber/fiber/v3"
)

// CACertificateSource - источник сертификата УЦ в PEM
type CACertificateSource interface {
	CertificatePEM() []byte
}

// GetCACertificate отдает сертификат УЦ, с которого агенты начинают цепочку доверия
func GetCACertificate(source CACertificateSource) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/x-pem-file")
		return c.Send(source.CertificatePEM())
	}
}

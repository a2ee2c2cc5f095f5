package controllers

import (
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/addspin/tlsca/ca"
	"github.com/addspin/tlsca/crypts"
	"github.com/gofiber/fiber/v3"
)

// CertificateLister - то, что нужно странице списка сертификатов
type CertificateLister interface {
	List() ([]string, error)
	Waiting() ([]string, error)
	Verify(name string) error
	Certificate(name string) (*x509.Certificate, error)
	CertificateRequest(name string) (*x509.CertificateRequest, error)
}

// CertRow - строка таблицы на странице /certs
type CertRow struct {
	Name        string
	State       string // signed, request или invalid
	Serial      string
	Expires     string
	Fingerprint string
	AltNames    string
	Error       string
}

// CertsController показывает подписанные сертификаты и ожидающие запросы
func CertsController(lister CertificateLister, digest string) fiber.Handler {
	return func(c fiber.Ctx) error {
		rows, err := certRows(lister, digest)
		if err != nil {
			slog.Error("CA: Ошибка получения списка сертификатов", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Ошибка получения списка сертификатов",
				"data":    err.Error(),
			})
		}

		return c.Render("certs/certs", fiber.Map{
			"Title": "Certificates",
			"Certs": rows,
		})
	}
}

func certRows(lister CertificateLister, digest string) ([]CertRow, error) {
	var rows []CertRow

	signed, err := lister.List()
	if err != nil {
		return nil, err
	}
	for _, name := range signed {
		cert, err := lister.Certificate(name)
		if err != nil {
			return nil, err
		}
		if cert == nil {
			continue
		}
		fingerprint, err := crypts.Fingerprint(cert.Raw, digest)
		if err != nil {
			return nil, err
		}
		row := CertRow{
			Name:        name,
			State:       "signed",
			Serial:      fmt.Sprintf("%X", cert.SerialNumber),
			Expires:     cert.NotAfter.Format(time.DateTime),
			Fingerprint: fingerprint,
			AltNames:    strings.Join(cert.DNSNames, ", "),
		}
		var verr *ca.CertificateVerificationError
		if err := lister.Verify(name); errors.As(err, &verr) {
			row.State = "invalid"
			row.Error = verr.Error()
		} else if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	waiting, err := lister.Waiting()
	if err != nil {
		return nil, err
	}
	for _, name := range waiting {
		csr, err := lister.CertificateRequest(name)
		if err != nil {
			return nil, err
		}
		if csr == nil {
			continue
		}
		fingerprint, err := crypts.Fingerprint(csr.Raw, digest)
		if err != nil {
			return nil, err
		}
		rows = append(rows, CertRow{
			Name:        name,
			State:       "request",
			Fingerprint: fingerprint,
			AltNames:    strings.Join(csr.DNSNames, ", "),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

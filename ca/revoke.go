package ca

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/addspin/tlsca/crl"
	"github.com/addspin/tlsca/ocsp"
)

// DefaultRevocationReason - причина отзыва, если оператор ее не указал
const DefaultRevocationReason = "keyCompromise"

// Revoke отзывает сертификат узла с причиной по умолчанию
func (a *Authority) Revoke(name string) error {
	return a.RevokeWithReason(name, DefaultRevocationReason)
}

// RevokeWithReason отзывает сертификат узла и выпускает новый CRL.
// Серийный номер берется из сертификата, а если его уже нет, из инвентаря
func (a *Authority) RevokeWithReason(name, reason string) error {
	var serial string
	cert, err := a.Certificate(name)
	if err != nil {
		return err
	}
	if cert != nil {
		serial = standardizeSerialNumber(cert.SerialNumber)
	} else {
		serial, err = a.Serial(name)
		if err != nil {
			return err
		}
		if serial == "" {
			return fmt.Errorf("could not find a serial number for %s", name)
		}
	}

	_, err = a.db.Exec(`
		INSERT INTO revoked (serial_number, name, reason_revoke, data_revoke) VALUES (?, ?, ?, ?)
		ON CONFLICT(serial_number) DO NOTHING
	`, serial, name, reason, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("CA: не удалось отозвать сертификат %s: %w", name, err)
	}
	if _, err := crl.Generate(a.db, a.cert, a.key, a.cfg.CRLTTL, a.cfg.CRLPath); err != nil {
		return err
	}

	slog.Info("CA: Сертификат отозван", "name", name, "serial", serial, "reason", reason)
	return nil
}

// Verify проверяет цепочку сертификата узла до УЦ и его отсутствие в CRL.
// Ошибка проверки возвращается как *CertificateVerificationError
func (a *Authority) Verify(name string) error {
	cert, err := a.Certificate(name)
	if err != nil {
		return err
	}
	if cert == nil {
		return fmt.Errorf("could not find a certificate for %s", name)
	}

	roots := x509.NewCertPool()
	roots.AddCert(a.cert)
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		return &CertificateVerificationError{Name: name, msg: err.Error()}
	}

	list, err := a.CRL()
	if err != nil {
		return err
	}
	if revoked(list, cert.SerialNumber) {
		return &CertificateVerificationError{Name: name, msg: "certificate revoked"}
	}
	return nil
}

func revoked(list *x509.RevocationList, serial *big.Int) bool {
	for _, entry := range list.RevokedCertificateEntries {
		if entry.SerialNumber.Cmp(serial) == 0 {
			return true
		}
	}
	return false
}

// ValidRevocationReason сообщает, известна ли причина отзыва
func ValidRevocationReason(reason string) bool {
	if reason == "unspecified" {
		return true
	}
	return ocsp.ParseRevocationReason(reason) != 0
}

// RegenerateCRL выпускает новый CRL с тем же списком отозванных сертификатов
func (a *Authority) RegenerateCRL() error {
	_, err := crl.Generate(a.db, a.cert, a.key, a.cfg.CRLTTL, a.cfg.CRLPath)
	return err
}

// Package crl выпускает список отзыва УЦ по таблице revoked.
package crl

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/addspin/tlsca/models"
	"github.com/addspin/tlsca/ocsp"
	"github.com/jmoiron/sqlx"
)

// Generate выпускает новый CRL со всеми отозванными сертификатами,
// сохраняет его в таблицу crl и возвращает DER.
// Если path не пуст, CRL дополнительно записывается в файл в PEM
func Generate(db *sqlx.DB, caCert *x509.Certificate, caKey crypto.Signer, ttl time.Duration, path string) ([]byte, error) {
	var revoked []models.Revoked
	err := db.Select(&revoked, "SELECT * FROM revoked ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("CRL: не удалось получить отозванные сертификаты: %w", err)
	}

	entries := make([]x509.RevocationListEntry, 0, len(revoked))
	for _, cert := range revoked {
		revocationTime, err := time.Parse(time.RFC3339, cert.DataRevoke)
		if err != nil {
			slog.Warn("CRL: Ошибка парсинга времени отзыва, использую текущее время", "serial", cert.SerialNumber, "error", err)
			revocationTime = time.Now()
		}

		serialNumber, ok := new(big.Int).SetString(cert.SerialNumber, 16)
		if !ok {
			return nil, fmt.Errorf("CRL: некорректный серийный номер %q", cert.SerialNumber)
		}

		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   serialNumber,
			RevocationTime: revocationTime,
			// unspecified (0) в CRL не записывается
			ReasonCode: ocsp.ParseRevocationReason(cert.ReasonRevoke),
		})
	}

	var current models.CRL
	var number int64 = 1
	err = db.Get(&current, "SELECT * FROM crl WHERE id = 1")
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("CRL: не удалось получить информацию о CRL: %w", err)
	default:
		number = current.CrlNumber + 1
	}

	now := time.Now()
	template := &x509.RevocationList{
		RevokedCertificateEntries: entries,
		Number:                    big.NewInt(number),
		ThisUpdate:                now,
		NextUpdate:                now.Add(ttl),
	}
	crlBytes, err := x509.CreateRevocationList(rand.Reader, template, caCert, caKey)
	if err != nil {
		return nil, fmt.Errorf("CRL: не удалось создать CRL: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO crl (id, crl_number, data_crl, this_update, next_update)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			crl_number = excluded.crl_number,
			data_crl = excluded.data_crl,
			this_update = excluded.this_update,
			next_update = excluded.next_update
	`, number, crlBytes, now.Format(time.RFC3339), template.NextUpdate.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("CRL: не удалось сохранить CRL: %w", err)
	}

	if path != "" {
		if err := saveCRLToFile(crlBytes, path); err != nil {
			return nil, fmt.Errorf("CRL: не удалось сохранить CRL в файл: %w", err)
		}
	}

	slog.Info("CRL: Успешно сгенерирован CRL", "number", number, "revoked", len(entries))
	return crlBytes, nil
}

// Load возвращает текущий CRL из базы
func Load(db *sqlx.DB) (*x509.RevocationList, error) {
	var current models.CRL
	if err := db.Get(&current, "SELECT * FROM crl WHERE id = 1"); err != nil {
		return nil, fmt.Errorf("CRL: не удалось получить CRL: %w", err)
	}
	list, err := x509.ParseRevocationList(current.DataCRL)
	if err != nil {
		return nil, fmt.Errorf("CRL: не удалось разобрать CRL: %w", err)
	}
	return list, nil
}

// saveCRLToFile сохраняет CRL в файл
func saveCRLToFile(crlBytes []byte, path string) error {
	// Создаем директорию, если она не существует
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	crlFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer crlFile.Close()

	return pem.Encode(crlFile, &pem.Block{Type: "X509 CRL", Bytes: crlBytes})
}

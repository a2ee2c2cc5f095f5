package ca

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/addspin/tlsca/models"
)

// Serial возвращает серийный номер последнего сертификата, выпущенного для name,
// или пустую строку
func (a *Authority) Serial(name string) (string, error) {
	var serial string
	err := a.db.Get(&serial, "SELECT serial_number FROM inventory WHERE name = ? ORDER BY id DESC LIMIT 1", name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("CA: не удалось прочитать инвентарь: %w", err)
	}
	return serial, nil
}

// RebuildInventory пересобирает инвентарь по подписанным сертификатам
func (a *Authority) RebuildInventory() error {
	var certs []models.Cert
	if err := a.db.Select(&certs, "SELECT * FROM certs ORDER BY id"); err != nil {
		return fmt.Errorf("CA: не удалось получить сертификаты: %w", err)
	}

	tx, err := a.db.Beginx()
	if err != nil {
		return fmt.Errorf("CA: не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM inventory"); err != nil {
		return fmt.Errorf("CA: не удалось очистить инвентарь: %w", err)
	}
	for _, row := range certs {
		cert, err := decodeCertificate(row.CertPEM)
		if err != nil {
			return fmt.Errorf("CA: не удалось разобрать сертификат %s: %w", row.Name, err)
		}
		_, err = tx.Exec(`INSERT INTO inventory (serial_number, name, not_before, not_after) VALUES (?, ?, ?, ?)`,
			standardizeSerialNumber(cert.SerialNumber), row.Name,
			cert.NotBefore.UTC().Format(time.RFC3339), cert.NotAfter.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("CA: не удалось обновить инвентарь: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("CA: не удалось сохранить инвентарь: %w", err)
	}

	slog.Info("CA: Инвентарь перестроен", "certs", len(certs))
	return nil
}

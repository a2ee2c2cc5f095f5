package ca

import (
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/addspin/tlsca/autosign"
	"github.com/addspin/tlsca/models"
)

// List возвращает имена всех подписанных сертификатов
func (a *Authority) List() ([]string, error) {
	var names []string
	if err := a.db.Select(&names, "SELECT name FROM certs ORDER BY name"); err != nil {
		return nil, fmt.Errorf("CA: не удалось получить список сертификатов: %w", err)
	}
	return names, nil
}

// ListHosts возвращает те имена из hosts, для которых есть подписанный сертификат
func (a *Authority) ListHosts(hosts []string) ([]string, error) {
	var names []string
	for _, host := range hosts {
		cert, err := a.Certificate(host)
		if err != nil {
			return nil, err
		}
		if cert != nil {
			names = append(names, host)
		}
	}
	return names, nil
}

// Waiting возвращает имена запросов, ожидающих подписи
func (a *Authority) Waiting() ([]string, error) {
	var names []string
	if err := a.db.Select(&names, "SELECT name FROM csrs ORDER BY name"); err != nil {
		return nil, fmt.Errorf("CA: не удалось получить список запросов: %w", err)
	}
	return names, nil
}

// Certificate возвращает подписанный сертификат узла или nil, если его нет
func (a *Authority) Certificate(name string) (*x509.Certificate, error) {
	var cert models.Cert
	err := a.db.Get(&cert, "SELECT * FROM certs WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CA: не удалось получить сертификат %s: %w", name, err)
	}
	parsed, err := decodeCertificate(cert.CertPEM)
	if err != nil {
		return nil, fmt.Errorf("CA: не удалось разобрать сертификат %s: %w", name, err)
	}
	return parsed, nil
}

// CertificateRequest возвращает ожидающий запрос узла или nil, если его нет
func (a *Authority) CertificateRequest(name string) (*x509.CertificateRequest, error) {
	var csr models.CSR
	err := a.db.Get(&csr, "SELECT * FROM csrs WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CA: не удалось получить запрос %s: %w", name, err)
	}
	parsed, err := decodeCertificateRequest(csr.CSRPEM)
	if err != nil {
		return nil, fmt.Errorf("CA: не удалось разобрать запрос %s: %w", name, err)
	}
	return parsed, nil
}

// Submit сохраняет запрос узла name и применяет к нему автоподпись.
// Возвращает true, если запрос подписан сразу
func (a *Authority) Submit(name string, csrPEM []byte) (bool, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return false, errors.New("не удалось декодировать PEM запроса")
	}
	req, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return false, fmt.Errorf("CA: не удалось разобрать запрос %s: %w", name, err)
	}
	if err := req.CheckSignature(); err != nil {
		return false, fmt.Errorf("CA: неверная подпись запроса %s: %w", name, err)
	}
	if req.Subject.CommonName != name {
		return false, fmt.Errorf("CSR subject common name %q does not match expected certname %q", req.Subject.CommonName, name)
	}

	existing, err := a.Certificate(name)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, fmt.Errorf("%s already has a signed certificate; ignoring certificate request", name)
	}

	_, err = a.db.Exec(`
		INSERT INTO csrs (name, csr_pem, create_time) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET csr_pem = excluded.csr_pem, create_time = excluded.create_time
	`, name, string(pem.EncodeToMemory(block)), time.Now().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("CA: не удалось сохранить запрос %s: %w", name, err)
	}
	slog.Info("CA: Получен запрос на сертификат", "name", name)

	return a.autosign(autosign.CSR{Name: name, Request: req})
}

// AutosignPending применяет автоподпись ко всем ожидающим запросам
// и возвращает имена подписанных
func (a *Authority) AutosignPending() ([]string, error) {
	if a.cfg.Autosign == nil {
		return nil, nil
	}
	names, err := a.Waiting()
	if err != nil {
		return nil, err
	}
	var signed []string
	for _, name := range names {
		req, err := a.CertificateRequest(name)
		if err != nil {
			return signed, err
		}
		ok, err := a.autosign(autosign.CSR{Name: name, Request: req})
		if err != nil {
			return signed, err
		}
		if ok {
			signed = append(signed, name)
		}
	}
	return signed, nil
}

func (a *Authority) autosign(csr autosign.CSR) (bool, error) {
	if a.cfg.Autosign == nil {
		return false, nil
	}
	allowed, err := a.cfg.Autosign.Allowed(csr)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}
	if err := a.Sign(csr.Name, false); err != nil {
		return false, err
	}
	return true, nil
}

// Destroy удаляет сертификат, запрос и ключ узла
func (a *Authority) Destroy(name string) error {
	removed := int64(0)
	for _, table := range []string{"certs", "csrs", "host_keys"} {
		result, err := a.db.Exec("DELETE FROM "+table+" WHERE name = ?", name)
		if err != nil {
			return fmt.Errorf("CA: не удалось удалить %s из %s: %w", name, table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("CA: не удалось удалить %s из %s: %w", name, table, err)
		}
		removed += n
	}
	if removed == 0 {
		slog.Info("CA: Нечего удалять", "name", name)
		return nil
	}
	slog.Info("CA: Удалены данные узла", "name", name)
	return nil
}

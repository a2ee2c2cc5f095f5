package ca

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/addspin/tlsca/crypts"
)

// oidSubjectAltName - единственное расширение, разрешенное в запросе
var oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}

// Sign подписывает ожидающий запрос узла. Альтернативные имена в запросе
// допускаются только при allowDNSAltNames; для имени самого УЦ они разрешены всегда
func (a *Authority) Sign(name string, allowDNSAltNames bool) error {
	if strings.EqualFold(name, a.cfg.Name) {
		allowDNSAltNames = true
	}
	csr, err := a.CertificateRequest(name)
	if err != nil {
		return err
	}
	if csr == nil {
		return fmt.Errorf("could not find certificate request for %s", name)
	}
	if err := checkSigningPolicies(name, csr, allowDNSAltNames); err != nil {
		return err
	}

	tx, err := a.db.Beginx()
	if err != nil {
		return fmt.Errorf("CA: не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	serial, err := a.nextSerial(tx)
	if err != nil {
		return err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    now.Add(-24 * time.Hour),
		NotAfter:     now.Add(a.cfg.CertTTL),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     csr.DNSNames,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, a.cert, csr.PublicKey, a.key)
	if err != nil {
		return fmt.Errorf("CA: не удалось подписать сертификат %s: %w", name, err)
	}

	serialHex := standardizeSerialNumber(serial)
	// запись в инвентарь раньше сертификата, чтобы перестроение инвентаря
	// не продублировало ее
	_, err = tx.Exec(`INSERT INTO inventory (serial_number, name, not_before, not_after) VALUES (?, ?, ?, ?)`,
		serialHex, name, template.NotBefore.UTC().Format(time.RFC3339), template.NotAfter.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("CA: не удалось обновить инвентарь: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO certs (name, serial_number, cert_pem, create_time, expire_time) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			serial_number = excluded.serial_number,
			cert_pem = excluded.cert_pem,
			create_time = excluded.create_time,
			expire_time = excluded.expire_time
	`, name, serialHex, string(encodeCertificate(der)), now.Format(time.RFC3339), template.NotAfter.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("CA: не удалось сохранить сертификат %s: %w", name, err)
	}
	if _, err := tx.Exec("DELETE FROM csrs WHERE name = ?", name); err != nil {
		return fmt.Errorf("CA: не удалось удалить запрос %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("CA: не удалось сохранить сертификат %s: %w", name, err)
	}

	slog.Info("CA: Подписан запрос на сертификат", "name", name, "serial", serialHex)
	return nil
}

// checkSigningPolicies проверяет запрос на соответствие правилам УЦ
func checkSigningPolicies(name string, csr *x509.CertificateRequest, allowDNSAltNames bool) error {
	if err := csr.CheckSignature(); err != nil {
		return &CertificateSigningError{Name: name, msg: fmt.Sprintf("CSR '%s' has an invalid signature: %v", name, err)}
	}

	var unknown []string
	for _, ext := range csr.Extensions {
		if !ext.Id.Equal(oidSubjectAltName) {
			unknown = append(unknown, ext.Id.String())
		}
	}
	if len(unknown) > 0 {
		return &CertificateSigningError{Name: name, msg: "CSR has request extensions that are not permitted: " + strings.Join(unknown, ", ")}
	}

	if subject := csr.Subject.String(); strings.Contains(subject, "*") {
		return &CertificateSigningError{Name: name, msg: "CSR subject contains a wildcard, which is not allowed: " + subject}
	}

	altNames := subjectAltNames(csr)
	if len(altNames) == 0 {
		return nil
	}
	joined := strings.Join(altNames, ", ")
	if !allowDNSAltNames {
		return &CertificateSigningError{Name: name, msg: fmt.Sprintf(
			"CSR '%s' contains subject alternative names (%s), which are disallowed. Use `tlsca ca --allow-dns-alt-names sign %s` to sign this request.",
			name, joined, name)}
	}
	if len(csr.DNSNames) != len(altNames) {
		return &CertificateSigningError{Name: name, msg: fmt.Sprintf(
			"CSR '%s' contains a subjectAltName outside the DNS label space: %s.  To continue, this CSR needs to be cleaned.", name, joined)}
	}
	for _, dnsName := range csr.DNSNames {
		if strings.Contains(dnsName, "*") {
			return &CertificateSigningError{Name: name, msg: fmt.Sprintf(
				"CSR '%s' subjectAltName contains a wildcard, which is not allowed: %s  To continue, this CSR needs to be cleaned.", name, joined)}
		}
	}
	return nil
}

// subjectAltNames перечисляет альтернативные имена в виде "DNS:host"
func subjectAltNames(csr *x509.CertificateRequest) []string {
	var names []string
	for _, dnsName := range csr.DNSNames {
		names = append(names, "DNS:"+dnsName)
	}
	for _, ip := range csr.IPAddresses {
		names = append(names, "IP Address:"+ip.String())
	}
	for _, email := range csr.EmailAddresses {
		names = append(names, "email:"+email)
	}
	for _, uri := range csr.URIs {
		names = append(names, "URI:"+uri.String())
	}
	return names
}

// Generate создает ключ и запрос для узла и сразу подписывает его.
// Ключ хранится в таблице host_keys в зашифрованном виде
func (a *Authority) Generate(name string, dnsAltNames []string) error {
	existing, err := a.Certificate(name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("a certificate already exists for %s", name)
	}

	key, err := crypts.GenerateKey(a.cfg.KeyAlgorithm, a.cfg.KeySize)
	if err != nil {
		return err
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: name},
		DNSNames: dnsAltNames,
	}, key)
	if err != nil {
		return fmt.Errorf("CA: не удалось создать запрос для %s: %w", name, err)
	}

	sealed, salt, err := a.sealKey(key)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(`
		INSERT INTO host_keys (name, key_sealed, key_salt) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET key_sealed = excluded.key_sealed, key_salt = excluded.key_salt
	`, name, sealed, salt)
	if err != nil {
		return fmt.Errorf("CA: не удалось сохранить ключ %s: %w", name, err)
	}
	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
	_, err = a.db.Exec(`
		INSERT INTO csrs (name, csr_pem, create_time) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET csr_pem = excluded.csr_pem, create_time = excluded.create_time
	`, name, string(csrPEM), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("CA: не удалось сохранить запрос %s: %w", name, err)
	}

	return a.Sign(name, len(dnsAltNames) > 0)
}

package ca

import (
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"

	"github.com/addspin/tlsca/models"
	"software.sslmate.com/src/go-pkcs12"
)

// ExportPKCS12 упаковывает сертификат узла, его ключ и сертификат УЦ в PKCS#12.
// Доступно только для узлов, ключ которых создан командой generate
func (a *Authority) ExportPKCS12(name, password string) ([]byte, error) {
	cert, err := a.Certificate(name)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("could not find a certificate for %s", name)
	}

	var hostKey models.HostKey
	err = a.db.Get(&hostKey, "SELECT * FROM host_keys WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("the private key of %s is not held by the CA", name)
	}
	if err != nil {
		return nil, fmt.Errorf("CA: не удалось получить ключ %s: %w", name, err)
	}
	key, err := a.unsealKey(hostKey.KeySealed, hostKey.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("CA: не удалось расшифровать ключ %s: %w", name, err)
	}

	data, err := pkcs12.Modern.Encode(key, cert, []*x509.Certificate{a.cert}, password)
	if err != nil {
		return nil, fmt.Errorf("CA: не удалось создать PKCS#12 для %s: %w", name, err)
	}
	return data, nil
}

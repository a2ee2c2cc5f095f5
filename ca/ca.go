// Package ca - удостоверяющий центр поверх SQLite: собственное удостоверение,
// запросы на сертификаты, подписанные сертификаты, отзыв и CRL.
package ca

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/addspin/tlsca/autosign"
	"github.com/addspin/tlsca/crl"
	"github.com/addspin/tlsca/crypts"
	"github.com/addspin/tlsca/models"
	"github.com/jmoiron/sqlx"
)

const saltSize = 16

// Config - параметры УЦ
type Config struct {
	Name         string        // CommonName сертификата УЦ, он же certname сервера
	Passphrase   string        // пароль, из которого выводится ключ шифрования закрытых ключей
	TTL          time.Duration // срок действия сертификата УЦ
	CertTTL      time.Duration // срок действия выпускаемых сертификатов
	KeyAlgorithm string        // rsa, ecdsa или ed25519
	KeySize      int
	CRLTTL       time.Duration
	CRLPath      string          // файл для копии CRL в PEM, пустая строка - не сохранять
	Autosign     autosign.Policy // nil - автоподпись выключена
}

// Authority - удостоверяющий центр
type Authority struct {
	db   *sqlx.DB
	cfg  Config
	cert *x509.Certificate
	key  crypto.Signer
}

// CertificateVerificationError - сертификат узла не прошел проверку цепочки или CRL
type CertificateVerificationError struct {
	Name string
	msg  string
}

func (e *CertificateVerificationError) Error() string { return e.msg }

// CertificateSigningError - запрос нарушает правила подписи УЦ
type CertificateSigningError struct {
	Name string
	msg  string
}

func (e *CertificateSigningError) Error() string { return e.msg }

// Open создает таблицы, загружает удостоверение УЦ или выпускает новое
// самоподписанное вместе с первым CRL
func Open(db *sqlx.DB, cfg Config) (*Authority, error) {
	if cfg.Passphrase == "" {
		return nil, errors.New("CA: passphrase is required to seal private keys")
	}
	for _, schema := range models.Schemas {
		if _, err := db.Exec(schema); err != nil {
			return nil, fmt.Errorf("CA: не удалось создать таблицу: %w", err)
		}
	}

	a := &Authority{db: db, cfg: cfg}
	var identity models.CAIdentity
	err := db.Get(&identity, "SELECT * FROM ca_identity WHERE id = 1")
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := a.generateIdentity(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("CA: не удалось получить сертификат УЦ: %w", err)
	default:
		if err := a.loadIdentity(identity); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Authority) loadIdentity(identity models.CAIdentity) error {
	cert, err := decodeCertificate(identity.CertPEM)
	if err != nil {
		return fmt.Errorf("CA: не удалось разобрать сертификат УЦ: %w", err)
	}
	key, err := a.unsealKey(identity.KeySealed, identity.KeySalt)
	if err != nil {
		return fmt.Errorf("CA: не удалось расшифровать ключ УЦ: %w", err)
	}
	a.cert, a.key = cert, key
	return nil
}

func (a *Authority) generateIdentity() error {
	key, err := crypts.GenerateKey(a.cfg.KeyAlgorithm, a.cfg.KeySize)
	if err != nil {
		return err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: a.cfg.Name},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.Add(a.cfg.TTL),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return fmt.Errorf("CA: не удалось создать сертификат УЦ: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return err
	}

	sealed, salt, err := a.sealKey(key)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(`INSERT INTO ca_identity (id, cert_pem, key_sealed, key_salt, next_serial, create_time) VALUES (1, ?, ?, ?, 2, ?)`,
		string(encodeCertificate(der)), sealed, salt, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("CA: не удалось сохранить сертификат УЦ: %w", err)
	}
	a.cert, a.key = cert, key

	if _, err := crl.Generate(a.db, a.cert, a.key, a.cfg.CRLTTL, a.cfg.CRLPath); err != nil {
		return err
	}
	slog.Info("CA: Создан новый удостоверяющий центр", "name", a.cfg.Name)
	return nil
}

// Identity возвращает сертификат и ключ УЦ
func (a *Authority) Identity() (*x509.Certificate, crypto.Signer, error) {
	return a.cert, a.key, nil
}

// CRL возвращает текущий список отзыва
func (a *Authority) CRL() (*x509.RevocationList, error) {
	return crl.Load(a.db)
}

// CertificatePEM возвращает сертификат УЦ в PEM
func (a *Authority) CertificatePEM() []byte {
	return encodeCertificate(a.cert.Raw)
}

// sealKey шифрует ключ для хранения в базе. У каждого ключа своя соль
func (a *Authority) sealKey(key crypto.Signer) (sealed, salt []byte, err error) {
	keyPEM, err := crypts.EncodePrivateKeyToPEM(key)
	if err != nil {
		return nil, nil, err
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	aes := crypts.Aes{}
	sealed, err = aes.Encrypt(keyPEM, crypts.DeriveKey(a.cfg.Passphrase, salt))
	if err != nil {
		return nil, nil, fmt.Errorf("CA: не удалось зашифровать ключ: %w", err)
	}
	return sealed, salt, nil
}

func (a *Authority) unsealKey(sealed, salt []byte) (crypto.Signer, error) {
	aes := crypts.Aes{}
	keyPEM, err := aes.Decrypt(sealed, crypts.DeriveKey(a.cfg.Passphrase, salt))
	if err != nil {
		return nil, err
	}
	return crypts.DecodePrivateKeyFromPEM(keyPEM)
}

// nextSerial выдает следующий серийный номер; номер считается использованным сразу
func (a *Authority) nextSerial(tx *sqlx.Tx) (*big.Int, error) {
	var serial int64
	if err := tx.Get(&serial, "SELECT next_serial FROM ca_identity WHERE id = 1"); err != nil {
		return nil, fmt.Errorf("CA: не удалось получить серийный номер: %w", err)
	}
	if _, err := tx.Exec("UPDATE ca_identity SET next_serial = next_serial + 1 WHERE id = 1"); err != nil {
		return nil, fmt.Errorf("CA: не удалось обновить серийный номер: %w", err)
	}
	return big.NewInt(serial), nil
}

func encodeCertificate(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func decodeCertificate(data string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("не удалось декодировать PEM сертификата")
	}
	return x509.ParseCertificate(block.Bytes)
}

func decodeCertificateRequest(data string) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("не удалось декодировать PEM запроса")
	}
	return x509.ParseCertificateRequest(block.Bytes)
}

// standardizeSerialNumber возвращает серийный номер в стандартном формате (hex без ведущих нулей в верхнем регистре)
func standardizeSerialNumber(serialNumber *big.Int) string {
	return fmt.Sprintf("%X", serialNumber)
}

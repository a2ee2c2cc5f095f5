package crl

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/addspin/tlsca/models"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "tlsca.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, schema := range models.Schemas {
		_, err := db.Exec(schema)
		require.NoError(t, err)
	}
	return db
}

func newTestCA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func TestGenerate(t *testing.T) {
	db := openTestDB(t)
	caCert, caKey := newTestCA(t)
	revokedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := db.Exec(`INSERT INTO revoked (serial_number, name, reason_revoke, data_revoke) VALUES (?, ?, ?, ?)`,
		"2A", "agent1", "keyCompromise", revokedAt.Format(time.RFC3339))
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO revoked (serial_number, name, reason_revoke, data_revoke) VALUES (?, ?, ?, ?)`,
		"2B", "agent2", "", revokedAt.Format(time.RFC3339))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "crl", "revoked.crl")
	_, err = Generate(db, caCert, caKey, time.Hour, path)
	require.NoError(t, err)

	list, err := Load(db)
	require.NoError(t, err)
	require.NoError(t, list.CheckSignatureFrom(caCert))
	assert.Equal(t, int64(1), list.Number.Int64())
	require.Len(t, list.RevokedCertificateEntries, 2)

	first := list.RevokedCertificateEntries[0]
	assert.Equal(t, int64(42), first.SerialNumber.Int64())
	assert.Equal(t, ocsp.KeyCompromise, first.ReasonCode)
	assert.True(t, revokedAt.Equal(first.RevocationTime))
	assert.Equal(t, ocsp.Unspecified, list.RevokedCertificateEntries[1].ReasonCode)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	assert.Equal(t, "X509 CRL", block.Type)

	_, err = Generate(db, caCert, caKey, time.Hour, "")
	require.NoError(t, err)
	list, err = Load(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Number.Int64())
}

func TestLoadWithoutCRL(t *testing.T) {
	_, err := Load(openTestDB(t))
	assert.Error(t, err)
}

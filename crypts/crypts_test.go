package crypts

import (
	"crypto"
	"crypto/sha256"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAesRoundTrip(t *testing.T) {
	key := DeriveKey("secret", []byte("salt-salt-salt-1"))
	require.Len(t, key, KeySize)

	aes := Aes{}
	sealed, err := aes.Encrypt([]byte("private key"), key)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "private key")

	plain, err := aes.Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "private key", string(plain))

	_, err = aes.Decrypt(sealed, DeriveKey("wrong", []byte("salt-salt-salt-1")))
	assert.Error(t, err)
	_, err = aes.Decrypt([]byte{1, 2}, key)
	assert.Error(t, err)
}

func TestGenerateKeyPEMRoundTrip(t *testing.T) {
	for _, algorithm := range []string{"rsa", "ecdsa", "ed25519"} {
		t.Run(algorithm, func(t *testing.T) {
			bits := 0
			if algorithm == "rsa" {
				bits = 1024
			}
			key, err := GenerateKey(algorithm, bits)
			require.NoError(t, err)

			encoded, err := EncodePrivateKeyToPEM(key)
			require.NoError(t, err)
			decoded, err := DecodePrivateKeyFromPEM(encoded)
			require.NoError(t, err)
			pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
			require.True(t, ok)
			assert.True(t, pub.Equal(decoded.Public()))
		})
	}

	_, err := GenerateKey("dsa", 0)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	data := []byte("certificate")
	sum := sha256.Sum256(data)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}

	got, err := Fingerprint(data, "sha256")
	require.NoError(t, err)
	assert.Equal(t, "(SHA256) "+strings.Join(parts, ":"), got)

	got, err = Fingerprint(data, "SHA-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "(SHA1) "))

	_, err = Fingerprint(data, "crc32")
	assert.Error(t, err)
}

package crypts

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// GenerateKey создает ключевую пару. algorithm: rsa, ecdsa или ed25519;
// bits - длина RSA-ключа или размер кривой ECDSA
func GenerateKey(algorithm string, bits int) (crypto.Signer, error) {
	switch strings.ToLower(algorithm) {
	case "", "rsa":
		if bits == 0 {
			bits = 2048
		}
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, fmt.Errorf("не удалось сгенерировать RSA ключевую пару: %w", err)
		}
		return key, nil
	case "ecdsa":
		var curve elliptic.Curve
		switch bits {
		case 384:
			curve = elliptic.P384()
		case 521:
			curve = elliptic.P521()
		default:
			curve = elliptic.P256() // По умолчанию P-256
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ECDSA key pair: %w", err)
		}
		return key, nil
	case "ed25519":
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ED25519 key pair: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("неизвестный алгоритм ключа: %s", algorithm)
}

// EncodePrivateKeyToPEM кодирует приватный ключ в PEM (PKCS#8)
func EncodePrivateKeyToPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// DecodePrivateKeyFromPEM разбирает ключ, закодированный EncodePrivateKeyToPEM
func DecodePrivateKeyFromPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("не удалось декодировать PEM приватного ключа")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("не удалось разобрать приватный ключ: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("ключ типа %T не умеет подписывать", key)
	}
	return signer, nil
}

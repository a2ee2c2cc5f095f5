package crypts

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize    = 32     // Размер ключа в байтах (AES-256)
	Iterations = 100000 // Количество итераций PBKDF2
)

// DeriveKey получает ключ шифрования из пароля УЦ и соли
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, KeySize, sha256.New)
}

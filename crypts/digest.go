package crypts

import (
	"crypto"
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"strings"
)

var digestAlgorithms = map[string]crypto.Hash{
	"MD5":    crypto.MD5,
	"SHA1":   crypto.SHA1,
	"SHA224": crypto.SHA224,
	"SHA256": crypto.SHA256,
	"SHA384": crypto.SHA384,
	"SHA512": crypto.SHA512,
}

// Fingerprint возвращает отпечаток DER-данных в виде "(SHA256) AB:CD:..."
func Fingerprint(der []byte, algorithm string) (string, error) {
	name := strings.ToUpper(strings.ReplaceAll(algorithm, "-", ""))
	if name == "" {
		name = "SHA256"
	}
	hash, ok := digestAlgorithms[name]
	if !ok {
		return "", fmt.Errorf("неизвестный алгоритм отпечатка: %s", algorithm)
	}

	h := hash.New()
	h.Write(der)
	sum := h.Sum(nil)

	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return fmt.Sprintf("(%s) %s", name, strings.Join(parts, ":")), nil
}

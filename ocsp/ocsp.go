// Package ocsp реализует OCSP-обмен удостоверяющего центра: запросы с nonce,
// респондер поверх CRL, проверку ответов и кеш результатов.
//
// Формат на проводе соответствует RFC 6960. Пакет golang.org/x/crypto/ocsp
// не умеет ни nonce, ни запросы на несколько сертификатов, поэтому ASN.1
// структуры описаны здесь, а из x/crypto берутся коды статусов и причин отзыва.
package ocsp

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/ocsp"
)

var (
	idPKIXOCSPBasic = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}
	idPKIXOCSPNonce = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}

	oidSignatureSHA1WithRSA     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	oidSignatureSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSignatureSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSignatureSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidSignatureECDSAWithSHA1   = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 1}
	oidSignatureECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidSignatureECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidSignatureECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	oidSignatureEd25519         = asn1.ObjectIdentifier{1, 3, 101, 112}
)

var hashOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   {1, 3, 14, 3, 2, 26},
	crypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

// signatureAlgorithms - алгоритмы подписи, которые принимаются от клиентов
// и других респондеров. Сами мы подписываем по signingParams
var signatureAlgorithms = []struct {
	algo x509.SignatureAlgorithm
	oid  asn1.ObjectIdentifier
}{
	{x509.SHA1WithRSA, oidSignatureSHA1WithRSA},
	{x509.SHA256WithRSA, oidSignatureSHA256WithRSA},
	{x509.SHA384WithRSA, oidSignatureSHA384WithRSA},
	{x509.SHA512WithRSA, oidSignatureSHA512WithRSA},
	{x509.ECDSAWithSHA1, oidSignatureECDSAWithSHA1},
	{x509.ECDSAWithSHA256, oidSignatureECDSAWithSHA256},
	{x509.ECDSAWithSHA384, oidSignatureECDSAWithSHA384},
	{x509.ECDSAWithSHA512, oidSignatureECDSAWithSHA512},
	{x509.PureEd25519, oidSignatureEd25519},
}

// DefaultHash - алгоритм хеширования издателя в CertID.
// SHA-1 используется по умолчанию в OpenSSL и NGINX
const DefaultHash = crypto.SHA1

const nonceLength = 16

// CertificateID определяет сертификат по хешам издателя и серийному номеру
type CertificateID struct {
	HashAlgorithm  crypto.Hash
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// NewCertificateID строит CertID проверяемого сертификата, выпущенного issuer
func NewCertificateID(cert, issuer *x509.Certificate, hash crypto.Hash) (CertificateID, error) {
	if cert == nil || issuer == nil {
		return CertificateID{}, errors.New("ocsp: certificate and issuer are required")
	}
	nameHash, keyHash, err := issuerHashes(issuer, hash)
	if err != nil {
		return CertificateID{}, err
	}
	return CertificateID{
		HashAlgorithm:  hash,
		IssuerNameHash: nameHash,
		IssuerKeyHash:  keyHash,
		SerialNumber:   new(big.Int).Set(cert.SerialNumber),
	}, nil
}

// SameIssuer сообщает, выпущен ли сертификат с этим CertID данным издателем
func (id CertificateID) SameIssuer(issuer *x509.Certificate) bool {
	if issuer == nil {
		return false
	}
	nameHash, keyHash, err := issuerHashes(issuer, id.HashAlgorithm)
	if err != nil {
		return false
	}
	return bytes.Equal(nameHash, id.IssuerNameHash) && bytes.Equal(keyHash, id.IssuerKeyHash)
}

// Equal сравнивает два CertID целиком
func (id CertificateID) Equal(other CertificateID) bool {
	return id.HashAlgorithm == other.HashAlgorithm &&
		bytes.Equal(id.IssuerNameHash, other.IssuerNameHash) &&
		bytes.Equal(id.IssuerKeyHash, other.IssuerKeyHash) &&
		id.SerialNumber != nil && other.SerialNumber != nil &&
		id.SerialNumber.Cmp(other.SerialNumber) == 0
}

func (id CertificateID) String() string {
	if id.SerialNumber == nil {
		return "<nil>"
	}
	return standardizeSerialNumber(id.SerialNumber)
}

func (id CertificateID) toASN1() (certID, error) {
	oid, ok := hashOIDs[id.HashAlgorithm]
	if !ok {
		return certID{}, fmt.Errorf("ocsp: unsupported issuer hash %v", id.HashAlgorithm)
	}
	return certID{
		HashAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm:  oid,
			Parameters: asn1.RawValue{Tag: asn1.TagNull},
		},
		NameHash:      id.IssuerNameHash,
		IssuerKeyHash: id.IssuerKeyHash,
		SerialNumber:  id.SerialNumber,
	}, nil
}

func certificateIDFromASN1(c certID) (CertificateID, error) {
	hash := hashFromOID(c.HashAlgorithm.Algorithm)
	if hash == 0 {
		return CertificateID{}, fmt.Errorf("ocsp: unknown issuer hash algorithm %v", c.HashAlgorithm.Algorithm)
	}
	if c.SerialNumber == nil {
		return CertificateID{}, errors.New("ocsp: certificate id without serial number")
	}
	return CertificateID{
		HashAlgorithm:  hash,
		IssuerNameHash: c.NameHash,
		IssuerKeyHash:  c.IssuerKeyHash,
		SerialNumber:   c.SerialNumber,
	}, nil
}

// issuerHashes вычисляет хеши имени и ключа издателя
func issuerHashes(issuer *x509.Certificate, hash crypto.Hash) ([]byte, []byte, error) {
	if _, ok := hashOIDs[hash]; !ok || !hash.Available() {
		return nil, nil, fmt.Errorf("ocsp: unsupported issuer hash %v", hash)
	}
	var publicKeyInfo struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(issuer.RawSubjectPublicKeyInfo, &publicKeyInfo); err != nil {
		return nil, nil, fmt.Errorf("ocsp: parse issuer public key: %w", err)
	}

	h := hash.New()
	h.Write(issuer.RawSubject)
	nameHash := h.Sum(nil)

	h.Reset()
	h.Write(publicKeyInfo.PublicKey.RightAlign())
	keyHash := h.Sum(nil)

	return nameHash, keyHash, nil
}

func hashFromOID(oid asn1.ObjectIdentifier) crypto.Hash {
	for hash, known := range hashOIDs {
		if known.Equal(oid) {
			return hash
		}
	}
	return 0
}

// NewNonce генерирует случайный nonce для одного обмена
func NewNonce() ([]byte, error) {
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("ocsp: generate nonce: %w", err)
	}
	return nonce, nil
}

func nonceExtension(nonce []byte) (pkix.Extension, error) {
	value, err := asn1.Marshal(nonce)
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: idPKIXOCSPNonce, Value: value}, nil
}

// nonceFromExtensions достает nonce и само расширение. Старые клиенты кладут
// nonce без OCTET STRING
func nonceFromExtensions(exts []pkix.Extension) ([]byte, *pkix.Extension) {
	for i, ext := range exts {
		if !ext.Id.Equal(idPKIXOCSPNonce) {
			continue
		}
		var nonce []byte
		if rest, err := asn1.Unmarshal(ext.Value, &nonce); err == nil && len(rest) == 0 {
			return nonce, &exts[i]
		}
		return ext.Value, &exts[i]
	}
	return nil, nil
}

// RevocationReason переводит код причины из CRL в код причины OCSP.
// Оба перечисления взяты из RFC 5280, значение 7 не используется
func RevocationReason(crlReasonCode int) int {
	switch crlReasonCode {
	case ocsp.KeyCompromise, ocsp.CACompromise, ocsp.AffiliationChanged,
		ocsp.Superseded, ocsp.CessationOfOperation, ocsp.CertificateHold,
		ocsp.RemoveFromCRL, ocsp.PrivilegeWithdrawn, ocsp.AACompromise:
		return crlReasonCode
	default:
		return ocsp.Unspecified
	}
}

// ParseRevocationReason преобразует текстовую причину отзыва в числовой код
func ParseRevocationReason(reason string) int {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "keycompromise", "key_compromise":
		return ocsp.KeyCompromise
	case "cacompromise", "ca_compromise":
		return ocsp.CACompromise
	case "affiliationchanged", "affiliation_changed":
		return ocsp.AffiliationChanged
	case "superseded":
		return ocsp.Superseded
	case "cessationofoperation", "cessation_of_operation":
		return ocsp.CessationOfOperation
	case "certificatehold", "certificate_hold":
		return ocsp.CertificateHold
	case "removefromcrl", "remove_from_crl":
		return ocsp.RemoveFromCRL
	case "privilegewithdrawn", "privilege_withdrawn":
		return ocsp.PrivilegeWithdrawn
	case "aacompromise", "aa_compromise":
		return ocsp.AACompromise
	default:
		return ocsp.Unspecified
	}
}

// signingParams подбирает хеш и алгоритм подписи под тип ключа
func signingParams(pub crypto.PublicKey) (crypto.Hash, pkix.AlgorithmIdentifier, error) {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		return crypto.SHA256, pkix.AlgorithmIdentifier{
			Algorithm:  oidSignatureSHA256WithRSA,
			Parameters: asn1.RawValue{Tag: asn1.TagNull},
		}, nil
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P224(), elliptic.P256():
			return crypto.SHA256, pkix.AlgorithmIdentifier{Algorithm: oidSignatureECDSAWithSHA256}, nil
		case elliptic.P384():
			return crypto.SHA384, pkix.AlgorithmIdentifier{Algorithm: oidSignatureECDSAWithSHA384}, nil
		case elliptic.P521():
			return crypto.SHA512, pkix.AlgorithmIdentifier{Algorithm: oidSignatureECDSAWithSHA512}, nil
		}
		return 0, pkix.AlgorithmIdentifier{}, errors.New("ocsp: unknown elliptic curve")
	case ed25519.PublicKey:
		return 0, pkix.AlgorithmIdentifier{Algorithm: oidSignatureEd25519}, nil
	}
	return 0, pkix.AlgorithmIdentifier{}, fmt.Errorf("ocsp: unsupported signing key %T", pub)
}

func signatureAlgorithmFromOID(oid asn1.ObjectIdentifier) x509.SignatureAlgorithm {
	for _, details := range signatureAlgorithms {
		if details.oid.Equal(oid) {
			return details.algo
		}
	}
	return x509.UnknownSignatureAlgorithm
}

// sign подписывает tbs ключом signer
func sign(signer crypto.Signer, tbs []byte) (pkix.AlgorithmIdentifier, asn1.BitString, error) {
	hashFunc, algo, err := signingParams(signer.Public())
	if err != nil {
		return pkix.AlgorithmIdentifier{}, asn1.BitString{}, err
	}

	digest := tbs
	if hashFunc != 0 {
		h := hashFunc.New()
		h.Write(tbs)
		digest = h.Sum(nil)
	}
	signature, err := signer.Sign(rand.Reader, digest, hashFunc)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, asn1.BitString{}, fmt.Errorf("ocsp: sign: %w", err)
	}
	return algo, asn1.BitString{Bytes: signature, BitLength: 8 * len(signature)}, nil
}

// standardizeSerialNumber возвращает серийный номер в стандартном формате (hex без ведущих нулей в верхнем регистре)
func standardizeSerialNumber(serialNumber *big.Int) string {
	return strings.ToUpper(serialNumber.Text(16))
}

// generalizedTime обрезает время до секунд, как его хранит GeneralizedTime
func generalizedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

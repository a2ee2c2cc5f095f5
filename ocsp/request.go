package ocsp

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
)

// Request - OCSP-запрос. Существует только в DER-форме:
// Marshal возвращает ровно те байты, из которых запрос был построен или разобран
type Request struct {
	CertificateIDs []CertificateID
	Nonce          []byte

	// Signer - сертификат, которым подписан запрос; nil для анонимного запроса
	Signer *x509.Certificate

	// nonceExt - расширение nonce в том виде, в каком оно пришло от клиента
	nonceExt *pkix.Extension
	raw      []byte
}

// GenerateRequest строит запрос статуса certToCheck, выпущенного caCert.
// Если переданы и сертификат, и ключ запрашивающего, запрос подписывается,
// иначе получается анонимный запрос
func GenerateRequest(certToCheck, requesterCert *x509.Certificate, requesterKey crypto.Signer, caCert *x509.Certificate) (*Request, error) {
	id, err := NewCertificateID(certToCheck, caCert, DefaultHash)
	if err != nil {
		return nil, err
	}
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	req := &Request{CertificateIDs: []CertificateID{id}, Nonce: nonce}
	if requesterCert != nil && requesterKey != nil {
		req.Signer = requesterCert
	}

	raw, err := req.encode(requesterKey)
	if err != nil {
		return nil, err
	}
	req.raw = raw
	return req, nil
}

func (r *Request) encode(key crypto.Signer) ([]byte, error) {
	ext, err := nonceExtension(r.Nonce)
	if err != nil {
		return nil, fmt.Errorf("ocsp: encode nonce: %w", err)
	}

	tbs := tbsRequest{RequestExtensions: []pkix.Extension{ext}}
	for _, id := range r.CertificateIDs {
		c, err := id.toASN1()
		if err != nil {
			return nil, err
		}
		tbs.RequestList = append(tbs.RequestList, singleRequest{Cert: c})
	}

	msg := ocspRequest{TBSRequest: tbs}
	if r.Signer != nil && key != nil {
		tbsDER, err := asn1.Marshal(tbs)
		if err != nil {
			return nil, fmt.Errorf("ocsp: encode request: %w", err)
		}
		algo, signature, err := sign(key, tbsDER)
		if err != nil {
			return nil, err
		}
		msg.TBSRequest.Raw = tbsDER
		msg.OptionalSignature = requestSignature{
			SignatureAlgorithm: algo,
			Signature:          signature,
			Certificates:       []asn1.RawValue{{FullBytes: r.Signer.Raw}},
		}
	}

	der, err := asn1.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ocsp: encode request: %w", err)
	}
	return der, nil
}

// ParseRequest разбирает запрос в DER-форме. Запрос без CertID не считается
// ошибкой разбора: на него отвечает респондер. Подпись, если есть, проверяется
// по вложенному сертификату
func ParseRequest(der []byte) (*Request, error) {
	var msg ocspRequest
	rest, err := asn1.Unmarshal(der, &msg)
	if err != nil {
		return nil, fmt.Errorf("ocsp: parse request: %w", err)
	}
	if len(rest) > 0 {
		return nil, errors.New("ocsp: trailing data in request")
	}

	nonce, nonceExt := nonceFromExtensions(msg.TBSRequest.RequestExtensions)
	req := &Request{
		Nonce:    nonce,
		nonceExt: nonceExt,
		raw:      bytes.Clone(der),
	}
	for _, single := range msg.TBSRequest.RequestList {
		id, err := certificateIDFromASN1(single.Cert)
		if err != nil {
			return nil, err
		}
		req.CertificateIDs = append(req.CertificateIDs, id)
	}

	sig := msg.OptionalSignature
	if sig.Signature.BitLength == 0 {
		return req, nil
	}
	if len(sig.Certificates) == 0 {
		return nil, errors.New("ocsp: signed request carries no certificate")
	}
	signer, err := x509.ParseCertificate(sig.Certificates[0].FullBytes)
	if err != nil {
		return nil, fmt.Errorf("ocsp: parse requestor certificate: %w", err)
	}
	algo := signatureAlgorithmFromOID(sig.SignatureAlgorithm.Algorithm)
	if err := signer.CheckSignature(algo, msg.TBSRequest.Raw, sig.Signature.RightAlign()); err != nil {
		return nil, fmt.Errorf("ocsp: bad request signature: %w", err)
	}
	req.Signer = signer
	return req, nil
}

// Marshal возвращает DER-форму запроса
func (r *Request) Marshal() []byte {
	return bytes.Clone(r.raw)
}

// echoNonce возвращает расширение nonce для ответа. Расширение разобранного
// запроса возвращается байт в байт, чтобы клиент без OCTET STRING обертки
// увидел свое значение
func (r *Request) echoNonce() (*pkix.Extension, error) {
	if r.nonceExt != nil {
		return r.nonceExt, nil
	}
	if r.Nonce == nil {
		return nil, nil
	}
	ext, err := nonceExtension(r.Nonce)
	if err != nil {
		return nil, fmt.Errorf("ocsp: encode nonce: %w", err)
	}
	return &ext, nil
}

// Signed сообщает, подписан ли запрос
func (r *Request) Signed() bool {
	return r.Signer != nil
}

package ocsp

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ocsp"
)

// EnvelopeContentType - тип содержимого конверта с ответом
const EnvelopeContentType = "application/json"

// SingleResponse - статус одного сертификата в ответе
type SingleResponse struct {
	CertificateID    CertificateID
	Status           int // ocsp.Good, ocsp.Revoked или ocsp.Unknown
	RevokedAt        time.Time
	RevocationReason int
	ThisUpdate       time.Time
	NextUpdate       time.Time
}

// BasicResponse - подписанная часть успешного ответа
type BasicResponse struct {
	ProducedAt         time.Time
	Nonce              []byte
	Responses          []SingleResponse
	RawResponderName   []byte
	TBSResponseData    []byte
	Signature          []byte
	SignatureAlgorithm x509.SignatureAlgorithm
}

// Response - OCSP-ответ. Basic заполнен только у успешного ответа
type Response struct {
	Status ocsp.ResponseStatus
	Basic  *BasicResponse

	raw []byte
}

// envelope - текстовая форма ответа для передачи и хранения
type envelope struct {
	Response string `json:"ocsp_response"`
}

// NewErrorResponse возвращает ответ без подписанной части
func NewErrorResponse(status ocsp.ResponseStatus) *Response {
	raw, err := asn1.Marshal(responseASN1{Status: asn1.Enumerated(status)})
	if err != nil {
		// структура из одного ENUMERATED кодируется всегда
		panic(err)
	}
	return &Response{Status: status, raw: raw}
}

// createResponse собирает и подписывает успешный ответ
func createResponse(singles []SingleResponse, nonce *pkix.Extension, signerCert *x509.Certificate, key crypto.Signer, now time.Time) (*Response, error) {
	data := responseData{
		RawResponderID: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        1, // byName
			IsCompound: true,
			Bytes:      signerCert.RawSubject,
		},
		ProducedAt: generalizedTime(now),
	}
	for _, single := range singles {
		id, err := single.CertificateID.toASN1()
		if err != nil {
			return nil, err
		}
		inner := singleResponse{
			CertID:     id,
			ThisUpdate: generalizedTime(single.ThisUpdate),
			NextUpdate: generalizedTime(single.NextUpdate),
		}
		switch single.Status {
		case ocsp.Good:
			inner.Good = true
		case ocsp.Revoked:
			inner.Revoked = revokedInfo{
				RevocationTime: generalizedTime(single.RevokedAt),
				Reason:         asn1.Enumerated(single.RevocationReason),
			}
		default:
			inner.Unknown = true
		}
		data.Responses = append(data.Responses, inner)
	}
	if nonce != nil {
		data.ResponseExtensions = []pkix.Extension{*nonce}
	}

	tbsDER, err := asn1.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("ocsp: encode response data: %w", err)
	}
	algo, signature, err := sign(key, tbsDER)
	if err != nil {
		return nil, err
	}
	data.Raw = tbsDER

	basicDER, err := asn1.Marshal(basicResponse{
		TBSResponseData:    data,
		SignatureAlgorithm: algo,
		Signature:          signature,
	})
	if err != nil {
		return nil, fmt.Errorf("ocsp: encode basic response: %w", err)
	}
	raw, err := asn1.Marshal(responseASN1{
		Status:   asn1.Enumerated(ocsp.Success),
		Response: responseBytes{ResponseType: idPKIXOCSPBasic, Response: basicDER},
	})
	if err != nil {
		return nil, fmt.Errorf("ocsp: encode response: %w", err)
	}
	return ParseResponse(raw)
}

// ParseResponse разбирает ответ в DER-форме. Неуспешный статус ошибкой
// разбора не является, его оценивает Verify
func ParseResponse(der []byte) (*Response, error) {
	var msg responseASN1
	rest, err := asn1.Unmarshal(der, &msg)
	if err != nil {
		return nil, fmt.Errorf("ocsp: parse response: %w", err)
	}
	if len(rest) > 0 {
		return nil, errors.New("ocsp: trailing data in response")
	}

	resp := &Response{Status: ocsp.ResponseStatus(msg.Status), raw: bytes.Clone(der)}
	if resp.Status != ocsp.Success || len(msg.Response.Response) == 0 {
		return resp, nil
	}
	if !msg.Response.ResponseType.Equal(idPKIXOCSPBasic) {
		return nil, errors.New("ocsp: bad response type")
	}

	var basic basicResponse
	if _, err := asn1.Unmarshal(msg.Response.Response, &basic); err != nil {
		return nil, fmt.Errorf("ocsp: parse basic response: %w", err)
	}
	data := basic.TBSResponseData
	nonce, _ := nonceFromExtensions(data.ResponseExtensions)
	resp.Basic = &BasicResponse{
		ProducedAt:         data.ProducedAt,
		Nonce:              nonce,
		TBSResponseData:    data.Raw,
		Signature:          basic.Signature.RightAlign(),
		SignatureAlgorithm: signatureAlgorithmFromOID(basic.SignatureAlgorithm.Algorithm),
	}
	if data.RawResponderID.Tag == 1 {
		resp.Basic.RawResponderName = data.RawResponderID.Bytes
	}

	for _, inner := range data.Responses {
		id, err := certificateIDFromASN1(inner.CertID)
		if err != nil {
			return nil, err
		}
		single := SingleResponse{
			CertificateID: id,
			ThisUpdate:    inner.ThisUpdate,
			NextUpdate:    inner.NextUpdate,
		}
		switch {
		case bool(inner.Good):
			single.Status = ocsp.Good
		case bool(inner.Unknown):
			single.Status = ocsp.Unknown
		default:
			single.Status = ocsp.Revoked
			single.RevokedAt = inner.Revoked.RevocationTime
			single.RevocationReason = int(inner.Revoked.Reason)
		}
		resp.Basic.Responses = append(resp.Basic.Responses, single)
	}
	return resp, nil
}

// Marshal возвращает DER-форму ответа
func (r *Response) Marshal() []byte {
	return bytes.Clone(r.raw)
}

// Encode упаковывает ответ в текстовый конверт: base64 от DER
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(envelope{Response: base64.StdEncoding.EncodeToString(r.raw)})
}

// DecodeResponse разбирает текстовый конверт, полученный от респондера
func DecodeResponse(text []byte) (*Response, error) {
	var env envelope
	if err := json.Unmarshal(text, &env); err != nil {
		return nil, fmt.Errorf("ocsp: decode response envelope: %w", err)
	}
	if env.Response == "" {
		return nil, errors.New("ocsp: empty response envelope")
	}
	der, err := base64.StdEncoding.DecodeString(env.Response)
	if err != nil {
		return nil, fmt.Errorf("ocsp: decode response envelope: %w", err)
	}
	return ParseResponse(der)
}

// CheckSignatureFrom проверяет подпись успешного ответа ключом issuer
func (r *Response) CheckSignatureFrom(issuer *x509.Certificate) error {
	if r.Basic == nil {
		return &VerificationError{msg: "response carries no signed payload"}
	}
	err := issuer.CheckSignature(r.Basic.SignatureAlgorithm, r.Basic.TBSResponseData, r.Basic.Signature)
	if err != nil {
		return &VerificationError{msg: "bad response signature: " + err.Error()}
	}
	return nil
}

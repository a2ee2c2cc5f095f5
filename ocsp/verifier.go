package ocsp

import (
	"bytes"
	"math/big"
	"time"

	"golang.org/x/crypto/ocsp"
)

// VerificationError - смысловая ошибка OCSP-ответа
type VerificationError struct {
	msg string
}

func (e *VerificationError) Error() string {
	return "OCSP response verification failed: " + e.msg
}

// Result - статус одного сертификата из проверенного ответа
type Result struct {
	SerialNumber     *big.Int
	Valid            bool
	RevocationReason int
	RevokedAt        time.Time
	TTL              time.Duration
}

// Verify проверяет ответ на запрос req и возвращает результаты в порядке
// их следования в ответе
func (r *Response) Verify(req *Request) ([]Result, error) {
	if r.Status != ocsp.Success {
		return nil, &VerificationError{msg: "responder status " + r.Status.String()}
	}
	if r.Basic == nil {
		return nil, &VerificationError{msg: "successful response carries no payload"}
	}
	if req == nil || !bytes.Equal(r.Basic.Nonce, req.Nonce) {
		return nil, &VerificationError{msg: "nonce mismatch, potential replay attack"}
	}
	if len(r.Basic.Responses) == 0 {
		return nil, &VerificationError{msg: "no results in response"}
	}

	results := make([]Result, 0, len(r.Basic.Responses))
	for _, single := range r.Basic.Responses {
		if !req.requested(single.CertificateID) {
			return nil, &VerificationError{msg: "response for unrequested certificate " + single.CertificateID.String()}
		}
		result := Result{
			SerialNumber: single.CertificateID.SerialNumber,
			Valid:        single.Status == ocsp.Good,
		}
		if single.Status == ocsp.Revoked {
			result.RevocationReason = single.RevocationReason
			result.RevokedAt = single.RevokedAt
		}
		if !single.NextUpdate.IsZero() {
			result.TTL = single.NextUpdate.Sub(single.ThisUpdate)
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Request) requested(id CertificateID) bool {
	for _, requested := range r.CertificateIDs {
		if requested.Equal(id) {
			return true
		}
	}
	return false
}

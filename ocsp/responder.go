package ocsp

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"log/slog"
	"time"

	"golang.org/x/crypto/ocsp"
)

// Authority - удостоверяющий центр, от имени которого отвечает респондер
type Authority interface {
	// Identity возвращает сертификат и ключ УЦ; nil-сертификат означает,
	// что УЦ еще не инициализирован
	Identity() (*x509.Certificate, crypto.Signer, error)
	// CRL возвращает текущий список отзыва
	CRL() (*x509.RevocationList, error)
}

// Responder отвечает на OCSP-запросы по данным CRL
type Responder struct {
	ca  Authority
	ttl time.Duration
	now func() time.Time
}

// NewResponder создает респондер. ttl задает окно действия ответа
func NewResponder(ca Authority, ttl time.Duration) *Responder {
	return &Responder{ca: ca, ttl: ttl, now: time.Now}
}

// Respond строит ответ на запрос. Внутренние ошибки превращаются
// в ответы INTERNAL_ERROR и MALFORMED_REQUEST, ошибка наружу не возвращается
func (r *Responder) Respond(req *Request) *Response {
	resp := r.respond(req)
	responsesTotal.WithLabelValues(resp.Status.String()).Inc()
	return resp
}

func (r *Responder) respond(req *Request) *Response {
	caCert, caKey, err := r.ca.Identity()
	if err != nil || caCert == nil || caKey == nil {
		slog.Error("OCSP: УЦ недоступен", "error", err)
		return NewErrorResponse(ocsp.InternalError)
	}
	if req == nil || len(req.CertificateIDs) == 0 {
		slog.Warn("OCSP: запрос без CertID")
		return NewErrorResponse(ocsp.Malformed)
	}
	nonce, err := req.echoNonce()
	if err != nil {
		slog.Error("OCSP: не удалось закодировать nonce", "error", err)
		return NewErrorResponse(ocsp.InternalError)
	}

	// отвечаем только на первый CertID запроса
	id := req.CertificateIDs[0]
	if !id.SameIssuer(caCert) {
		return r.respondForeignIssuer(id, nonce, caCert, caKey)
	}

	crl, err := r.ca.CRL()
	if err != nil {
		slog.Error("OCSP: не удалось прочитать CRL", "error", err)
		return NewErrorResponse(ocsp.InternalError)
	}

	now := r.now()
	single := r.single(id, now)
	for _, entry := range crl.RevokedCertificateEntries {
		if entry.SerialNumber != nil && entry.SerialNumber.Cmp(id.SerialNumber) == 0 {
			single.Status = ocsp.Revoked
			single.RevokedAt = entry.RevocationTime
			single.RevocationReason = RevocationReason(entry.ReasonCode)
			break
		}
	}

	slog.Debug("OCSP: статус сертификата", "serial", id.String(), "status", single.Status)
	return r.sign(single, nonce, caCert, caKey, now)
}

// respondForeignIssuer отвечает о сертификате чужого издателя: статус GOOD,
// подпись ключом УЦ, CRL не читается
func (r *Responder) respondForeignIssuer(id CertificateID, nonce *pkix.Extension, caCert *x509.Certificate, caKey crypto.Signer) *Response {
	slog.Warn("OCSP: издатель сертификата не совпадает с УЦ, CRL не проверяется", "serial", id.String())
	now := r.now()
	return r.sign(r.single(id, now), nonce, caCert, caKey, now)
}

func (r *Responder) single(id CertificateID, now time.Time) SingleResponse {
	thisUpdate := generalizedTime(now)
	return SingleResponse{
		CertificateID: id,
		Status:        ocsp.Good,
		ThisUpdate:    thisUpdate,
		NextUpdate:    thisUpdate.Add(r.ttl),
	}
}

func (r *Responder) sign(single SingleResponse, nonce *pkix.Extension, caCert *x509.Certificate, caKey crypto.Signer, now time.Time) *Response {
	resp, err := createResponse([]SingleResponse{single}, nonce, caCert, caKey, now)
	if err != nil {
		slog.Error("OCSP: не удалось подписать ответ", "error", err)
		return NewErrorResponse(ocsp.InternalError)
	}
	return resp
}

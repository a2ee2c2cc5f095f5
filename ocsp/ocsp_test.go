package ocsp

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func TestRequestRoundTrip(t *testing.T) {
	ca := newTestCA(t, "ca")
	leaf, _ := ca.issue(t, "agent1", 42)

	req, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)
	assert.False(t, req.Signed())
	assert.Len(t, req.Nonce, nonceLength)

	parsed, err := ParseRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req.Marshal(), parsed.Marshal())
	assert.Equal(t, req.Nonce, parsed.Nonce)
	require.Len(t, parsed.CertificateIDs, 1)
	assert.True(t, parsed.CertificateIDs[0].Equal(req.CertificateIDs[0]))
	assert.True(t, parsed.CertificateIDs[0].SameIssuer(ca.cert))
	assert.Equal(t, "2A", parsed.CertificateIDs[0].String())
}

func TestRequestNonceIsFresh(t *testing.T) {
	ca := newTestCA(t, "ca")
	leaf, _ := ca.issue(t, "agent1", 7)

	first, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)
	second, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)
	assert.NotEqual(t, first.Nonce, second.Nonce)
}

func TestSignedRequest(t *testing.T) {
	ca := newTestCA(t, "ca")
	leaf, _ := ca.issue(t, "agent1", 42)
	requester, requesterKey := ca.issue(t, "agent2", 43)

	req, err := GenerateRequest(leaf, requester, requesterKey, ca.cert)
	require.NoError(t, err)
	assert.True(t, req.Signed())

	parsed, err := ParseRequest(req.Marshal())
	require.NoError(t, err)
	require.NotNil(t, parsed.Signer)
	assert.Equal(t, requester.Raw, parsed.Signer.Raw)
	assert.Equal(t, req.Nonce, parsed.Nonce)
}

func TestRequestWithoutKeyIsAnonymous(t *testing.T) {
	ca := newTestCA(t, "ca")
	leaf, _ := ca.issue(t, "agent1", 42)
	requester, _ := ca.issue(t, "agent2", 43)

	req, err := GenerateRequest(leaf, requester, nil, ca.cert)
	require.NoError(t, err)
	assert.False(t, req.Signed())
}

func TestParseRequestRejectsGarbage(t *testing.T) {
	_, err := ParseRequest([]byte("not a request"))
	assert.Error(t, err)
}

func TestRequestReadableByXCrypto(t *testing.T) {
	ca := newTestCA(t, "ca")
	leaf, _ := ca.issue(t, "agent1", 42)

	req, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)

	std, err := ocsp.ParseRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA1, std.HashAlgorithm)
	assert.Equal(t, 0, std.SerialNumber.Cmp(big.NewInt(42)))
	assert.Equal(t, req.CertificateIDs[0].IssuerKeyHash, std.IssuerKeyHash)
	assert.Equal(t, req.CertificateIDs[0].IssuerNameHash, std.IssuerNameHash)
}

func TestRespondRevocationMapping(t *testing.T) {
	ca := newTestCA(t, "ca")
	revokedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	authority := &fakeAuthority{
		cert: ca.cert,
		key:  ca.key,
		crl: ca.crl(t, x509RevocationEntry(42, revokedAt, ParseRevocationReason("keyCompromise"))),
	}
	responder := NewResponder(authority, time.Hour)

	revokedLeaf, _ := ca.issue(t, "agent1", 42)
	goodLeaf, _ := ca.issue(t, "agent2", 43)

	req, err := GenerateRequest(revokedLeaf, nil, nil, ca.cert)
	require.NoError(t, err)
	resp := responder.Respond(req)
	require.Equal(t, ocsp.Success, resp.Status)
	require.NoError(t, resp.CheckSignatureFrom(ca.cert))

	results, err := resp.Verify(req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].SerialNumber.Cmp(big.NewInt(42)))
	assert.False(t, results[0].Valid)
	assert.Equal(t, ocsp.KeyCompromise, results[0].RevocationReason)
	assert.True(t, revokedAt.Equal(results[0].RevokedAt))
	assert.Equal(t, time.Hour, results[0].TTL)

	req, err = GenerateRequest(goodLeaf, nil, nil, ca.cert)
	require.NoError(t, err)
	results, err = responder.Respond(req).Verify(req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Valid)
	assert.Equal(t, time.Hour, results[0].TTL)
	assert.True(t, results[0].RevokedAt.IsZero())
}

func TestResponseReadableByXCrypto(t *testing.T) {
	ca := newTestCA(t, "ca")
	revokedAt := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	authority := &fakeAuthority{
		cert: ca.cert,
		key:  ca.key,
		crl:  ca.crl(t, x509RevocationEntry(42, revokedAt, ocsp.Superseded)),
	}
	leaf, _ := ca.issue(t, "agent1", 42)

	req, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)
	resp := NewResponder(authority, time.Hour).Respond(req)

	std, err := ocsp.ParseResponse(resp.Marshal(), ca.cert)
	require.NoError(t, err)
	assert.Equal(t, ocsp.Revoked, std.Status)
	assert.Equal(t, ocsp.Superseded, std.RevocationReason)
	assert.True(t, revokedAt.Equal(std.RevokedAt))
	assert.Equal(t, 0, std.SerialNumber.Cmp(big.NewInt(42)))
}

func TestRespondEchoesRawNonce(t *testing.T) {
	ca := newTestCA(t, "ca")
	authority := &fakeAuthority{cert: ca.cert, key: ca.key, crl: ca.crl(t)}
	leaf, _ := ca.issue(t, "agent1", 42)
	id, err := NewCertificateID(leaf, ca.cert, DefaultHash)
	require.NoError(t, err)
	c, err := id.toASN1()
	require.NoError(t, err)

	// nonce без обертки OCTET STRING, как его шлют старые клиенты
	raw := []byte("legacy-nonce-0001")
	der, err := asn1.Marshal(ocspRequest{TBSRequest: tbsRequest{
		RequestList:       []singleRequest{{Cert: c}},
		RequestExtensions: []pkix.Extension{{Id: idPKIXOCSPNonce, Value: raw}},
	}})
	require.NoError(t, err)

	req, err := ParseRequest(der)
	require.NoError(t, err)
	assert.Equal(t, raw, req.Nonce)

	resp := NewResponder(authority, time.Hour).Respond(req)
	require.Equal(t, ocsp.Success, resp.Status)
	_, err = resp.Verify(req)
	require.NoError(t, err)

	var msg responseASN1
	_, err = asn1.Unmarshal(resp.Marshal(), &msg)
	require.NoError(t, err)
	var basic basicResponse
	_, err = asn1.Unmarshal(msg.Response.Response, &basic)
	require.NoError(t, err)
	exts := basic.TBSResponseData.ResponseExtensions
	require.Len(t, exts, 1)
	assert.True(t, exts[0].Id.Equal(idPKIXOCSPNonce))
	assert.Equal(t, raw, exts[0].Value)
}

func TestRespondForeignIssuer(t *testing.T) {
	ca := newTestCA(t, "ca")
	other := newTestCA(t, "other")
	authority := &fakeAuthority{
		cert: ca.cert,
		key:  ca.key,
		crl:  ca.crl(t, x509RevocationEntry(42, time.Now(), ocsp.KeyCompromise)),
	}
	foreign, _ := other.issue(t, "stranger", 42)

	req, err := GenerateRequest(foreign, nil, nil, other.cert)
	require.NoError(t, err)
	resp := NewResponder(authority, time.Hour).Respond(req)

	require.Equal(t, ocsp.Success, resp.Status)
	assert.Zero(t, authority.crlCalls, "foreign issuer must not consult the CRL")
	require.NoError(t, resp.CheckSignatureFrom(ca.cert))

	results, err := resp.Verify(req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Valid)
}

func TestRespondWithoutIdentity(t *testing.T) {
	ca := newTestCA(t, "ca")
	leaf, _ := ca.issue(t, "agent1", 42)
	req, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)

	resp := NewResponder(&fakeAuthority{}, time.Hour).Respond(req)
	assert.Equal(t, ocsp.InternalError, resp.Status)
	assert.Nil(t, resp.Basic)
}

func TestRespondWithoutCertificateIDs(t *testing.T) {
	ca := newTestCA(t, "ca")
	authority := &fakeAuthority{cert: ca.cert, key: ca.key, crl: ca.crl(t)}

	resp := NewResponder(authority, time.Hour).Respond(&Request{})
	assert.Equal(t, ocsp.Malformed, resp.Status)
}

func TestRespondCRLFailure(t *testing.T) {
	ca := newTestCA(t, "ca")
	authority := &fakeAuthority{cert: ca.cert, key: ca.key, crlErr: errors.New("crl is corrupt")}
	leaf, _ := ca.issue(t, "agent1", 42)
	req, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)

	resp := NewResponder(authority, time.Hour).Respond(req)
	assert.Equal(t, ocsp.InternalError, resp.Status)
}

func TestRespondAnswersFirstCertificateIDOnly(t *testing.T) {
	ca := newTestCA(t, "ca")
	authority := &fakeAuthority{cert: ca.cert, key: ca.key, crl: ca.crl(t)}
	first, _ := ca.issue(t, "agent1", 42)
	second, _ := ca.issue(t, "agent2", 43)

	req, err := GenerateRequest(first, nil, nil, ca.cert)
	require.NoError(t, err)
	secondID, err := NewCertificateID(second, ca.cert, DefaultHash)
	require.NoError(t, err)
	req.CertificateIDs = append(req.CertificateIDs, secondID)

	results, err := NewResponder(authority, time.Hour).Respond(req).Verify(req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].SerialNumber.Cmp(big.NewInt(42)))
}

func TestVerifyDetectsReplay(t *testing.T) {
	ca := newTestCA(t, "ca")
	authority := &fakeAuthority{cert: ca.cert, key: ca.key, crl: ca.crl(t)}
	leaf, _ := ca.issue(t, "agent1", 42)

	original, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)
	resp := NewResponder(authority, time.Hour).Respond(original)

	fresh, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)
	_, err = resp.Verify(fresh)
	require.Error(t, err)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "replay")
}

func TestVerifyUnsuccessfulStatus(t *testing.T) {
	_, err := NewErrorResponse(ocsp.Malformed).Verify(&Request{})
	require.Error(t, err)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), ocsp.Malformed.String())
}

func TestVerifyNoPayload(t *testing.T) {
	resp := &Response{Status: ocsp.Success}
	_, err := resp.Verify(&Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload")
}

func TestVerifyNoResults(t *testing.T) {
	ca := newTestCA(t, "ca")
	nonce, err := NewNonce()
	require.NoError(t, err)

	resp, err := createResponse(nil, nonceExt(t, nonce), ca.cert, ca.key, time.Now())
	require.NoError(t, err)
	_, err = resp.Verify(&Request{Nonce: nonce})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results")
}

func TestVerifyManyResults(t *testing.T) {
	ca := newTestCA(t, "ca")
	first, _ := ca.issue(t, "agent1", 1)
	second, _ := ca.issue(t, "agent2", 2)
	firstID, err := NewCertificateID(first, ca.cert, DefaultHash)
	require.NoError(t, err)
	secondID, err := NewCertificateID(second, ca.cert, DefaultHash)
	require.NoError(t, err)

	now := time.Now()
	revokedAt := now.Add(-time.Hour).UTC().Truncate(time.Second)
	resp, err := createResponse([]SingleResponse{
		{CertificateID: firstID, Status: ocsp.Good, ThisUpdate: now, NextUpdate: now.Add(time.Minute)},
		{CertificateID: secondID, Status: ocsp.Revoked, RevokedAt: revokedAt, RevocationReason: ocsp.CessationOfOperation, ThisUpdate: now, NextUpdate: now.Add(time.Minute)},
	}, nil, ca.cert, ca.key, now)
	require.NoError(t, err)

	results, err := resp.Verify(&Request{CertificateIDs: []CertificateID{firstID, secondID}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
	assert.Equal(t, ocsp.CessationOfOperation, results[1].RevocationReason)
	assert.True(t, revokedAt.Equal(results[1].RevokedAt))
}

func TestVerifyRejectsUnrequestedCertificate(t *testing.T) {
	ca := newTestCA(t, "ca")
	asked, _ := ca.issue(t, "agent1", 1)
	other, _ := ca.issue(t, "agent2", 2)
	req, err := GenerateRequest(asked, nil, nil, ca.cert)
	require.NoError(t, err)
	otherID, err := NewCertificateID(other, ca.cert, DefaultHash)
	require.NoError(t, err)

	now := time.Now()
	resp, err := createResponse([]SingleResponse{
		{CertificateID: otherID, Status: ocsp.Good, ThisUpdate: now, NextUpdate: now.Add(time.Minute)},
	}, nonceExt(t, req.Nonce), ca.cert, ca.key, now)
	require.NoError(t, err)

	_, err = resp.Verify(req)
	require.Error(t, err)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "unrequested certificate 2")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ca := newTestCA(t, "ca")
	authority := &fakeAuthority{cert: ca.cert, key: ca.key, crl: ca.crl(t)}
	leaf, _ := ca.issue(t, "agent1", 42)
	req, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)
	resp := NewResponder(authority, time.Hour).Respond(req)

	text, err := resp.Encode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), `{"ocsp_response":"`))

	decoded, err := DecodeResponse(text)
	require.NoError(t, err)
	assert.Equal(t, resp.Marshal(), decoded.Marshal())
	_, err = decoded.Verify(req)
	assert.NoError(t, err)
}

func TestDecodeResponseRejectsBadEnvelope(t *testing.T) {
	_, err := DecodeResponse([]byte(`{"ocsp_response":"%%%"}`))
	assert.Error(t, err)
	_, err = DecodeResponse([]byte(`{}`))
	assert.Error(t, err)
}

func TestCheckSignatureFromStandardAlgorithms(t *testing.T) {
	rsaCA := newRSATestCA(t, "rsa-ca")
	ecCA := newTestCA(t, "ec-ca")

	tests := []struct {
		name   string
		cert   *x509.Certificate
		key    crypto.Signer
		algo   x509.SignatureAlgorithm
		serial int64
	}{
		{"sha1 rsa", rsaCA.cert, rsaCA.key, x509.SHA1WithRSA, 10},
		{"sha256 rsa", rsaCA.cert, rsaCA.key, x509.SHA256WithRSA, 11},
		{"sha384 rsa", rsaCA.cert, rsaCA.key, x509.SHA384WithRSA, 12},
		{"sha512 rsa", rsaCA.cert, rsaCA.key, x509.SHA512WithRSA, 13},
		{"sha1 ecdsa", ecCA.cert, ecCA.key, x509.ECDSAWithSHA1, 14},
		{"sha384 ecdsa", ecCA.cert, ecCA.key, x509.ECDSAWithSHA384, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			der, err := ocsp.CreateResponse(tt.cert, tt.cert, ocsp.Response{
				Status:             ocsp.Good,
				SerialNumber:       big.NewInt(tt.serial),
				ThisUpdate:         now,
				NextUpdate:         now.Add(time.Hour),
				SignatureAlgorithm: tt.algo,
			}, tt.key)
			require.NoError(t, err)

			resp, err := ParseResponse(der)
			require.NoError(t, err)
			require.Equal(t, ocsp.Success, resp.Status)
			assert.Equal(t, tt.algo, resp.Basic.SignatureAlgorithm)
			require.NoError(t, resp.CheckSignatureFrom(tt.cert))
			require.Len(t, resp.Basic.Responses, 1)
			assert.Equal(t, 0, resp.Basic.Responses[0].CertificateID.SerialNumber.Cmp(big.NewInt(tt.serial)))
		})
	}
}

func TestCheckSignatureFromWrongIssuer(t *testing.T) {
	ca := newTestCA(t, "ca")
	other := newTestCA(t, "other")
	authority := &fakeAuthority{cert: ca.cert, key: ca.key, crl: ca.crl(t)}
	leaf, _ := ca.issue(t, "agent1", 42)
	req, err := GenerateRequest(leaf, nil, nil, ca.cert)
	require.NoError(t, err)

	resp := NewResponder(authority, time.Hour).Respond(req)
	err = resp.CheckSignatureFrom(other.cert)
	var verr *VerificationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseRevocationReason(t *testing.T) {
	assert.Equal(t, ocsp.KeyCompromise, ParseRevocationReason("keyCompromise"))
	assert.Equal(t, ocsp.CACompromise, ParseRevocationReason("ca_compromise"))
	assert.Equal(t, ocsp.Unspecified, ParseRevocationReason("whatever"))
	assert.Equal(t, ocsp.Unspecified, RevocationReason(7))
	assert.Equal(t, ocsp.AACompromise, RevocationReason(10))
}

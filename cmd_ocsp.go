package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/addspin/tlsca/crypts"
	"github.com/addspin/tlsca/ocsp"
	xocsp "golang.org/x/crypto/ocsp"
)

type ocspCheck struct {
	url           string
	cacheTTL      time.Duration
	caCertFile    string
	requesterCert string
	requesterKey  string
	files         []string
}

// checkCertificates проверяет статус каждого сертификата у респондера
// и печатает строку на сертификат
func checkCertificates(ctx context.Context, check ocspCheck, out io.Writer) error {
	caCert, err := readCertificate(check.caCertFile)
	if err != nil {
		return err
	}

	var requester ocsp.Requester
	if check.requesterCert != "" || check.requesterKey != "" {
		if check.requesterCert == "" || check.requesterKey == "" {
			return errors.New("--requester-cert and --requester-key must be used together")
		}
		if requester.Certificate, err = readCertificate(check.requesterCert); err != nil {
			return err
		}
		data, err := os.ReadFile(check.requesterKey)
		if err != nil {
			return fmt.Errorf("не удалось прочитать ключ %s: %w", check.requesterKey, err)
		}
		if requester.Key, err = crypts.DecodePrivateKeyFromPEM(data); err != nil {
			return err
		}
	}

	cache := ocsp.NewResultCache(ocsp.NewHTTPTransport(check.url), caCert, check.cacheTTL)
	for _, file := range check.files {
		cert, err := readCertificate(file)
		if err != nil {
			return err
		}
		results, err := cache.Verify(ctx, cert, requester)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		for _, result := range results {
			fmt.Fprintln(out, formatResult(file, result))
		}
	}
	return nil
}

func formatResult(file string, result ocsp.Result) string {
	if result.Valid {
		return fmt.Sprintf("%s: serial %X good (ttl %s)", file, result.SerialNumber, result.TTL)
	}
	return fmt.Sprintf("%s: serial %X revoked at %s, reason %s",
		file, result.SerialNumber, result.RevokedAt.Format(time.RFC3339), reasonName(result.RevocationReason))
}

var reasonNames = map[int]string{
	xocsp.Unspecified:          "unspecified",
	xocsp.KeyCompromise:        "keyCompromise",
	xocsp.CACompromise:         "cACompromise",
	xocsp.AffiliationChanged:   "affiliationChanged",
	xocsp.Superseded:           "superseded",
	xocsp.CessationOfOperation: "cessationOfOperation",
	xocsp.CertificateHold:      "certificateHold",
	xocsp.RemoveFromCRL:        "removeFromCRL",
	xocsp.PrivilegeWithdrawn:   "privilegeWithdrawn",
	xocsp.AACompromise:         "aACompromise",
}

func reasonName(reason int) string {
	if name, ok := reasonNames[reason]; ok {
		return name
	}
	return fmt.Sprintf("%d", reason)
}

func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать сертификат %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s: не удалось декодировать PEM сертификата", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

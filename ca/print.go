package ca

import (
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/addspin/tlsca/crypts"
)

// Print возвращает текстовое описание сертификата узла или пустую строку,
// если сертификата нет
func (a *Authority) Print(name string) (string, error) {
	cert, err := a.Certificate(name)
	if err != nil || cert == nil {
		return "", err
	}
	return certificateText(cert)
}

func certificateText(cert *x509.Certificate) (string, error) {
	fingerprint, err := crypts.Fingerprint(cert.Raw, "SHA256")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Certificate:\n")
	fmt.Fprintf(&b, "    Version: %d\n", cert.Version)
	fmt.Fprintf(&b, "    Serial Number: %s\n", standardizeSerialNumber(cert.SerialNumber))
	fmt.Fprintf(&b, "    Signature Algorithm: %s\n", cert.SignatureAlgorithm)
	fmt.Fprintf(&b, "    Issuer: %s\n", cert.Issuer)
	fmt.Fprintf(&b, "    Validity\n")
	fmt.Fprintf(&b, "        Not Before: %s\n", cert.NotBefore.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "        Not After : %s\n", cert.NotAfter.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "    Subject: %s\n", cert.Subject)
	fmt.Fprintf(&b, "    Public Key Algorithm: %s\n", cert.PublicKeyAlgorithm)
	if names := AltNames(cert.DNSNames, cert.IPAddresses); len(names) > 0 {
		fmt.Fprintf(&b, "    X509v3 Subject Alternative Name:\n        %s\n", strings.Join(names, ", "))
	}
	if cert.IsCA {
		fmt.Fprintf(&b, "    X509v3 Basic Constraints: CA:TRUE\n")
	}
	fmt.Fprintf(&b, "    Fingerprint: %s\n", fingerprint)
	b.Write(encodeCertificate(cert.Raw))
	return b.String(), nil
}

// AltNames перечисляет альтернативные имена сертификата или запроса
// в виде "DNS:host" и "IP Address:ip"
func AltNames(dnsNames []string, ips []net.IP) []string {
	var names []string
	for _, dnsName := range dnsNames {
		names = append(names, "DNS:"+dnsName)
	}
	for _, ip := range ips {
		names = append(names, "IP Address:"+ip.String())
	}
	return names
}

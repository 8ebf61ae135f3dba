package managers

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/pkcs12"
)

const (
	defaultCSRKeySize = 2048
	minCSRKeySize     = 1024
	maxCSRKeySize     = 8192
)

type parsedCertificate struct {
	certificate    *x509.Certificate
	certificatePEM string
	privateKeyPEM  string
}

// parseCertificateUpload accepts PEM (optionally with a plain or encrypted
// private key), PFX, or a bare certificate signed for the pending CSR key.
func parseCertificateUpload(upload domain.ClientCertificateUpload, pendingKeyPEM string) (*parsedCertificate, error) {
	data, err := decodeCertificateData(upload.Base64CertificateData)
	if err != nil {
		return nil, err
	}

	var (
		certificates []*x509.Certificate
		privateKey   crypto.PrivateKey
	)

	if bytes.Contains(data, []byte("-----BEGIN")) {
		certificates, privateKey, err = parsePEMBundle(data, upload.Passphrase)
	} else {
		certificates, privateKey, err = parseBinaryCertificate(data, upload.Passphrase)
	}
	if err != nil {
		return nil, err
	}

	if len(certificates) == 0 {
		return nil, fmt.Errorf("%w: no certificate found in upload", domain.ErrValidation)
	}

	if privateKey == nil && pendingKeyPEM != "" {
		pendingKey, err := parsePrivateKeyPEM(pendingKeyPEM)
		if err != nil {
			return nil, err
		}

		privateKey = pendingKey
	}

	if privateKey == nil {
		return nil, fmt.Errorf("%w: certificate has no private key and no certificate signing request is pending", domain.ErrValidation)
	}

	certificate := selectLeafCertificate(certificates, privateKey)
	if certificate == nil {
		return nil, fmt.Errorf("%w: private key does not match the certificate", domain.ErrValidation)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported private key: %v", domain.ErrValidation, err)
	}

	return &parsedCertificate{
		certificate:    certificate,
		certificatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certificate.Raw})),
		privateKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})),
	}, nil
}

func decodeCertificateData(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: certificate data is required", domain.ErrValidation)
	}

	if strings.HasPrefix(encoded, "-----BEGIN") {
		return []byte(encoded), nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: certificate data is not valid base64", domain.ErrValidation)
	}

	return data, nil
}

func parsePEMBundle(data []byte, passphrase string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	var (
		certificates []*x509.Certificate
		privateKey   crypto.PrivateKey
	)

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		switch block.Type {
		case "CERTIFICATE":
			certificate, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: invalid certificate: %v", domain.ErrValidation, err)
			}
			certificates = append(certificates, certificate)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY", "ENCRYPTED PRIVATE KEY":
			key, err := parsePrivateKeyBlock(block, passphrase)
			if err != nil {
				return nil, nil, err
			}
			privateKey = key
		}
	}

	return certificates, privateKey, nil
}

func parseBinaryCertificate(data []byte, passphrase string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	privateKey, certificate, err := pkcs12.Decode(data, passphrase)
	if err == nil {
		return []*x509.Certificate{certificate}, privateKey, nil
	}

	// Decode rejects bundles carrying a chain, ToPEM does not
	if blocks, pemErr := pkcs12.ToPEM(data, passphrase); pemErr == nil {
		var bundle bytes.Buffer
		for _, block := range blocks {
			if encodeErr := pem.Encode(&bundle, block); encodeErr != nil {
				return nil, nil, fmt.Errorf("%w: invalid PFX content: %v", domain.ErrValidation, encodeErr)
			}
		}

		return parsePEMBundle(bundle.Bytes(), "")
	}

	if certificate, derErr := x509.ParseCertificate(data); derErr == nil {
		return []*x509.Certificate{certificate}, nil, nil
	}

	return nil, nil, fmt.Errorf("%w: unable to read certificate: %v", domain.ErrValidation, err)
}

func parsePrivateKeyBlock(block *pem.Block, passphrase string) (crypto.PrivateKey, error) {
	var (
		key any
		err error
	)

	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return nil, fmt.Errorf("%w: passphrase is required for an encrypted private key", domain.ErrValidation)
		}
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", domain.ErrValidation, err)
	}

	return key, nil
}

func parsePrivateKeyPEM(keyPEM string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode stored private key")
	}

	return parsePrivateKeyBlock(block, "")
}

func selectLeafCertificate(certificates []*x509.Certificate, privateKey crypto.PrivateKey) *x509.Certificate {
	for _, certificate := range certificates {
		if publicKeyMatches(certificate, privateKey) {
			return certificate
		}
	}

	return nil
}

func publicKeyMatches(certificate *x509.Certificate, privateKey crypto.PrivateKey) bool {
	signer, ok := privateKey.(crypto.Signer)
	if !ok {
		return false
	}

	switch public := certificate.PublicKey.(type) {
	case *rsa.PublicKey:
		return public.Equal(signer.Public())
	case *ecdsa.PublicKey:
		return public.Equal(signer.Public())
	case ed25519.PublicKey:
		return public.Equal(signer.Public())
	}

	return false
}

func certificateThumbprint(certificate *x509.Certificate) string {
	sum := sha1.Sum(certificate.Raw)

	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func toClientCertificate(certificate *x509.Certificate) *domain.ClientCertificate {
	return &domain.ClientCertificate{
		Subject:    certificate.Subject.String(),
		Issuer:     certificate.Issuer.String(),
		Thumbprint: certificateThumbprint(certificate),
		NotBefore:  certificate.NotBefore,
		NotAfter:   certificate.NotAfter,
	}
}

func parseCertificatePEM(certificatePEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certificatePEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode stored certificate")
	}

	return x509.ParseCertificate(block.Bytes)
}

func isSelfSigned(certificate *x509.Certificate) bool {
	return bytes.Equal(certificate.RawIssuer, certificate.RawSubject) && certificate.CheckSignatureFrom(certificate) == nil
}

// generateCSR creates an RSA key and a PEM certificate signing request for subject
func generateCSR(keySize int, subject string) (csrPEM, keyPEM string, err error) {
	if keySize == 0 {
		keySize = defaultCSRKeySize
	}

	if keySize < minCSRKeySize || keySize > maxCSRKeySize || keySize%1024 != 0 {
		return "", "", fmt.Errorf("%w: key size must be a multiple of 1024 between %d and %d", domain.ErrValidation, minCSRKeySize, maxCSRKeySize)
	}

	name, err := parseDistinguishedName(subject)
	if err != nil {
		return "", "", err
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate RSA key: %w", err)
	}

	template := &x509.CertificateRequest{
		Subject:            name,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, template, privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to create certificate signing request: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}

	csrPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}))

	return csrPEM, keyPEM, nil
}

// parseDistinguishedName reads a comma separated "CN=x,O=y" subject
func parseDistinguishedName(subject string) (pkix.Name, error) {
	var name pkix.Name

	for _, part := range strings.Split(subject, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		attribute, value, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(value) == "" {
			return pkix.Name{}, fmt.Errorf("%w: invalid subject component %q", domain.ErrValidation, part)
		}

		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(attribute)) {
		case "CN":
			name.CommonName = value
		case "O":
			name.Organization = append(name.Organization, value)
		case "OU":
			name.OrganizationalUnit = append(name.OrganizationalUnit, value)
		case "L":
			name.Locality = append(name.Locality, value)
		case "ST", "S":
			name.Province = append(name.Province, value)
		case "C":
			name.Country = append(name.Country, value)
		default:
			return pkix.Name{}, fmt.Errorf("%w: unsupported subject attribute %q", domain.ErrValidation, attribute)
		}
	}

	if name.CommonName == "" {
		return pkix.Name{}, fmt.Errorf("%w: subject must contain a CN", domain.ErrValidation)
	}

	return name, nil
}

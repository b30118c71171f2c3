// Package keys offers utility functions for working with crypto.Signers,
// JWKs, key authorizations and PEM serialization.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// SigAlgForKey returns the JWS signature algorithm matching the given key
// type.
func SigAlgForKey(signer crypto.Signer) jose.SignatureAlgorithm {
	switch signer.(type) {
	case *ecdsa.PrivateKey:
		return jose.ES256
	case *rsa.PrivateKey:
		return jose.RS256
	}
	return "unknown"
}

func algForKey(signer crypto.Signer) string {
	switch signer.(type) {
	case *ecdsa.PrivateKey:
		return "ECDSA"
	case *rsa.PrivateKey:
		return "RSA"
	}
	return "unknown"
}

// JWKForSigner returns the public JWK for the given signer.
func JWKForSigner(signer crypto.Signer) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       signer.Public(),
		Algorithm: algForKey(signer),
	}
}

// JWKThumbprintBytes returns the RFC 7638 SHA-256 thumbprint of the
// signer's public JWK.
func JWKThumbprintBytes(signer crypto.Signer) []byte {
	jwk := JWKForSigner(signer)
	thumbBytes, _ := jwk.Thumbprint(crypto.SHA256)
	return thumbBytes
}

// JWKThumbprint returns the base64url encoded form of JWKThumbprintBytes.
func JWKThumbprint(signer crypto.Signer) string {
	return base64.RawURLEncoding.EncodeToString(JWKThumbprintBytes(signer))
}

// KeyAuthorization computes the key authorization for a challenge token:
// the token joined with the account key thumbprint by a ".".
//
// See https://tools.ietf.org/html/rfc8555#section-8.1
func KeyAuthorization(signer crypto.Signer, token string) string {
	return fmt.Sprintf("%s.%s", token, JWKThumbprint(signer))
}

// DNS01TXTValue computes the TXT record value for a DNS-01 challenge: the
// base64url encoded SHA-256 digest of the key authorization.
//
// See https://tools.ietf.org/html/rfc8555#section-8.4
func DNS01TXTValue(keyAuthorization string) string {
	digest := sha256.Sum256([]byte(keyAuthorization))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// NewSigner generates a fresh account keypair. If rsaBits is non-zero an
// RSA key of that size is generated, otherwise an ECDSA key on the P-256
// curve.
func NewSigner(rsaBits int) (crypto.Signer, error) {
	if rsaBits != 0 {
		if rsaBits < 2048 {
			return nil, fmt.Errorf("refusing to generate an RSA key shorter than 2048 bits (got %d)", rsaBits)
		}
		return rsa.GenerateKey(rand.Reader, rsaBits)
	}
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// SignerToPEM serializes a private key to PEM.
func SignerToPEM(signer crypto.Signer) ([]byte, error) {
	var keyBytes []byte
	var keyHeader string
	var err error
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err = x509.MarshalECPrivateKey(k)
		keyHeader = "EC PRIVATE KEY"
	case *rsa.PrivateKey:
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
		keyHeader = "RSA PRIVATE KEY"
	default:
		err = fmt.Errorf("unknown key type: %T", k)
	}
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  keyHeader,
		Bytes: keyBytes,
	}), nil
}

// SignerFromPEM deserializes a private key previously written by
// SignerToPEM.
func SignerFromPEM(pemBytes []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in key data")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unknown PEM block type %q", block.Type)
	}
}

// CSRDER creates a DER encoded certificate signing request for the given
// domains, signed with the given certificate key. The first domain becomes
// the subject common name and all domains are included as DNS SANs.
func CSRDER(signer crypto.Signer, domains []string) ([]byte, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("can not create a CSR without at least one domain")
	}
	template := x509.CertificateRequest{
		DNSNames: domains,
	}
	template.Subject.CommonName = domains[0]
	return x509.CreateCertificateRequest(rand.Reader, &template, signer)
}

package client

import (
	"crypto"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"

	"github.com/acmedriver/acmedriver/acme/keys"
)

// SigningOptions allows specifying signature related options when
// producing a JWS for an ACME request.
type SigningOptions struct {
	// If true, embed the public key as a JWK in the signed JWS instead of
	// using a KeyID header. This is required for newAccount and revocation
	// by certificate key. Mutually exclusive with a non-empty KeyID.
	EmbedKey bool
	// The JWS Key ID identifying the ACME account (its location URL).
	// Mutually exclusive with EmbedKey.
	KeyID string
	// The private key signing the JWS. If nil the account key is used.
	Signer crypto.Signer
	// The anti-replay nonce for the protected header. Signed requests must
	// always carry one.
	Nonce string
}

func (opts *SigningOptions) validate() error {
	if opts.KeyID != "" && opts.EmbedKey {
		return fmt.Errorf("sign: cannot specify both KeyID and EmbedKey")
	}
	if opts.KeyID == "" && !opts.EmbedKey {
		return fmt.Errorf("sign: you must specify a KeyID or EmbedKey")
	}
	if opts.Signer == nil {
		return fmt.Errorf("sign: you must specify a private key")
	}
	if opts.Nonce == "" {
		return fmt.Errorf("sign: you must specify a nonce")
	}
	return nil
}

// staticNonceSource feeds one predetermined nonce to go-jose. The retry
// loop threads a specific held nonce into each signing attempt, so the
// jose.NonceSource never fetches anything itself.
type staticNonceSource string

func (n staticNonceSource) Nonce() (string, error) {
	return string(n), nil
}

// sign produces a serialized JWS for the given data with a protected
// "url" header, according to the SigningOptions. If the options specify
// neither a Signer nor a KeyID the client's account supplies them.
func (c *Client) sign(url string, data []byte, opts SigningOptions) ([]byte, error) {
	if opts.Signer == nil && c.account != nil {
		opts.Signer = c.account.Signer
	}
	if !opts.EmbedKey && opts.KeyID == "" && c.account != nil {
		opts.KeyID = c.account.Location
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	alg := keys.SigAlgForKey(opts.Signer)
	var signingKey jose.SigningKey
	if opts.EmbedKey {
		signingKey = jose.SigningKey{
			Key:       opts.Signer,
			Algorithm: alg,
		}
	} else {
		signingKey = jose.SigningKey{
			Key: &jose.JSONWebKey{
				Key:       opts.Signer,
				KeyID:     opts.KeyID,
				Algorithm: string(alg),
			},
			Algorithm: alg,
		}
	}

	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		NonceSource: staticNonceSource(opts.Nonce),
		EmbedJWK:    opts.EmbedKey,
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build JWS signer")
	}

	signed, err := signer.Sign(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign request body")
	}
	return []byte(signed.FullSerialize()), nil
}

// EABCredentials are external account binding credentials handed out by
// a CA that requires accounts to be bound to an external identity.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.4
type EABCredentials struct {
	// The key identifier assigned by the CA.
	KeyID string
	// The base64url encoded HMAC key assigned by the CA.
	HMACKey string
}

// eabJWS builds the inner externalAccountBinding JWS: the account's
// public JWK, HMAC-signed with the CA-provided key, bound to the
// newAccount URL. The inner JWS carries no nonce.
func eabJWS(eab *EABCredentials, accountKey crypto.Signer, newAccountURL string) (json.RawMessage, error) {
	hmacKey, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(eab.HMACKey, "="))
	if err != nil {
		return nil, errors.Wrap(err, "invalid external account binding HMAC key")
	}

	jwk := keys.JWKForSigner(accountKey)
	payload, err := json.Marshal(&jwk)
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Key:       hmacKey,
		Algorithm: jose.HS256,
	}, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"kid": eab.KeyID,
			"url": newAccountURL,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build external account binding signer")
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign external account binding")
	}
	return json.RawMessage(signed.FullSerialize()), nil
}

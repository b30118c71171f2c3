package client

import (
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"

	"github.com/pkg/errors"

	"github.com/acmedriver/acmedriver/acme/keys"
	"github.com/acmedriver/acmedriver/acme/resources"
	acmenet "github.com/acmedriver/acmedriver/net"
)

// NewAccount generates a fresh account keypair and registers an account
// with the ACME server. If rsaBits is non-zero an RSA key of that size is
// generated, otherwise an EC key on the P-256 curve. The eab credentials
// are optional; CAs that require external account binding reject
// registrations without them.
//
// Remember to persist the returned Account's key somewhere to not lose
// access to the account.
func (c *Client) NewAccount(contact []string, tosAgreed bool, rsaBits int, eab *EABCredentials) (*resources.Account, error) {
	signer, err := keys.NewSigner(rsaBits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate account key")
	}

	acct := &resources.Account{
		Data: resources.AccountData{
			Contact:              contact,
			TermsOfServiceAgreed: tosAgreed,
		},
		Signer: signer,
	}
	return c.RegisterAccount(acct, eab)
}

// RegisterAccount registers the given in-memory account with the ACME
// server. The account must carry a Signer and must not have been
// registered before. On success the server assigned location URL and the
// returned account data are stored on the account and the account becomes
// the client's active account.
//
// The signed request is rebuilt on every attempt since a badNonce retry
// needs a fresh nonce in the protected header.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3
func (c *Client) RegisterAccount(acct *resources.Account, eab *EABCredentials) (*resources.Account, error) {
	if acct.Signer == nil {
		return nil, errors.New("register: account has no key")
	}
	if acct.Location != "" {
		return nil, errors.Errorf("register: account already exists under %q", acct.Location)
	}

	resp, err := c.withRetry(func(dir *resources.Directory, nonce string) (*signedRequest, error) {
		payload := struct {
			Contact                []string        `json:"contact,omitempty"`
			TermsOfServiceAgreed   bool            `json:"termsOfServiceAgreed,omitempty"`
			ExternalAccountBinding json.RawMessage `json:"externalAccountBinding,omitempty"`
		}{
			Contact:              acct.Data.Contact,
			TermsOfServiceAgreed: acct.Data.TermsOfServiceAgreed,
		}
		if eab != nil {
			inner, err := eabJWS(eab, acct.Signer, dir.NewAccount)
			if err != nil {
				return nil, err
			}
			payload.ExternalAccountBinding = inner
		}
		body, err := json.Marshal(&payload)
		if err != nil {
			return nil, err
		}

		signed, err := c.sign(dir.NewAccount, body, SigningOptions{
			EmbedKey: true,
			Signer:   acct.Signer,
			Nonce:    nonce,
		})
		if err != nil {
			return nil, err
		}
		return &signedRequest{
			Method:         http.MethodPost,
			URL:            dir.NewAccount,
			Body:           signed,
			ExpectedStatus: http.StatusCreated,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	location, err := resp.LocationRequired()
	if err != nil {
		return nil, errors.Wrap(err, "register: server returned success without an account URL")
	}
	if err := resp.JSON(&acct.Data); err != nil {
		return nil, errors.Wrap(err, "register: failed to parse account response")
	}

	acct.Location = location
	c.account = acct
	return acct, nil
}

// UpdateAccount POSTs arbitrary caller-supplied data to the account URL
// and replaces the in-memory account data with the server's response.
//
// Low-level: the data is passed to the server as-is, it is up to the
// caller to know what to send.
func (c *Client) UpdateAccount(data interface{}) (*resources.Account, error) {
	acct, err := c.needAccount()
	if err != nil {
		return nil, err
	}

	resp, err := c.signedPost(acct.Location, data)
	if err != nil {
		return nil, err
	}

	if err := resp.JSON(&acct.Data); err != nil {
		return nil, errors.Wrap(err, "update: failed to parse account response")
	}
	return acct, nil
}

// NewOrder creates a new certificate order for a set of domains.
//
// Remember to persist the order URL (ideally along with the account) in
// order to finish and query it later on.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (c *Client) NewOrder(domains []string) (*resources.Order, error) {
	if _, err := c.needAccount(); err != nil {
		return nil, err
	}

	identifiers := make([]resources.Identifier, 0, len(domains))
	for _, domain := range domains {
		identifiers = append(identifiers, resources.Identifier{
			Type:  "dns",
			Value: domain,
		})
	}

	body, err := json.Marshal(struct {
		Identifiers []resources.Identifier `json:"identifiers"`
	}{
		Identifiers: identifiers,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.withRetry(func(dir *resources.Directory, nonce string) (*signedRequest, error) {
		signed, err := c.sign(dir.NewOrder, body, SigningOptions{Nonce: nonce})
		if err != nil {
			return nil, err
		}
		return &signedRequest{
			Method:         http.MethodPost,
			URL:            dir.NewOrder,
			Body:           signed,
			ExpectedStatus: http.StatusCreated,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	location, err := resp.LocationRequired()
	if err != nil {
		return nil, errors.Wrap(err, "createOrder: server returned success without an order URL")
	}

	var order resources.Order
	if err := resp.JSON(&order); err != nil {
		return nil, errors.Wrap(err, "createOrder: failed to parse order response")
	}
	order.Location = location
	return &order, nil
}

// GetAuthorization fetches and deserializes the Authorization at the
// given URL via POST-as-GET.
func (c *Client) GetAuthorization(url string) (*resources.Authorization, error) {
	resp, err := c.PostAsGet(url)
	if err != nil {
		return nil, err
	}
	var authz resources.Authorization
	if err := resp.JSON(&authz); err != nil {
		return nil, errors.Wrap(err, "failed to parse authorization")
	}
	authz.Location = url
	return &authz, nil
}

// GetOrder fetches and deserializes the Order at the given URL via
// POST-as-GET.
func (c *Client) GetOrder(url string) (*resources.Order, error) {
	resp, err := c.PostAsGet(url)
	if err != nil {
		return nil, err
	}
	var order resources.Order
	if err := resp.JSON(&order); err != nil {
		return nil, errors.Wrap(err, "failed to parse order")
	}
	order.Location = url
	return &order, nil
}

// PostAsGet performs a low level POST-as-GET request: an authenticated
// POST with an empty payload that ACME mandates in place of a plain GET.
//
// See https://tools.ietf.org/html/rfc8555#section-6.3
func (c *Client) PostAsGet(url string) (*acmenet.Response, error) {
	if _, err := c.needAccount(); err != nil {
		return nil, err
	}

	return c.withRetry(func(dir *resources.Directory, nonce string) (*signedRequest, error) {
		signed, err := c.sign(url, []byte{}, SigningOptions{Nonce: nonce})
		if err != nil {
			return nil, err
		}
		return &signedRequest{
			Method:         http.MethodPost,
			URL:            url,
			Body:           signed,
			ExpectedStatus: http.StatusOK,
		}, nil
	})
}

// signedPost performs a low level authenticated POST of the given data.
func (c *Client) signedPost(url string, data interface{}) (*acmenet.Response, error) {
	if _, err := c.needAccount(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return c.withRetry(func(dir *resources.Directory, nonce string) (*signedRequest, error) {
		signed, err := c.sign(url, body, SigningOptions{Nonce: nonce})
		if err != nil {
			return nil, err
		}
		return &signedRequest{
			Method:         http.MethodPost,
			URL:            url,
			Body:           signed,
			ExpectedStatus: http.StatusOK,
		}, nil
	})
}

// RequestChallengeValidation POSTs an empty JSON object to a challenge
// URL to signal the server to begin validation. Afterwards the challenge
// should be polled.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5.1
func (c *Client) RequestChallengeValidation(url string) (*resources.Challenge, error) {
	resp, err := c.signedPost(url, struct{}{})
	if err != nil {
		return nil, err
	}
	var challenge resources.Challenge
	if err := resp.JSON(&challenge); err != nil {
		return nil, errors.Wrap(err, "failed to parse challenge")
	}
	return &challenge, nil
}

// Finalize submits the DER encoded CSR to an order's finalize URL.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (c *Client) Finalize(url string, csrDER []byte) error {
	payload := struct {
		CSR string `json:"csr"`
	}{
		CSR: base64.RawURLEncoding.EncodeToString(csrDER),
	}
	_, err := c.signedPost(url, &payload)
	return err
}

// GetCertificate downloads a certificate via an order's certificate URL.
// The body is the PEM certificate chain.
func (c *Client) GetCertificate(url string) ([]byte, error) {
	resp, err := c.PostAsGet(url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// RevokeCertificate revokes an existing certificate, provided in PEM or
// DER form, with an optional RFC 5280 reason code. The response body is
// discarded on success.
//
// See https://tools.ietf.org/html/rfc8555#section-7.6
func (c *Client) RevokeCertificate(certificate []byte, reason *int) error {
	if _, err := c.needAccount(); err != nil {
		return err
	}

	der := certificate
	if block, _ := pem.Decode(certificate); block != nil {
		der = block.Bytes
	}

	payload := struct {
		Certificate string `json:"certificate"`
		Reason      *int   `json:"reason,omitempty"`
	}{
		Certificate: base64.RawURLEncoding.EncodeToString(der),
		Reason:      reason,
	}
	body, err := json.Marshal(&payload)
	if err != nil {
		return err
	}

	_, err = c.withRetry(func(dir *resources.Directory, nonce string) (*signedRequest, error) {
		signed, err := c.sign(dir.RevokeCert, body, SigningOptions{Nonce: nonce})
		if err != nil {
			return nil, err
		}
		return &signedRequest{
			Method:         http.MethodPost,
			URL:            dir.RevokeCert,
			Body:           signed,
			ExpectedStatus: http.StatusOK,
		}, nil
	})
	return err
}

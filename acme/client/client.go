// Package client provides a low-level ACME v2 client.
package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/acmedriver/acmedriver/acme/keys"
	"github.com/acmedriver/acmedriver/acme/resources"
	acmenet "github.com/acmedriver/acmedriver/net"
)

// Client drives the ACME protocol exchange with one server. A Client has
// at most one Account associated with it; the account's keypair signs
// every authenticated request. The server Directory and the current
// anti-replay nonce are cached on the Client between requests.
//
// A Client is synchronous and single-threaded: operations block the
// calling goroutine for the duration of each HTTP exchange and no two
// requests are issued concurrently from one instance, so the nonce state
// needs no locking, only correct sequencing. Using one Client from
// multiple goroutines at the same time is not supported; give each
// certificate-issuance flow its own Client.
type Client struct {
	// The ACME server's directory URL.
	DirectoryURL string

	account   *resources.Account
	directory *resources.Directory
	net       *acmenet.ACMENet
	// The value of the last seen Replay-Nonce header. Used for the next
	// signing operation.
	nonce string
}

// Config contains configuration options provided to New when creating
// a Client instance.
type Config struct {
	// A fully qualified URL for the ACME server's directory resource. Must
	// include an HTTP/HTTPS protocol prefix. Mandatory.
	DirectoryURL string
	// An optional file path to one or more PEM encoded CA certificates to
	// be used as trust roots for HTTPS requests to the ACME server.
	CACert string
	// An optional proxy URL for requests to the ACME server.
	Proxy string
}

func (conf *Config) normalize() error {
	conf.DirectoryURL = strings.TrimSpace(conf.DirectoryURL)

	if conf.DirectoryURL == "" {
		return fmt.Errorf("DirectoryURL must not be empty")
	}
	u, err := url.Parse(conf.DirectoryURL)
	if err != nil {
		return fmt.Errorf("DirectoryURL invalid: %s", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("DirectoryURL must use an http:// or https:// scheme")
	}
	return nil
}

// New creates a Client from the given Config. The client has no account
// associated with it yet; the next step is to attach an existing Account
// with SetAccount or register a new one with NewAccount.
func New(config Config) (*Client, error) {
	if err := config.normalize(); err != nil {
		return nil, err
	}

	net := acmenet.New(config.CACert)
	if config.Proxy != "" {
		net.SetProxy(config.Proxy)
	}

	return &Client{
		DirectoryURL: config.DirectoryURL,
		net:          net,
	}, nil
}

// SetAccount attaches a previously registered account to the client.
func (c *Client) SetAccount(acct *resources.Account) {
	c.account = acct
}

// Account returns the client's account, or nil if none is attached.
func (c *Client) Account() *resources.Account {
	return c.account
}

// SetProxy stores a proxy URL for ACME requests. The transport handle is
// rebuilt lazily on the next request.
func (c *Client) SetProxy(proxy string) {
	c.net.SetProxy(proxy)
}

// TermsOfServiceURL returns the terms-of-service URL advertised in the
// server's directory metadata. This may fetch the directory.
func (c *Client) TermsOfServiceURL() (string, error) {
	dir, err := c.Directory()
	if err != nil {
		return "", err
	}
	return dir.TermsOfServiceURL(), nil
}

// KeyAuthorization computes the key authorization of the given challenge
// token with the account key.
func (c *Client) KeyAuthorization(token string) (string, error) {
	acct, err := c.needAccount()
	if err != nil {
		return "", err
	}
	return keys.KeyAuthorization(acct.Signer, token), nil
}

// DNS01TXTValue computes the TXT record value for a DNS-01 challenge
// token: the base64url encoded SHA-256 digest of the key authorization.
func (c *Client) DNS01TXTValue(token string) (string, error) {
	keyAuth, err := c.KeyAuthorization(token)
	if err != nil {
		return "", err
	}
	return keys.DNS01TXTValue(keyAuth), nil
}

func (c *Client) needAccount() (*resources.Account, error) {
	if c.account == nil {
		return nil, ErrNoAccount
	}
	return c.account, nil
}

package client

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/acmedriver/acmedriver/acme"
	acmenet "github.com/acmedriver/acmedriver/net"
)

// updateNonce stores the nonce carried by the given response, if any, and
// reports whether one was present. At most one nonce is held at a time;
// a response nonce always replaces the held one.
func (c *Client) updateNonce(resp *acmenet.Response) bool {
	if resp.Nonce == "" {
		return false
	}
	c.nonce = resp.Nonce
	return true
}

// nonceValue returns the currently held nonce, fetching a fresh one from
// the given newNonce endpoint if none is held.
func (c *Client) nonceValue(newNonceURL string) (string, error) {
	if c.nonce == "" {
		if err := c.fetchNonce(newNonceURL); err != nil {
			return "", err
		}
	}
	return c.nonce, nil
}

// fetchNonce performs a HEAD request against the newNonce endpoint and
// stores the returned nonce. A reply without a nonce header is a protocol
// error.
//
// See https://tools.ietf.org/html/rfc8555#section-7.2
func (c *Client) fetchNonce(newNonceURL string) error {
	resp, err := c.net.Execute(http.MethodHead, newNonceURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to get HEAD of newNonce URL")
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("HEAD on newNonce URL returned error status (%d)", resp.StatusCode)
	}
	if !c.updateNonce(resp) {
		return fmt.Errorf("newNonce URL did not return a %s header", acme.REPLAY_NONCE_HEADER)
	}
	return nil
}

// RefreshNonce discards the held nonce and fetches a fresh one. This is
// normally not required: nonces are updated automatically from every
// response, including badNonce errors.
func (c *Client) RefreshNonce() error {
	dir, err := c.Directory()
	if err != nil {
		return err
	}
	return c.fetchNonce(dir.NewNonce)
}

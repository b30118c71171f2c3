package client

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/acmedriver/acmedriver/acme"
	"github.com/acmedriver/acmedriver/acme/resources"
	acmenet "github.com/acmedriver/acmedriver/net"
)

// signedRequest is one fully built, signed exchange ready for execution.
type signedRequest struct {
	Method string
	URL    string
	Body   []byte
	// The status code a successful reply must carry.
	ExpectedStatus int
}

// runRequest executes the request and unconditionally harvests a fresh
// nonce from the response, success or error. Successful replies must
// match the expected status code. Error replies are parsed as ACME
// problem documents: a badNonce problem becomes the retryable ErrBadNonce
// if a replacement nonce was present, and a fatal protocol error if not
// (retrying with the stale nonce would loop forever). Any other problem
// is returned to the caller verbatim.
func (c *Client) runRequest(req *signedRequest) (*acmenet.Response, error) {
	resp, err := c.net.Execute(req.Method, req.URL, req.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to execute %s request to %s", req.Method, req.URL)
	}

	gotNonce := c.updateNonce(resp)

	if resp.IsSuccess() {
		if resp.StatusCode != req.ExpectedStatus {
			return nil, fmt.Errorf("server responded with unexpected status code %d (expected %d)",
				resp.StatusCode, req.ExpectedStatus)
		}
		return resp, nil
	}

	var problem resources.Problem
	if err := resp.JSON(&problem); err != nil {
		return nil, errors.Wrap(err, "error status with improper ACME problem document")
	}
	if problem.Status == 0 {
		problem.Status = resp.StatusCode
	}

	if problem.Type == acme.BAD_NONCE_PROBLEM {
		if !gotNonce {
			return nil, fmt.Errorf("badNonce error without a new %s header", acme.REPLAY_NONCE_HEADER)
		}
		return nil, ErrBadNonce
	}

	return nil, &problem
}

// badNonceRetries bounds how many times an operation is retried after
// a badNonce rejection before giving up.
const badNonceRetries = 3

type retry struct {
	attempts int
}

func (r *retry) tick() error {
	if r.attempts > badNonceRetries {
		return fmt.Errorf("kept getting a badNonce error")
	}
	r.attempts++
	return nil
}

// withRetry runs the badNonce retry loop shared by every mutating
// operation: obtain the directory and a nonce, build the signed request,
// execute it, and loop back for a fresh nonce on ErrBadNonce, bounded by
// badNonceRetries.
func (c *Client) withRetry(build func(dir *resources.Directory, nonce string) (*signedRequest, error)) (*acmenet.Response, error) {
	var r retry
	for {
		if err := r.tick(); err != nil {
			return nil, err
		}

		dir, err := c.Directory()
		if err != nil {
			return nil, err
		}
		nonce, err := c.nonceValue(dir.NewNonce)
		if err != nil {
			return nil, err
		}
		req, err := build(dir, nonce)
		if err != nil {
			return nil, err
		}

		resp, err := c.runRequest(req)
		if errors.Is(err, ErrBadNonce) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

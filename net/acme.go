// Package net provides the HTTP transport used to reach an ACME server.
package net

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"

	"github.com/acmedriver/acmedriver/acme"
)

const (
	version       = "0.1.0"
	userAgentBase = "acmedriver"
	locale        = "en-us"

	// Responses larger than this are truncated. No ACME resource comes
	// close to this size.
	maxResponseBytes = 16 * 1024 * 1024
)

// Response holds the results of one HTTP exchange with the ACME server:
// the status code, the two protocol-critical headers, and the raw body.
// It is consumed immediately by the caller that issued the request and
// never persisted.
type Response struct {
	// The HTTP status code.
	StatusCode int
	// The raw response body.
	Body []byte
	// The Location header value, if any. Encodes the URL a created account
	// or order can be queried from.
	Location string
	// The Replay-Nonce header value, if any.
	Nonce string
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON deserializes the response body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// LocationRequired returns the Location header value, or an error if the
// response did not carry one.
func (r *Response) LocationRequired() (string, error) {
	if r.Location == "" {
		return "", fmt.Errorf("missing %s header", acme.LOCATION_HEADER)
	}
	return r.Location, nil
}

// ACMENet performs HTTP exchanges with an ACME server. The underlying
// http.Client is built lazily so that proxy changes made before the first
// request (or between requests) take effect; SetProxy invalidates any
// cached client.
type ACMENet struct {
	caBundle string
	proxy    string
	client   *http.Client
}

// New creates an ACMENet. The caBundle argument is an optional file path
// to one or more PEM encoded CA certificates used as trust roots for HTTPS
// requests to the ACME server. If empty the system roots are used.
func New(caBundle string) *ACMENet {
	return &ACMENet{caBundle: caBundle}
}

// SetProxy stores a proxy URL to use for ACME requests and drops the
// cached HTTP client so the next request picks it up.
func (c *ACMENet) SetProxy(proxy string) {
	c.proxy = proxy
	c.client = nil
}

func (c *ACMENet) httpClient() (*http.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	transport := cleanhttp.DefaultPooledTransport()
	if c.caBundle != "" {
		pemBundle, err := os.ReadFile(c.caBundle)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CA bundle")
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pemBundle) {
			return nil, fmt.Errorf("no CA certificates found in %q", c.caBundle)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: roots}
	}
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set proxy")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c.client = &http.Client{Transport: transport}
	return c.client, nil
}

// Execute performs one HTTP exchange. Only GET, HEAD and POST are valid
// methods; POST bodies are sent with the JOSE content type. The returned
// Response captures the status, the Location and Replay-Nonce headers and
// the body regardless of the status code. Connection and TLS failures are
// returned as transport errors.
func (c *ACMENet) Execute(method, url string, body []byte) (*Response, error) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		return nil, fmt.Errorf("invalid http method: %q", method)
	}

	client, err := c.httpClient()
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "error building http request")
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", acme.JOSE_CONTENT_TYPE)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("%s %s (%s; %s)",
		userAgentBase, version, runtime.GOOS, runtime.GOARCH))
	req.Header.Set("Accept-Language", locale)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Location:   resp.Header.Get(acme.LOCATION_HEADER),
		Nonce:      resp.Header.Get(acme.REPLAY_NONCE_HEADER),
	}, nil
}

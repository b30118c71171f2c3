package net

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmedriver/acmedriver/acme"
)

func TestExecuteRejectsInvalidMethod(t *testing.T) {
	c := New("")
	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch, "BREW"} {
		_, err := c.Execute(method, "http://127.0.0.1/", nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid http method")
	}
}

func TestExecuteCapturesProtocolHeaders(t *testing.T) {
	var seen struct {
		method      string
		contentType string
		userAgent   string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.method = r.Method
		seen.contentType = r.Header.Get("Content-Type")
		seen.userAgent = r.Header.Get("User-Agent")
		w.Header().Set(acme.REPLAY_NONCE_HEADER, "nonce-abc")
		w.Header().Set(acme.LOCATION_HEADER, "https://example.com/acct/1")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"status":"valid"}`)
	}))
	defer srv.Close()

	c := New("")
	resp, err := c.Execute(http.MethodPost, srv.URL, []byte(`{"protected":"..."}`))
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, seen.method)
	require.Equal(t, acme.JOSE_CONTENT_TYPE, seen.contentType)
	require.True(t, strings.HasPrefix(seen.userAgent, userAgentBase+" "+version))

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, resp.IsSuccess())
	require.Equal(t, "nonce-abc", resp.Nonce)
	require.Equal(t, "https://example.com/acct/1", resp.Location)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, resp.JSON(&body))
	require.Equal(t, "valid", body.Status)

	location, err := resp.LocationRequired()
	require.NoError(t, err)
	require.Equal(t, "https://example.com/acct/1", location)
}

func TestExecuteErrorStatusStillReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"urn:ietf:params:acme:error:malformed"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("")
	resp, err := c.Execute(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	require.False(t, resp.IsSuccess())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(resp.Body), "malformed")

	_, err = resp.LocationRequired()
	require.Error(t, err)
}

func TestHeadRequestSendsNoContentType(t *testing.T) {
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.Header().Set(acme.REPLAY_NONCE_HEADER, "nonce-head")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("")
	resp, err := c.Execute(http.MethodHead, srv.URL, nil)
	require.NoError(t, err)
	require.Empty(t, contentType)
	require.Equal(t, "nonce-head", resp.Nonce)
}

func TestSetProxyDropsCachedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("")
	_, err := c.Execute(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	require.NotNil(t, c.client)

	c.SetProxy("http://127.0.0.1:3128")
	require.Nil(t, c.client)

	// An unparsable proxy URL surfaces when the client is rebuilt.
	c.SetProxy("://bad")
	_, err = c.Execute(http.MethodGet, srv.URL, nil)
	require.Error(t, err)
}

func TestMissingCABundle(t *testing.T) {
	c := New("/does/not/exist.pem")
	_, err := c.Execute(http.MethodGet, "https://127.0.0.1/", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "CA bundle")
}

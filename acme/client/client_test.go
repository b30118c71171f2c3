package client

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"

	"github.com/acmedriver/acmedriver/acme"
	"github.com/acmedriver/acmedriver/acme/resources"
)

// acmeServer is an httptest backed ACME fixture with scriptable nonce
// faults. Paths mirror a typical directory layout; the fault knobs are
// consumed per-path so a test can make exactly N requests fail with
// badNonce before succeeding.
type acmeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	nonceCounter int
	lastNonce    string
	posts        map[string]int
	badNonces    map[string]int
	// Fault knobs.
	dirFailures    int
	dropLocation   bool
	dropFreshNonce bool
	orderProblem   bool
	// Captured request payloads.
	lastFinalize struct {
		CSR string `json:"csr"`
	}
	lastRevoke struct {
		Certificate string `json:"certificate"`
		Reason      *int   `json:"reason"`
	}
	lastEAB json.RawMessage
}

const certChainFixture = "-----BEGIN CERTIFICATE-----\nMIIB...\n-----END CERTIFICATE-----\n"

func newACMEServer(t *testing.T) *acmeServer {
	s := &acmeServer{
		t:         t,
		posts:     map[string]int{},
		badNonces: map[string]int{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *acmeServer) url(path string) string {
	return s.srv.URL + path
}

func (s *acmeServer) issueNonce(w http.ResponseWriter) {
	s.nonceCounter++
	s.lastNonce = fmt.Sprintf("nonce-%d", s.nonceCounter)
	w.Header().Set(acme.REPLAY_NONCE_HEADER, s.lastNonce)
}

func (s *acmeServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// jwsPayload extracts the payload of a signed request body without
// verifying the signature.
func jwsPayload(t *testing.T, r *http.Request) []byte {
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	jws, err := jose.ParseSigned(string(body),
		[]jose.SignatureAlgorithm{jose.ES256, jose.RS256})
	require.NoError(t, err)
	return jws.UnsafePayloadWithoutVerification()
}

func (s *acmeServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	if r.Method == http.MethodPost {
		s.posts[path]++
		if s.badNonces[path] > 0 {
			s.badNonces[path]--
			if !s.dropFreshNonce {
				s.issueNonce(w)
			}
			s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"type":   acme.BAD_NONCE_PROBLEM,
				"detail": "stale nonce",
			})
			return
		}
	}

	switch path {
	case "/dir":
		if s.dirFailures > 0 {
			s.dirFailures--
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"newNonce":   s.url("/new-nonce"),
			"newAccount": s.url("/new-acct"),
			"newOrder":   s.url("/new-order"),
			"revokeCert": s.url("/revoke"),
			"meta": map[string]interface{}{
				"termsOfService": "https://example.com/tos",
			},
		})
	case "/new-nonce":
		s.issueNonce(w)
		w.WriteHeader(http.StatusOK)
	case "/new-acct":
		var req struct {
			ExternalAccountBinding json.RawMessage `json:"externalAccountBinding"`
		}
		require.NoError(s.t, json.Unmarshal(jwsPayload(s.t, r), &req))
		s.lastEAB = req.ExternalAccountBinding
		s.issueNonce(w)
		if !s.dropLocation {
			w.Header().Set(acme.LOCATION_HEADER, s.url("/acct/1"))
		}
		s.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"status":  "valid",
			"contact": []string{"mailto:admin@example.com"},
		})
	case "/acct/1":
		s.issueNonce(w)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "valid",
			"contact": []string{"mailto:updated@example.com"},
		})
	case "/new-order":
		s.issueNonce(w)
		if s.orderProblem {
			s.writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"type":   "urn:ietf:params:acme:error:unauthorized",
				"detail": "account deactivated",
				"status": http.StatusForbidden,
			})
			return
		}
		w.Header().Set(acme.LOCATION_HEADER, s.url("/order/1"))
		s.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"status":         "pending",
			"identifiers":    []map[string]string{{"type": "dns", "value": "example.com"}},
			"authorizations": []string{s.url("/authz/1")},
			"finalize":       s.url("/finalize"),
		})
	case "/order/1":
		s.issueNonce(w)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "ready",
			"identifiers":    []map[string]string{{"type": "dns", "value": "example.com"}},
			"authorizations": []string{s.url("/authz/1")},
			"finalize":       s.url("/finalize"),
		})
	case "/authz/1":
		s.issueNonce(w)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "pending",
			"identifier": map[string]string{"type": "dns", "value": "example.com"},
			"challenges": []map[string]string{
				{"type": "dns-01", "url": s.url("/chall/dns"), "token": "tok-dns", "status": "pending"},
				{"type": "http-01", "url": s.url("/chall/http"), "token": "tok-http", "status": "pending"},
			},
		})
	case "/chall/dns":
		s.issueNonce(w)
		s.writeJSON(w, http.StatusOK, map[string]string{
			"type": "dns-01", "url": s.url("/chall/dns"), "token": "tok-dns", "status": "processing",
		})
	case "/finalize":
		require.NoError(s.t, json.Unmarshal(jwsPayload(s.t, r), &s.lastFinalize))
		s.issueNonce(w)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "valid",
		})
	case "/cert":
		s.issueNonce(w)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(certChainFixture))
	case "/revoke":
		require.NoError(s.t, json.Unmarshal(jwsPayload(s.t, r), &s.lastRevoke))
		s.issueNonce(w)
		w.WriteHeader(http.StatusOK)
	case "/plain":
		s.issueNonce(w)
		s.writeJSON(w, http.StatusOK, map[string]string{})
	case "/no-nonce":
		s.writeJSON(w, http.StatusOK, map[string]string{})
	default:
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"type":   "urn:ietf:params:acme:error:malformed",
			"detail": "no such resource",
			"status": http.StatusNotFound,
		})
	}
}

func newTestClient(t *testing.T, s *acmeServer) *Client {
	c, err := New(Config{DirectoryURL: s.url("/dir")})
	require.NoError(t, err)
	return c
}

func registerTestAccount(t *testing.T, c *Client) *resources.Account {
	acct, err := c.NewAccount([]string{"mailto:admin@example.com"}, true, 0, nil)
	require.NoError(t, err)
	return acct
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{DirectoryURL: "not a url at all\x7f"})
	require.Error(t, err)

	_, err = New(Config{DirectoryURL: "ftp://example.com/dir"})
	require.Error(t, err)
}

func TestRegisterAccount(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)

	acct := registerTestAccount(t, c)
	require.Equal(t, s.url("/acct/1"), acct.Location)
	require.Equal(t, "valid", acct.Data.Status)
	require.Same(t, acct, c.Account())
}

func TestRegisterAccountMissingLocation(t *testing.T) {
	s := newACMEServer(t)
	s.dropLocation = true
	c := newTestClient(t, s)

	_, err := c.NewAccount(nil, true, 0, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), acme.LOCATION_HEADER)
}

func TestRegisterAccountRetriesBadNonce(t *testing.T) {
	s := newACMEServer(t)
	s.badNonces["/new-acct"] = 2
	c := newTestClient(t, s)

	acct := registerTestAccount(t, c)
	require.Equal(t, s.url("/acct/1"), acct.Location)
	require.Equal(t, 3, s.posts["/new-acct"])
}

func TestBadNonceRetriesExhausted(t *testing.T) {
	s := newACMEServer(t)
	s.badNonces["/new-acct"] = 100
	c := newTestClient(t, s)

	_, err := c.NewAccount(nil, true, 0, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "kept getting a badNonce error")
	// One initial attempt plus three retries; the fourth badNonce reply
	// is fatal.
	require.Equal(t, 4, s.posts["/new-acct"])
}

func TestBadNonceWithoutFreshNonceIsFatal(t *testing.T) {
	s := newACMEServer(t)
	s.badNonces["/new-acct"] = 1
	s.dropFreshNonce = true
	c := newTestClient(t, s)

	_, err := c.NewAccount(nil, true, 0, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBadNonce)
	require.Contains(t, err.Error(), acme.REPLAY_NONCE_HEADER)
	require.Equal(t, 1, s.posts["/new-acct"])
}

func TestNonceTracking(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)
	registerTestAccount(t, c)

	// Every response nonce replaces the held one.
	_, err := c.PostAsGet(s.url("/plain"))
	require.NoError(t, err)
	require.Equal(t, s.lastNonce, c.nonce)

	// A success reply without a nonce leaves the previous one in place.
	held := c.nonce
	_, err = c.PostAsGet(s.url("/no-nonce"))
	require.NoError(t, err)
	require.Equal(t, held, c.nonce)
}

func TestOperationsRequireAccount(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)

	_, err := c.NewOrder([]string{"example.com"})
	require.ErrorIs(t, err, ErrNoAccount)

	_, err = c.UpdateAccount(map[string]string{})
	require.ErrorIs(t, err, ErrNoAccount)

	err = c.RevokeCertificate([]byte{0x30}, nil)
	require.ErrorIs(t, err, ErrNoAccount)
}

func TestNewOrderAndAuthorization(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)
	registerTestAccount(t, c)

	order, err := c.NewOrder([]string{"example.com"})
	require.NoError(t, err)
	require.Equal(t, s.url("/order/1"), order.Location)
	require.Len(t, order.Authorizations, 1)

	authz, err := c.GetAuthorization(order.Authorizations[0])
	require.NoError(t, err)
	require.Equal(t, "example.com", authz.Identifier.Value)

	types := map[string]bool{}
	for _, chall := range authz.Challenges {
		types[chall.Type] = true
		require.NotEmpty(t, chall.Token)
		require.NotEmpty(t, chall.URL)
	}
	require.True(t, types[acme.CHALLENGE_DNS01])
	require.True(t, types[acme.CHALLENGE_HTTP01])
}

func TestRequestChallengeValidation(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)
	registerTestAccount(t, c)

	chall, err := c.RequestChallengeValidation(s.url("/chall/dns"))
	require.NoError(t, err)
	require.Equal(t, "processing", chall.Status)
}

func TestFinalizeAndCertificate(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)
	registerTestAccount(t, c)

	csr := []byte{0x30, 0x82, 0x01, 0x02}
	require.NoError(t, c.Finalize(s.url("/finalize"), csr))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(csr), s.lastFinalize.CSR)

	chain, err := c.GetCertificate(s.url("/cert"))
	require.NoError(t, err)
	require.Equal(t, certChainFixture, string(chain))
}

func TestRevokeCertificate(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)
	registerTestAccount(t, c)

	der := make([]byte, 32)
	_, err := rand.Read(der)
	require.NoError(t, err)

	reason := 1
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, c.RevokeCertificate(pemBytes, &reason))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(der), s.lastRevoke.Certificate)
	require.NotNil(t, s.lastRevoke.Reason)
	require.Equal(t, 1, *s.lastRevoke.Reason)

	// DER input is passed through unchanged.
	require.NoError(t, c.RevokeCertificate(der, nil))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(der), s.lastRevoke.Certificate)
	require.Nil(t, s.lastRevoke.Reason)
}

func TestUpdateAccount(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)
	acct := registerTestAccount(t, c)

	updated, err := c.UpdateAccount(map[string]interface{}{
		"contact": []string{"mailto:updated@example.com"},
	})
	require.NoError(t, err)
	require.Same(t, acct, updated)
	require.Equal(t, []string{"mailto:updated@example.com"}, acct.Data.Contact)
}

func TestDirectoryCacheNotPoisoned(t *testing.T) {
	s := newACMEServer(t)
	s.dirFailures = 1
	c := newTestClient(t, s)

	_, err := c.Directory()
	require.Error(t, err)

	dir, err := c.Directory()
	require.NoError(t, err)
	require.Equal(t, s.url("/new-nonce"), dir.NewNonce)

	tos, err := c.TermsOfServiceURL()
	require.NoError(t, err)
	require.Equal(t, "https://example.com/tos", tos)
}

func TestAPIProblemSurfacedVerbatim(t *testing.T) {
	s := newACMEServer(t)
	s.orderProblem = true
	c := newTestClient(t, s)
	registerTestAccount(t, c)

	_, err := c.NewOrder([]string{"example.com"})
	require.Error(t, err)

	var problem *resources.Problem
	require.ErrorAs(t, err, &problem)
	require.Equal(t, "urn:ietf:params:acme:error:unauthorized", problem.Type)
	require.Equal(t, "account deactivated", problem.Detail)
	require.Equal(t, http.StatusForbidden, problem.Status)
}

func TestRSAAccountKey(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)

	acct, err := c.NewAccount(nil, true, 2048, nil)
	require.NoError(t, err)
	require.Equal(t, s.url("/acct/1"), acct.Location)
}

func TestExternalAccountBinding(t *testing.T) {
	s := newACMEServer(t)
	c := newTestClient(t, s)

	hmacKey := make([]byte, 32)
	_, err := rand.Read(hmacKey)
	require.NoError(t, err)

	_, err = c.NewAccount(nil, true, 0, &EABCredentials{
		KeyID:   "eab-kid-1",
		HMACKey: base64.RawURLEncoding.EncodeToString(hmacKey),
	})
	require.NoError(t, err)

	binding := s.lastEAB
	require.NotEmpty(t, binding)

	// The inner JWS must verify with the shared HMAC key and name the
	// EAB key identifier.
	inner, err := jose.ParseSigned(string(binding), []jose.SignatureAlgorithm{jose.HS256})
	require.NoError(t, err)
	require.Equal(t, "eab-kid-1", inner.Signatures[0].Protected.KeyID)
	_, err = inner.Verify(hmacKey)
	require.NoError(t, err)
}

package plugin

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"

	"github.com/acmedriver/acmedriver/acme"
	"github.com/acmedriver/acmedriver/acme/client"
	"github.com/acmedriver/acmedriver/acme/resources"
	"github.com/acmedriver/acmedriver/tasklog"
)

// StandaloneServer satisfies HTTP-01 challenges by serving the key
// authorization from an ephemeral listener on port 80. Setup binds the
// dual-stack wildcard address first and falls back to the IPv4-only
// wildcard if that bind fails; on most platforms a successful dual-stack
// bind also serves IPv4 traffic, but that is environment-sensitive, not
// guaranteed.
//
// The accept loop runs on its own goroutine until Teardown stops it or
// the Setup context is cancelled. The latter guards against an abandoned
// issuance flow leaving port 80 permanently bound.
type StandaloneServer struct {
	stop func()
	// Overridden in tests; 0 means port 80.
	port int
}

// Stop cancels the accept loop and releases the bound port. Calling Stop
// on a responder that is not listening is a no-op.
func (s *StandaloneServer) Stop() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

func (s *StandaloneServer) listen() (net.Listener, error) {
	port := s.port
	if port == 0 {
		port = 80
	}
	// `[::]` first, then `0.0.0.0`
	listener, err := net.Listen("tcp", fmt.Sprintf("[::]:%d", port))
	if err != nil {
		listener, err = net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to bind challenge listener")
	}
	return listener, nil
}

// Setup stops any previous listener this responder owns, computes the
// key authorization for the http-01 challenge token and starts serving
// it under the well-known challenge path. It returns the challenge's
// validation URL.
func (s *StandaloneServer) Setup(ctx context.Context, c *client.Client, authorization *resources.Authorization, _ *Domain, task tasklog.Logger) (string, error) {
	s.Stop()

	challenge, err := extractChallenge(authorization, acme.CHALLENGE_HTTP01)
	if err != nil {
		return "", err
	}
	if challenge.Token == "" {
		return "", fmt.Errorf("missing token in challenge")
	}
	keyAuth, err := c.KeyAuthorization(challenge.Token)
	if err != nil {
		return "", err
	}
	path := acme.HTTP01_PATH_PREFIX + challenge.Token

	listener, err := s.listen()
	if err != nil {
		return "", err
	}

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && r.URL.Path == path {
				fmt.Fprint(w, keyAuth)
				return
			}
			http.Error(w, "Not found.", http.StatusNotFound)
		}),
	}

	// Accept loop on its own goroutine; each connection is served on its
	// own goroutine by the http.Server. Accept errors end Serve only when
	// the listener is closed.
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			task.LogMessage(fmt.Sprintf("challenge listener stopped: %s", err))
		}
	}()

	// Two cancellation paths share one server: the explicit Stop and the
	// Setup context going away mid-flight.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			server.Close()
		case <-done:
		}
	}()
	s.stop = func() {
		close(done)
		server.Close()
	}

	return challenge.URL, nil
}

// Teardown stops the listener. It is a no-op if Setup was never called
// or already failed before binding.
func (s *StandaloneServer) Teardown(_ context.Context, _ *client.Client, _ *resources.Authorization, _ *Domain, _ tasklog.Logger) error {
	s.Stop()
	return nil
}

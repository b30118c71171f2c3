package plugin

import (
	"context"
	"fmt"
	"log"

	"github.com/letsencrypt/challtestsrv"

	"github.com/acmedriver/acmedriver/acme"
	"github.com/acmedriver/acmedriver/acme/client"
	"github.com/acmedriver/acmedriver/acme/resources"
	"github.com/acmedriver/acmedriver/tasklog"
)

const (
	defaultTestHTTPPort = 5002
	defaultTestDNSPort  = 5252
)

// TestSrvPlugin answers challenges from an embedded challenge test
// server. It is meant for development against local CAs (pebble and
// friends) that are pointed at the configured ports instead of the real
// port 80 and public DNS. It serves both http-01 and dns-01, preferring
// http-01 when an authorization offers both.
type TestSrvPlugin struct {
	// Port the HTTP-01 responses are served on. Defaults to 5002.
	HTTPPort int `json:"http-port,omitempty"`
	// Port the DNS server answers TXT queries on. Defaults to 5252.
	DNSPort int `json:"dns-port,omitempty"`

	srv *challtestsrv.ChallSrv
	// Records added by the last Setup, removed again on Teardown.
	httpToken string
	dnsHost   string
}

func (p *TestSrvPlugin) ports() (int, int) {
	httpPort, dnsPort := p.HTTPPort, p.DNSPort
	if httpPort == 0 {
		httpPort = defaultTestHTTPPort
	}
	if dnsPort == 0 {
		dnsPort = defaultTestDNSPort
	}
	return httpPort, dnsPort
}

func (p *TestSrvPlugin) start(task tasklog.Logger) error {
	if p.srv != nil {
		return nil
	}
	httpPort, dnsPort := p.ports()
	srv, err := challtestsrv.New(challtestsrv.Config{
		HTTPOneAddrs: []string{fmt.Sprintf(":%d", httpPort)},
		DNSOneAddrs:  []string{fmt.Sprintf(":%d", dnsPort)},
		Log:          log.New(taskLogWriter{task}, "", 0),
	})
	if err != nil {
		return err
	}
	p.srv = srv
	go srv.Run()
	return nil
}

// taskLogWriter lets the challenge server's log.Logger feed the task log.
type taskLogWriter struct {
	task tasklog.Logger
}

func (w taskLogWriter) Write(b []byte) (int, error) {
	msg := string(b)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.task.LogMessage(msg)
	return len(b), nil
}

// Setup starts the embedded challenge server if necessary, registers the
// response for the preferred challenge of the authorization and returns
// that challenge's validation URL.
func (p *TestSrvPlugin) Setup(_ context.Context, c *client.Client, authorization *resources.Authorization, domain *Domain, task tasklog.Logger) (string, error) {
	if err := p.start(task); err != nil {
		return "", err
	}

	if challenge, err := extractChallenge(authorization, acme.CHALLENGE_HTTP01); err == nil {
		if challenge.Token == "" {
			return "", fmt.Errorf("missing token in challenge")
		}
		keyAuth, err := c.KeyAuthorization(challenge.Token)
		if err != nil {
			return "", err
		}
		p.srv.AddHTTPOneChallenge(challenge.Token, keyAuth)
		p.httpToken = challenge.Token
		return challenge.URL, nil
	}

	challenge, err := extractChallenge(authorization, acme.CHALLENGE_DNS01)
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
	host := fmt.Sprintf("%s.%s.", acme.DNS01_LABEL, domain.Domain)
	p.srv.AddDNSOneChallenge(host, keyAuth)
	p.dnsHost = host
	return challenge.URL, nil
}

// Teardown removes the registered challenge responses and shuts the
// embedded server down.
func (p *TestSrvPlugin) Teardown(_ context.Context, _ *client.Client, _ *resources.Authorization, _ *Domain, _ tasklog.Logger) error {
	if p.srv == nil {
		return nil
	}
	if p.httpToken != "" {
		p.srv.DeleteHTTPOneChallenge(p.httpToken)
		p.httpToken = ""
	}
	if p.dnsHost != "" {
		p.srv.DeleteDNSOneChallenge(p.dnsHost)
		p.dnsHost = ""
	}
	p.srv.Shutdown()
	p.srv = nil
	return nil
}

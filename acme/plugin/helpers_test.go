package plugin

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmedriver/acmedriver/acme"
	"github.com/acmedriver/acmedriver/acme/client"
	"github.com/acmedriver/acmedriver/acme/keys"
	"github.com/acmedriver/acmedriver/acme/resources"
)

// testClient returns a client with a registered-looking account whose key
// can compute key authorizations. No requests leave the process.
func testClient(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{DirectoryURL: "https://acme.invalid/dir"})
	require.NoError(t, err)

	signer, err := keys.NewSigner(0)
	require.NoError(t, err)
	c.SetAccount(&resources.Account{
		Location: "https://acme.invalid/acct/1",
		Signer:   signer,
	})
	return c
}

func authorizationWith(domain string, challenges ...resources.Challenge) *resources.Authorization {
	return &resources.Authorization{
		Identifier: resources.Identifier{Type: "dns", Value: domain},
		Status:     "pending",
		Challenges: challenges,
	}
}

func dnsChallenge(token string) resources.Challenge {
	return resources.Challenge{
		Type:   acme.CHALLENGE_DNS01,
		URL:    "https://acme.invalid/chall/dns",
		Token:  token,
		Status: "pending",
	}
}

func httpChallenge(token string) resources.Challenge {
	return resources.Challenge{
		Type:   acme.CHALLENGE_HTTP01,
		URL:    "https://acme.invalid/chall/http",
		Token:  token,
		Status: "pending",
	}
}

// recordingLog collects task log lines. Plugins log from multiple
// goroutines, so access is synchronized.
type recordingLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLog) LogMessage(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

func (l *recordingLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

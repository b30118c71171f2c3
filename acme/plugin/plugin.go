// Package plugin implements the challenge responders used to satisfy
// ACME authorizations: a DNS-01 plugin driving an external helper script
// and an HTTP-01 standalone responder, plus a challtestsrv-backed
// responder for development setups. Plugins are selected by the type tag
// of their stored configuration.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/acmedriver/acmedriver/acme/client"
	"github.com/acmedriver/acmedriver/acme/resources"
	"github.com/acmedriver/acmedriver/tasklog"
)

// Domain describes one domain a certificate is requested for, together
// with its challenge configuration.
type Domain struct {
	// The domain name authorizations are obtained for.
	Domain string `json:"domain"`
	// Optional alias domain the DNS-01 TXT record is published under
	// instead of the domain itself (CNAME redirection setups).
	Alias string `json:"alias,omitempty"`
	// Name of the configured challenge plugin responsible for this domain.
	Plugin string `json:"plugin,omitempty"`
}

// Plugin is the capability every challenge responder implements. Setup
// prepares whatever is necessary for the CA to observe the proof and
// returns the URL validation must be requested against; Teardown reverses
// it. Teardown must be safe to call even if Setup partially failed.
//
// Both methods may block on I/O and must write progress to the supplied
// task logger only.
type Plugin interface {
	Setup(ctx context.Context, c *client.Client, authorization *resources.Authorization, domain *Domain, task tasklog.Logger) (validationURL string, err error)
	Teardown(ctx context.Context, c *client.Client, authorization *resources.Authorization, domain *Domain, task tasklog.Logger) error
}

// ConfigSource supplies stored plugin configuration, keyed by plugin
// name: a type tag selecting the implementation plus its opaque
// configuration data.
type ConfigSource interface {
	PluginConfig(name string) (ty string, data json.RawMessage, ok bool)
}

// Load instantiates the plugin registered under the given name. It
// returns (nil, nil) when no such plugin is configured and an error for
// an unknown type tag.
func Load(source ConfigSource, name string) (Plugin, error) {
	ty, data, ok := source.PluginConfig(name)
	if !ok {
		return nil, nil
	}

	switch ty {
	case "dns":
		var p DNSPlugin
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("invalid dns plugin config for %q: %s", name, err)
		}
		return &p, nil
	case "standalone":
		// this one has no config
		return new(StandaloneServer), nil
	case "testsrv":
		var p TestSrvPlugin
		if len(data) > 0 {
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, fmt.Errorf("invalid testsrv plugin config for %q: %s", name, err)
			}
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("missing implementation for plugin type %q", ty)
	}
}

// extractChallenge finds the challenge of the given type in an
// authorization.
func extractChallenge(authorization *resources.Authorization, ty string) (*resources.Challenge, error) {
	for i := range authorization.Challenges {
		if authorization.Challenges[i].Type == ty {
			return &authorization.Challenges[i], nil
		}
	}
	return nil, fmt.Errorf("no supported challenge type (%s) found", ty)
}

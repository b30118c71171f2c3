package plugin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/acmedriver/acmedriver/acme"
	"github.com/acmedriver/acmedriver/acme/client"
	"github.com/acmedriver/acmedriver/acme/resources"
	"github.com/acmedriver/acmedriver/tasklog"
)

const (
	// The helper script implementing the per-provider DNS API calls.
	dnsHelperPath = "/usr/share/acmedriver/dns-challenge"
	// The helper always runs under a privilege-dropped identity.
	setprivPath = "/usr/bin/setpriv"
	// Seconds to wait for TXT record propagation when the plugin config
	// does not say otherwise.
	defaultValidationDelay = 30
)

// DNSPlugin satisfies DNS-01 challenges by publishing the TXT record
// through an external helper script. The helper is invoked as
//
//	setpriv --reuid nobody --regid nogroup --clear-groups --reset-env \
//	    -- /bin/bash <helper> <setup|teardown> <api> <domain-or-alias>
//
// with the computed TXT value and the plugin's configuration data piped
// to its standard input. Helper output is streamed line by line to the
// task log.
type DNSPlugin struct {
	// Identifier of the DNS provider API the helper should use.
	API string `json:"api"`
	// Free-form configuration data (typically credentials) handed to the
	// helper on standard input after the TXT value.
	Data string `json:"data,omitempty"`
	// Optional map of domain to alias; the TXT record for a mapped domain
	// is published under its alias.
	Aliases map[string]string `json:"aliases,omitempty"`
	// Seconds to sleep after setup to allow TXT record propagation across
	// resolvers. Defaults to 30; 0 disables the sleep.
	ValidationDelay *uint `json:"validation-delay,omitempty"`

	// Test seams. When unset the setpriv-wrapped helper above is used.
	helper     string
	newCommand func(ctx context.Context, action, target string) *exec.Cmd
}

func (p *DNSPlugin) helperPath() string {
	if p.helper != "" {
		return p.helper
	}
	return dnsHelperPath
}

func (p *DNSPlugin) buildCommand(ctx context.Context, action, target string) *exec.Cmd {
	if p.newCommand != nil {
		return p.newCommand(ctx, action, target)
	}
	return exec.CommandContext(ctx, setprivPath,
		"--reuid", "nobody",
		"--regid", "nogroup",
		"--clear-groups",
		"--reset-env",
		"--",
		"/bin/bash",
		p.helperPath(),
		action,
		p.API,
		target,
	)
}

// challengeTarget returns the domain the TXT record is published for:
// the per-domain alias if set, the plugin's alias map entry otherwise,
// and the domain itself as fallback.
func (p *DNSPlugin) challengeTarget(domain *Domain) string {
	if domain.Alias != "" {
		return domain.Alias
	}
	if alias, ok := p.Aliases[domain.Domain]; ok && alias != "" {
		return alias
	}
	return domain.Domain
}

func pipeToTaskLog(pipe io.Reader, task tasklog.Logger) error {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		task.LogMessage(scanner.Text())
	}
	return scanner.Err()
}

// action runs the helper for one operation ("setup" or "teardown") and
// returns the DNS-01 challenge's validation URL. The helper's three
// standard streams are serviced concurrently: writing stdin while both
// output streams are drained into the task log. Draining sequentially
// could deadlock with a helper blocking on a full pipe.
func (p *DNSPlugin) action(ctx context.Context, c *client.Client, authorization *resources.Authorization, domain *Domain, task tasklog.Logger, action string) (string, error) {
	challenge, err := extractChallenge(authorization, acme.CHALLENGE_DNS01)
	if err != nil {
		return "", err
	}
	if challenge.Token == "" {
		return "", fmt.Errorf("missing token in challenge")
	}

	txtValue, err := c.DNS01TXTValue(challenge.Token)
	if err != nil {
		return "", err
	}

	stdinData := append([]byte(txtValue), '\n')
	stdinData = append(stdinData, p.Data...)
	if stdinData[len(stdinData)-1] != '\n' {
		stdinData = append(stdinData, '\n')
	}

	cmd := p.buildCommand(ctx, action, p.challengeTarget(domain))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}

	if err := cmd.Start(); err != nil {
		return "", errors.Wrapf(err, "failed to spawn '%s %s'", p.helperPath(), action)
	}

	var group errgroup.Group
	group.Go(func() error {
		if _, err := stdin.Write(stdinData); err != nil {
			return err
		}
		return stdin.Close()
	})
	group.Go(func() error { return pipeToTaskLog(stdout, task) })
	group.Go(func() error { return pipeToTaskLog(stderr, task) })

	if err := group.Wait(); err != nil {
		if killErr := cmd.Process.Kill(); killErr != nil {
			task.LogMessage(fmt.Sprintf("failed to kill '%s %s' command: %s",
				p.helperPath(), action, killErr))
		}
		_ = cmd.Wait()
		return "", errors.Wrapf(err, "'%s' failed", p.helperPath())
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ExitCode is -1 when the process was killed by a signal.
			return "", fmt.Errorf("'%s %s' exited with error (%d)",
				p.helperPath(), action, exitErr.ExitCode())
		}
		return "", errors.Wrapf(err, "'%s %s' failed", p.helperPath(), action)
	}

	return challenge.URL, nil
}

// Setup publishes the TXT record through the helper script, waits out the
// configured propagation delay and returns the challenge validation URL.
func (p *DNSPlugin) Setup(ctx context.Context, c *client.Client, authorization *resources.Authorization, domain *Domain, task tasklog.Logger) (string, error) {
	validationURL, err := p.action(ctx, c, authorization, domain, task, "setup")
	if err != nil {
		return "", err
	}

	delay := uint(defaultValidationDelay)
	if p.ValidationDelay != nil {
		delay = *p.ValidationDelay
	}
	if delay > 0 {
		task.LogMessage(fmt.Sprintf("Sleeping %d seconds to wait for TXT record propagation", delay))
		select {
		case <-time.After(time.Duration(delay) * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return validationURL, nil
}

// Teardown removes the TXT record through the helper script.
func (p *DNSPlugin) Teardown(ctx context.Context, c *client.Client, authorization *resources.Authorization, domain *Domain, task tasklog.Logger) error {
	_, err := p.action(ctx, c, authorization, domain, task, "teardown")
	return err
}

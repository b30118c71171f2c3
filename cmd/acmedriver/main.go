// acmedriver is a non-interactive driver for ordering certificates from
// an ACME server. It registers (or restores) an account, creates an
// order, satisfies each authorization with the configured challenge
// plugin, finalizes the order with a freshly generated key and writes the
// issued chain to disk.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/acmedriver/acmedriver/acme/client"
	"github.com/acmedriver/acmedriver/acme/keys"
	"github.com/acmedriver/acmedriver/acme/plugin"
	"github.com/acmedriver/acmedriver/acme/resources"
	"github.com/acmedriver/acmedriver/tasklog"
)

const directoryDefault = "https://acme-staging-v02.api.letsencrypt.org/directory"

type config struct {
	DirectoryURL string `env:"ACME_DIRECTORY"`
	CACert       string `env:"ACME_CA_BUNDLE"`
	Proxy        string `env:"ACME_PROXY"`
	Contact      string `env:"ACME_CONTACT"`
	AccountPath  string `env:"ACME_ACCOUNT"`
	PluginsPath  string `env:"ACME_PLUGINS"`
}

func main() {
	log := initLogger()
	defer log.Sync()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalw("Invalid environment configuration", "error", err)
	}

	directory := flag.String("directory", firstNonEmpty(cfg.DirectoryURL, directoryDefault),
		"Directory URL for the ACME server")
	caCert := flag.String("ca", cfg.CACert,
		"CA certificate(s) for verifying ACME server HTTPS")
	proxy := flag.String("proxy", cfg.Proxy,
		"Optional proxy URL for ACME requests")
	contact := flag.String("contact", cfg.Contact,
		"Optional contact email address for the ACME account")
	accountPath := flag.String("account", firstNonEmpty(cfg.AccountPath, "account.json"),
		"JSON filepath to save/restore the ACME account to")
	pluginsPath := flag.String("plugins", cfg.PluginsPath,
		"JSON filepath with challenge plugin configuration")
	pluginName := flag.String("plugin", "standalone",
		"Name of the challenge plugin to satisfy authorizations with")
	domainsArg := flag.String("domains", "",
		"Comma separated list of domains to order a certificate for")
	out := flag.String("out", "certificate.pem",
		"Filepath the issued PEM chain is written to; the key is written next to it")
	rsaBits := flag.Int("rsa-bits", 0,
		"Generate an RSA account key of this size instead of an EC P-256 key")
	flag.Parse()

	domains := splitDomains(*domainsArg)
	if len(domains) == 0 {
		log.Fatal("No domains given, use -domains example.com[,www.example.com]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := client.New(client.Config{
		DirectoryURL: *directory,
		CACert:       *caCert,
		Proxy:        *proxy,
	})
	if err != nil {
		log.Fatalw("Unable to create ACME client", "error", err)
	}

	if err := loadOrRegisterAccount(c, *accountPath, *contact, *rsaBits, log); err != nil {
		log.Fatalw("Unable to set up ACME account", "error", err)
	}

	source, err := loadPluginConfig(*pluginsPath)
	if err != nil {
		log.Fatalw("Unable to load plugin configuration", "error", err)
	}

	if err := issue(ctx, c, domains, *pluginName, source, *out, log); err != nil {
		log.Fatalw("Certificate order failed", "error", err)
	}
}

func initLogger() *zap.SugaredLogger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := zap.Config{
		Encoding:      "json",
		Level:         zap.NewAtomicLevelAt(zapcore.InfoLevel),
		OutputPaths:   []string{"stdout"},
		EncoderConfig: encoderConfig,
	}.Build()

	return logger.Sugar()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitDomains(arg string) []string {
	var domains []string
	for _, d := range strings.Split(arg, ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// storedAccount is the on-disk representation of a registered account.
type storedAccount struct {
	Location string   `json:"location"`
	Contact  []string `json:"contact,omitempty"`
	Key      string   `json:"key"`
}

func restoreAccount(path string) (*resources.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var stored storedAccount
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	signer, err := keys.SignerFromPEM([]byte(stored.Key))
	if err != nil {
		return nil, err
	}
	return &resources.Account{
		Location: stored.Location,
		Data:     resources.AccountData{Contact: stored.Contact},
		Signer:   signer,
	}, nil
}

func saveAccount(path string, acct *resources.Account) error {
	keyPEM, err := keys.SignerToPEM(acct.Signer)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(storedAccount{
		Location: acct.Location,
		Contact:  acct.Data.Contact,
		Key:      string(keyPEM),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

func loadOrRegisterAccount(c *client.Client, path, contact string, rsaBits int, log *zap.SugaredLogger) error {
	if acct, err := restoreAccount(path); err == nil {
		c.SetAccount(acct)
		log.Infow("Restored account", "location", acct.Location)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	var contacts []string
	if contact != "" {
		contacts = append(contacts, "mailto:"+contact)
	}
	acct, err := c.NewAccount(contacts, true, rsaBits, nil)
	if err != nil {
		return err
	}
	log.Infow("Registered account", "location", acct.Location)
	return saveAccount(path, acct)
}

type pluginEntry struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// pluginFile is a plugin.ConfigSource backed by one JSON file mapping
// plugin names to entries. The "standalone" plugin is always available
// even without a file since it needs no configuration.
type pluginFile map[string]pluginEntry

func (f pluginFile) PluginConfig(name string) (string, json.RawMessage, bool) {
	if entry, ok := f[name]; ok {
		return entry.Type, entry.Data, true
	}
	if name == "standalone" {
		return "standalone", nil, true
	}
	return "", nil, false
}

func loadPluginConfig(path string) (plugin.ConfigSource, error) {
	if path == "" {
		return pluginFile{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file pluginFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	return file, nil
}

func issue(ctx context.Context, c *client.Client, domains []string, pluginName string, source plugin.ConfigSource, out string, log *zap.SugaredLogger) error {
	order, err := c.NewOrder(domains)
	if err != nil {
		return err
	}
	log.Infow("Created order", "url", order.Location, "authorizations", len(order.Authorizations))

	task := tasklog.NewZapLogger(log)
	for _, authzURL := range order.Authorizations {
		if err := satisfyAuthorization(ctx, c, authzURL, pluginName, source, task, log); err != nil {
			return err
		}
	}

	if err := await(ctx, "order to become ready", func() (bool, error) {
		updated, err := c.GetOrder(order.Location)
		if err != nil {
			return false, err
		}
		*order = *updated
		return order.Status == "ready" || order.Status == "valid", nil
	}); err != nil {
		return err
	}

	certKey, err := keys.NewSigner(0)
	if err != nil {
		return err
	}
	csr, err := keys.CSRDER(certKey, domains)
	if err != nil {
		return err
	}
	if err := c.Finalize(order.Finalize, csr); err != nil {
		return err
	}

	if err := await(ctx, "certificate issuance", func() (bool, error) {
		updated, err := c.GetOrder(order.Location)
		if err != nil {
			return false, err
		}
		if updated.Status == "invalid" {
			return false, fmt.Errorf("order became invalid: %v", updated.Error)
		}
		*order = *updated
		return order.Status == "valid" && order.Certificate != "", nil
	}); err != nil {
		return err
	}

	chain, err := c.GetCertificate(order.Certificate)
	if err != nil {
		return err
	}
	keyPEM, err := keys.SignerToPEM(certKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, chain, 0644); err != nil {
		return err
	}
	if err := os.WriteFile(out+".key", keyPEM, 0600); err != nil {
		return err
	}
	log.Infow("Certificate issued", "chain", out, "key", out+".key")
	return nil
}

func satisfyAuthorization(ctx context.Context, c *client.Client, authzURL, pluginName string, source plugin.ConfigSource, task tasklog.Logger, log *zap.SugaredLogger) error {
	authz, err := c.GetAuthorization(authzURL)
	if err != nil {
		return err
	}
	if authz.Status == "valid" {
		log.Infow("Authorization already valid", "identifier", authz.Identifier.Value)
		return nil
	}

	p, err := plugin.Load(source, pluginName)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no plugin named %q is configured", pluginName)
	}

	domain := &plugin.Domain{
		Domain: authz.Identifier.Value,
		Plugin: pluginName,
	}
	log.Infow("Setting up challenge", "identifier", authz.Identifier.Value, "plugin", pluginName)

	validationURL, err := p.Setup(ctx, c, authz, domain, task)
	defer func() {
		// Teardown is safe even after a partial setup.
		if err := p.Teardown(ctx, c, authz, domain, task); err != nil {
			log.Warnw("Challenge teardown failed", "identifier", authz.Identifier.Value, "error", err)
		}
	}()
	if err != nil {
		return err
	}

	if _, err := c.RequestChallengeValidation(validationURL); err != nil {
		return err
	}

	return await(ctx, fmt.Sprintf("authorization for %q", authz.Identifier.Value), func() (bool, error) {
		updated, err := c.GetAuthorization(authzURL)
		if err != nil {
			return false, err
		}
		switch updated.Status {
		case "valid":
			return true, nil
		case "pending":
			return false, nil
		default:
			return false, fmt.Errorf("authorization for %q became %q", authz.Identifier.Value, updated.Status)
		}
	})
}

const (
	pollInterval = 2 * time.Second
	pollAttempts = 60
)

func await(ctx context.Context, what string, check func() (bool, error)) error {
	for i := 0; i < pollAttempts; i++ {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("timed out waiting for %s", what)
}

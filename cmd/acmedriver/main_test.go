package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmedriver/acmedriver/acme/keys"
	"github.com/acmedriver/acmedriver/acme/resources"
)

func TestSplitDomains(t *testing.T) {
	require.Nil(t, splitDomains(""))
	require.Equal(t, []string{"example.com"}, splitDomains("example.com"))
	require.Equal(t,
		[]string{"example.com", "www.example.com"},
		splitDomains(" example.com, www.example.com ,"))
}

func TestAccountSaveRestore(t *testing.T) {
	signer, err := keys.NewSigner(0)
	require.NoError(t, err)
	acct := &resources.Account{
		Location: "https://acme.example.com/acct/42",
		Data:     resources.AccountData{Contact: []string{"mailto:admin@example.com"}},
		Signer:   signer,
	}

	path := filepath.Join(t.TempDir(), "account.json")
	require.NoError(t, saveAccount(path, acct))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	restored, err := restoreAccount(path)
	require.NoError(t, err)
	require.Equal(t, acct.Location, restored.Location)
	require.Equal(t, acct.Data.Contact, restored.Data.Contact)
	require.Equal(t, signer, restored.Signer)
}

func TestRestoreAccountMissingFile(t *testing.T) {
	_, err := restoreAccount(filepath.Join(t.TempDir(), "nope.json"))
	require.True(t, os.IsNotExist(err))
}

func TestPluginFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"cloudns":{"type":"dns","data":{"api":"cloudns"}}}`), 0600))

	source, err := loadPluginConfig(path)
	require.NoError(t, err)

	ty, data, ok := source.PluginConfig("cloudns")
	require.True(t, ok)
	require.Equal(t, "dns", ty)
	require.JSONEq(t, `{"api":"cloudns"}`, string(data))

	// The standalone responder needs no configuration and is always
	// available.
	ty, _, ok = source.PluginConfig("standalone")
	require.True(t, ok)
	require.Equal(t, "standalone", ty)

	_, _, ok = source.PluginConfig("nope")
	require.False(t, ok)

	// No file configured at all still serves standalone.
	source, err = loadPluginConfig("")
	require.NoError(t, err)
	_, _, ok = source.PluginConfig("standalone")
	require.True(t, ok)
}

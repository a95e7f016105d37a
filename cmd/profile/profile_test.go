package profile

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mmx233/QRcon/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withFlags sets the package flag values for one test.
func withFlags(t *testing.T, cfgFile, addr, server string, stdin bool) {
	t.Helper()
	prev := []any{configFile, address, serverName, passwordStdin}
	configFile, address, serverName, passwordStdin = cfgFile, addr, server, stdin
	t.Cleanup(func() {
		configFile = prev[0].(string)
		address = prev[1].(string)
		serverName = prev[2].(string)
		passwordStdin = prev[3].(bool)
	})
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`servers:
  - name: survival
    address: "mc.example.com"
    password: from-profile
  - name: creative
    address: "creative.example.com:25580"
default_server: survival
`), 0600))
	return path
}

func TestLoad_DefaultServer(t *testing.T) {
	withFlags(t, writeConfig(t), "", "", false)

	cfg, server, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Servers, 2)
	assert.Equal(t, "survival", server.Name)
	assert.Equal(t, "mc.example.com:25575", server.Address)
}

func TestLoad_NamedServer(t *testing.T) {
	withFlags(t, writeConfig(t), "", "creative", false)

	_, server, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "creative.example.com:25580", server.Address)
}

func TestLoad_UnknownServer(t *testing.T) {
	withFlags(t, writeConfig(t), "", "skyblock", false)

	_, _, err := Load()
	assert.ErrorContains(t, err, "unknown server")
}

func TestLoad_AddressOverridesProfile(t *testing.T) {
	withFlags(t, writeConfig(t), "10.0.0.5", "survival", false)

	_, server, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:25575", server.Address)
	assert.Equal(t, "from-profile", server.Password)
}

func TestLoad_AddressWithoutConfigFile(t *testing.T) {
	withFlags(t, filepath.Join(t.TempDir(), "missing.yaml"), "localhost:27015", "", false)

	cfg, server, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:27015", server.Address)
	assert.Equal(t, config.DefaultReadTimeout, cfg.ReadTimeout)
}

func TestLoad_NothingConfigured(t *testing.T) {
	withFlags(t, filepath.Join(t.TempDir(), "missing.yaml"), "", "", false)

	_, _, err := Load()
	assert.ErrorContains(t, err, "no --address given")
}

func TestLoad_InvalidAddress(t *testing.T) {
	withFlags(t, filepath.Join(t.TempDir(), "missing.yaml"), "host:99999", "", false)

	_, _, err := Load()
	assert.Error(t, err)
}

func TestPassword_Precedence(t *testing.T) {
	server := config.Server{Address: "a:1", Password: "from-profile"}

	withFlags(t, "", "", "", true)
	prevStdin := Stdin
	Stdin = bufio.NewReader(strings.NewReader("from-stdin\nlist\n"))
	defer func() { Stdin = prevStdin }()
	t.Setenv(config.EnvPrefix+"PASSWORD", "from-env")

	pw, err := Password(server)
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", pw)

	// the rest of stdin stays available
	rest, _ := Stdin.ReadString('\n')
	assert.Equal(t, "list\n", rest)

	passwordStdin = false
	pw, err = Password(server)
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)

	t.Setenv(config.EnvPrefix+"PASSWORD", "")
	pw, err = Password(server)
	require.NoError(t, err)
	assert.Equal(t, "from-profile", pw)
}

func TestPassword_StdinWithoutNewline(t *testing.T) {
	withFlags(t, "", "", "", true)
	prevStdin := Stdin
	Stdin = bufio.NewReader(strings.NewReader("secret"))
	defer func() { Stdin = prevStdin }()

	pw, err := Password(config.Server{})
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)
}

func TestOpenHistory(t *testing.T) {
	cfg := &config.Client{History: config.History{Disabled: true}}
	s, err := OpenHistory(cfg)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg = &config.Client{History: config.History{Path: filepath.Join(t.TempDir(), "h.db"), Limit: 5}}
	s, err = OpenHistory(cfg)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())
}

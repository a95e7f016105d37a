package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/Mmx233/QRcon/config"
	"github.com/Mmx233/QRcon/examples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// assertTemplateDefaults checks a decoded template against config/defaults.go
func assertTemplateDefaults(t *testing.T, cfg *config.Client) {
	t.Helper()

	assert.NotEmpty(t, cfg.Servers, "servers should not be empty")
	assert.NotEmpty(t, cfg.Servers[0].Address, "server address should not be empty")
	assert.NoError(t, config.ValidateAddress(cfg.Servers[0].Address))

	assert.Equal(t, config.DefaultDialTimeout, cfg.DialTimeout, "dial_timeout should match DefaultDialTimeout")
	assert.Equal(t, config.DefaultReadTimeout, cfg.ReadTimeout, "read_timeout should match DefaultReadTimeout")
	assert.Equal(t, config.DefaultWriteTimeout, cfg.WriteTimeout, "write_timeout should match DefaultWriteTimeout")
	assert.Equal(t, config.DefaultFragmentMode, cfg.Fragment.Mode)
	assert.Equal(t, config.DefaultGraceWindow, cfg.Fragment.GraceWindow)
	assert.Equal(t, config.DefaultMaxPayload, cfg.MaxPayload)
	assert.Equal(t, config.DefaultHistoryPath, cfg.History.Path)
	assert.Equal(t, config.DefaultHistoryLimit, cfg.History.Limit)

	assert.NoError(t, cfg.Validate())
}

// TestClientConfigTemplateFields verifies that the embedded client.yaml template
// parses into config.Client without unknown fields and uses the defaults.
func TestClientConfigTemplateFields(t *testing.T) {
	content, err := examples.ClientConfig()
	require.NoError(t, err, "failed to load client config template")

	var cfg config.Client
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true) // Error on unknown fields
	err = decoder.Decode(&cfg)
	require.NoError(t, err, "client.yaml contains unknown fields or invalid YAML")

	assertTemplateDefaults(t, &cfg)
}

// TestClientConfigTOMLTemplateFields does the same for client.toml.
func TestClientConfigTOMLTemplateFields(t *testing.T) {
	content, err := examples.ClientConfigTOML()
	require.NoError(t, err, "failed to load client TOML template")

	var cfg config.Client
	md, err := toml.Decode(string(content), &cfg)
	require.NoError(t, err, "client.toml is invalid TOML")
	assert.Empty(t, md.Undecoded(), "client.toml contains unknown keys")

	assertTemplateDefaults(t, &cfg)
}

func TestTemplate(t *testing.T) {
	for _, f := range []string{"yaml", "yml", "toml"} {
		content, err := Template(f)
		require.NoError(t, err)
		assert.NotEmpty(t, content)
	}

	_, err := Template("json")
	assert.Error(t, err)
}

func TestRunGenerate(t *testing.T) {
	dir := t.TempDir()
	outputFile = filepath.Join(dir, "config.toml")
	format = "toml"
	defer func() { outputFile, format = "", "yaml" }()

	require.NoError(t, runGenerate(Cmd, nil))

	cfg, err := config.LoadClientConfig(outputFile)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.DefaultServer)

	// refuses to overwrite
	err = runGenerate(Cmd, nil)
	assert.ErrorContains(t, err, "file already exists")

	info, err := os.Stat(outputFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

// Package profile resolves which server to talk to and how to log in,
// from flags, environment and the configuration file.
package profile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mmx233/QRcon/client"
	"github.com/Mmx233/QRcon/config"
	"github.com/Mmx233/QRcon/history"
	"github.com/Mmx233/QRcon/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configFile    = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	address       = tools.GetenvDefault(config.EnvPrefix+"ADDRESS", "")
	serverName    string
	passwordStdin bool

	// Stdin is shared by the password reader and the shell.
	Stdin = bufio.NewReader(os.Stdin)
)

// Register adds the connection flags to cmd and all its children.
func Register(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVarP(&configFile, "config", "c", configFile, "path of config file (.yaml or .toml)")
	fs.StringVarP(&serverName, "server", "s", "", "server name from the config file")
	fs.StringVarP(&address, "address", "a", address, "server address, overrides the config file")
	fs.BoolVar(&passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
}

// ConfigFile returns the value of the --config flag
func ConfigFile() string {
	return configFile
}

// Load returns the client configuration and the selected server.
// Without a config file, --address alone is enough.
func Load() (*config.Client, config.Server, error) {
	var cfg *config.Client
	var err error

	if _, statErr := os.Stat(configFile); statErr == nil {
		cfg, err = config.LoadClientConfig(configFile)
		if err != nil {
			return nil, config.Server{}, err
		}
	} else if address == "" {
		return nil, config.Server{}, fmt.Errorf("config file %s not found and no --address given", configFile)
	} else {
		cfg, err = config.NewClient(address)
		if err != nil {
			return nil, config.Server{}, err
		}
	}

	if address != "" {
		server := config.Server{Name: serverName, Address: config.NormalizeAddress(address)}
		if serverName != "" {
			// keep the profile's credentials for the overridden address
			if named, err := cfg.Select(serverName); err == nil {
				server.Password = named.Password
				server.PasswordFile = named.PasswordFile
			}
		}
		if err := config.ValidateAddress(server.Address); err != nil {
			return nil, config.Server{}, err
		}
		return cfg, server, nil
	}

	server, err := cfg.Select(serverName)
	if err != nil {
		return nil, config.Server{}, err
	}
	return cfg, server, nil
}

// Password resolves the login password. Sources are tried in order:
// --password-stdin, QRCON_PASSWORD, the profile password, the profile
// password file, then a hidden prompt when stdin is a terminal.
func Password(server config.Server) (string, error) {
	if passwordStdin {
		return readLine(Stdin)
	}
	if pw := os.Getenv(config.EnvPrefix + "PASSWORD"); pw != "" {
		return pw, nil
	}

	pw, err := server.ResolvePassword()
	if err == nil {
		return pw, nil
	}
	if !errors.Is(err, config.ErrNoPassword) {
		return "", err
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", server.Address)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Connect loads the profile, logs in and opens the history store.
func Connect(ctx context.Context) (*Runner, error) {
	cfg, server, err := Load()
	if err != nil {
		return nil, err
	}

	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}

	password, err := Password(server)
	if err != nil {
		return nil, err
	}

	session, err := c.Dial(ctx, server, password)
	if err != nil {
		return nil, err
	}

	store, err := OpenHistory(cfg)
	if err != nil {
		// history is best effort
		log.Warn().Err(err).Str("path", cfg.History.Path).Msg("history unavailable")
	}

	return NewRunner(session, server, store), nil
}

// OpenHistory opens the configured history store. It returns nil when
// history is disabled.
func OpenHistory(cfg *config.Client) (*history.Store, error) {
	if cfg.History.Disabled {
		return nil, nil
	}
	return history.Open(cfg.History.Path, cfg.History.Limit)
}

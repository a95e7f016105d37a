package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

type Client struct {
	Servers       []Server      `yaml:"servers" toml:"servers"`
	DefaultServer string        `yaml:"default_server" toml:"default_server"`
	DialTimeout   time.Duration `yaml:"dial_timeout" toml:"dial_timeout"`   // TCP connect timeout, default 5s
	ReadTimeout   time.Duration `yaml:"read_timeout" toml:"read_timeout"`   // Per-frame read timeout, default 10s
	WriteTimeout  time.Duration `yaml:"write_timeout" toml:"write_timeout"` // Request write timeout, default 10s
	Fragment      Fragment      `yaml:"fragment" toml:"fragment"`
	MaxPayload    int           `yaml:"max_payload" toml:"max_payload"` // Largest command in bytes, default 4096
	StartID       int32         `yaml:"start_id" toml:"start_id"`       // First request id, default 0
	History       History       `yaml:"history" toml:"history"`
}

// Server is one named RCON endpoint
type Server struct {
	Name         string `yaml:"name" toml:"name"`
	Address      string `yaml:"address" toml:"address"` // host:port, port defaults to 25575
	Password     string `yaml:"password" toml:"password"`
	PasswordFile string `yaml:"password_file" toml:"password_file"`
}

// Fragment selects how multi-packet responses are detected
type Fragment struct {
	Mode        string        `yaml:"mode" toml:"mode"`                 // single, grace or marker
	GraceWindow time.Duration `yaml:"grace_window" toml:"grace_window"` // Used by grace mode, default 200ms
}

// History configures the local command history store
type History struct {
	Disabled bool   `yaml:"disabled" toml:"disabled"`
	Path     string `yaml:"path" toml:"path"`
	Limit    int    `yaml:"limit" toml:"limit"` // Entries kept, default 1000
}

const (
	MinServers = 1
	MaxServers = 64
)

var ErrNoPassword = errors.New("no password configured")

// ResolvePassword returns the inline password, or the trimmed contents of PasswordFile.
func (s Server) ResolvePassword() (string, error) {
	if s.Password != "" {
		return s.Password, nil
	}
	if s.PasswordFile == "" {
		return "", ErrNoPassword
	}
	data, err := os.ReadFile(s.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("read password file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Validate validates the client configuration.
func (c *Client) Validate() error {
	if len(c.Servers) < MinServers {
		return fmt.Errorf("at least %d server must be provided", MinServers)
	}
	if len(c.Servers) > MaxServers {
		return fmt.Errorf("maximum %d servers allowed, got %d", MaxServers, len(c.Servers))
	}

	for i, server := range c.Servers {
		if err := ValidateAddress(server.Address); err != nil {
			return fmt.Errorf("server[%d]: %w", i, err)
		}
	}

	if c.DefaultServer != "" {
		if _, err := c.Select(c.DefaultServer); err != nil {
			return fmt.Errorf("default_server: %w", err)
		}
	}

	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if !slices.Contains(FragmentModes, c.Fragment.Mode) {
		return fmt.Errorf("fragment mode must be one of %v, got %q", FragmentModes, c.Fragment.Mode)
	}
	if c.Fragment.Mode == FragmentGrace && c.Fragment.GraceWindow <= 0 {
		return fmt.Errorf("grace_window must be positive in grace mode, got %v", c.Fragment.GraceWindow)
	}
	if c.Fragment.GraceWindow > 0 && c.ReadTimeout > 0 && c.Fragment.GraceWindow >= c.ReadTimeout {
		return fmt.Errorf("grace_window (%v) must be shorter than read_timeout (%v)",
			c.Fragment.GraceWindow, c.ReadTimeout)
	}

	if c.MaxPayload < 1 {
		return fmt.Errorf("max_payload must be positive, got %d", c.MaxPayload)
	}
	if c.StartID < 0 {
		return fmt.Errorf("start_id must not be negative, got %d", c.StartID)
	}
	if !c.History.Disabled && c.History.Limit < 1 {
		return fmt.Errorf("history limit must be positive, got %d", c.History.Limit)
	}

	return nil
}

// Select returns the server with the given name. An empty name selects the
// default server, or the first server when no default is set.
func (c *Client) Select(name string) (Server, error) {
	if name == "" {
		name = c.DefaultServer
	}
	if name == "" {
		if len(c.Servers) == 0 {
			return Server{}, fmt.Errorf("no servers configured")
		}
		return c.Servers[0], nil
	}
	for _, s := range c.Servers {
		if s.Name == name {
			return s, nil
		}
	}
	return Server{}, fmt.Errorf("unknown server %q", name)
}

// DeduplicateServers removes servers whose name was already seen, keeping the first.
// Unnamed servers are deduplicated by address.
// It returns the deduplicated list and a boolean indicating if duplicates were found.
func (c *Client) DeduplicateServers() ([]Server, bool) {
	if len(c.Servers) == 0 {
		return nil, false
	}

	seen := make(map[string]bool)
	deduplicated := make([]Server, 0, len(c.Servers))
	hasDuplicates := false

	for _, server := range c.Servers {
		key := "name:" + server.Name
		if server.Name == "" {
			key = "addr:" + server.Address
		}
		if !seen[key] {
			seen[key] = true
			deduplicated = append(deduplicated, server)
		} else {
			hasDuplicates = true
		}
	}

	return deduplicated, hasDuplicates
}

// ValidateAndDeduplicate deduplicates servers and then validates the configuration.
// Returns an error if validation fails, and a boolean indicating if duplicates were removed.
func (c *Client) ValidateAndDeduplicate() (bool, error) {
	deduplicated, hasDuplicates := c.DeduplicateServers()
	if hasDuplicates {
		c.Servers = deduplicated
	}

	if err := c.Validate(); err != nil {
		return hasDuplicates, err
	}

	return hasDuplicates, nil
}

package config

import (
	"time"

	"github.com/Mmx233/QRcon/protocol"
	"github.com/google/uuid"
)

// Default timeout and size values
const (
	// DefaultPort is the conventional RCON port
	DefaultPort = 25575

	// DefaultDialTimeout bounds TCP connection establishment
	DefaultDialTimeout = 5 * time.Second

	// DefaultReadTimeout bounds the wait for each response frame
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writing a request
	DefaultWriteTimeout = 10 * time.Second

	// DefaultGraceWindow is how long the grace fragment mode waits for another fragment
	DefaultGraceWindow = 200 * time.Millisecond

	// DefaultFragmentMode treats every reply as a single frame
	DefaultFragmentMode = FragmentSingle

	// DefaultMaxPayload is the largest command accepted before any I/O
	DefaultMaxPayload = protocol.MaxPayload

	// DefaultHistoryPath is the SQLite history database file
	DefaultHistoryPath = "qrcon_history.db"

	// DefaultHistoryLimit is how many history entries are kept
	DefaultHistoryLimit = 1000
)

// GenerateSessionID generates a new UUID for tagging a session in logs and history.
func GenerateSessionID() string {
	return uuid.New().String()
}

// ApplyDefaults fills zero-value fields with their defaults.
func (c *Client) ApplyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Fragment.Mode == "" {
		c.Fragment.Mode = DefaultFragmentMode
	}
	if c.Fragment.GraceWindow == 0 {
		c.Fragment.GraceWindow = DefaultGraceWindow
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
	if c.History.Limit == 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	for i := range c.Servers {
		c.Servers[i].Address = NormalizeAddress(c.Servers[i].Address)
	}
}

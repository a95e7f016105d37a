package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	EnvPrefix = "QRCON_"
)

// Fragment termination modes
const (
	FragmentSingle = "single" // first frame is the whole response
	FragmentGrace  = "grace"  // buffer until the stream goes quiet
	FragmentMarker = "marker" // send a marker frame and wait for its echo
)

// FragmentModes lists the accepted fragment modes.
var FragmentModes = []string{FragmentSingle, FragmentGrace, FragmentMarker}

// ValidateAddress validates that an address is in valid host:port format.
// Returns an error if the address is invalid.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format %q: %w", addr, err)
	}

	if host == "" {
		return fmt.Errorf("host cannot be empty in address %q", addr)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in address %q: %w", addr, err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d in address %q", port, addr)
	}

	return nil
}

// NormalizeAddress appends DefaultPort to an address given as a bare host.
func NormalizeAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(DefaultPort))
}

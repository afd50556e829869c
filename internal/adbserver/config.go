package adbserver

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is adb's standard server port.
const DefaultPort = 5037

// Config controls the managed server.
type Config struct {
	// Managed starts and supervises the server. When false Start is a no-op
	// and adb keeps managing its own daemon.
	Managed bool

	// Binary is the adb executable.
	Binary string

	// Port is the server's TCP port on localhost.
	Port int

	RestartOnFailure    bool
	RestartDelay        time.Duration
	MaxRestartAttempts  int
	GracefulTimeout     time.Duration
	HealthCheckInterval time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []string
	if c.Binary == "" {
		errs = append(errs, "adb binary path is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.MaxRestartAttempts < 0 {
		errs = append(errs, "max_restart_attempts must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Args returns the server command line.
func (c *Config) Args() []string {
	return []string{"-P", strconv.Itoa(c.Port), "nodaemon", "server"}
}

// Address is the server's dial address.
func (c *Config) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

package adbserver

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/flashline-core/internal/process"
)

const (
	readyTimeout      = 15 * time.Second
	readyPollInterval = 100 * time.Millisecond
	probeTimeout      = time.Second
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager owns the adb server process.
type Manager struct {
	cfg     Config
	process *process.Manager
	logger  Logger
}

// NewManager validates cfg and fills defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Start launches the server and blocks until it answers host:version.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Managed {
		m.logger.Info("adb server management disabled")
		return nil
	}

	m.process = process.NewManager(process.Config{
		Name:                "adb-server",
		Binary:              m.cfg.Binary,
		Args:                m.cfg.Args(),
		RestartOnFailure:    m.cfg.RestartOnFailure,
		RestartDelay:        m.cfg.RestartDelay,
		MaxRestartAttempts:  m.cfg.MaxRestartAttempts,
		GracefulTimeout:     m.cfg.GracefulTimeout,
		HealthCheckInterval: m.cfg.HealthCheckInterval,
		HealthCheck:         m.HealthCheck,
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("adb server exited", "error", err)
			}
		},
	})
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting adb server: %w", err)
	}

	version, err := m.waitForReady(ctx)
	if err != nil {
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("stopping adb server after failed start", "error", stopErr)
		}
		return err
	}

	m.logger.Info("adb server ready", "address", m.cfg.Address(), "protocol_version", version)
	return nil
}

func (m *Manager) waitForReady(ctx context.Context) (int, error) {
	deadline := time.Now().Add(readyTimeout)
	var lastErr error

	for time.Now().Before(deadline) {
		if st := m.process.Status(); st == process.StatusFailed || st == process.StatusStopped {
			return 0, fmt.Errorf("%w: process %s: %s", ErrNotReady, st, m.process.Stats().LastError)
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		v, err := Version(probeCtx, m.cfg.Address())
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
	return 0, fmt.Errorf("%w after %v: %w", ErrNotReady, readyTimeout, lastErr)
}

// HealthCheck verifies the server answers host:version.
func (m *Manager) HealthCheck(ctx context.Context) error {
	_, err := Version(ctx, m.cfg.Address())
	return err
}

// Stop terminates the managed server.
func (m *Manager) Stop() error {
	if m.process == nil {
		return nil
	}
	m.logger.Info("stopping adb server")
	return m.process.Stop()
}

// IsManaged reports whether Flashline owns the server.
func (m *Manager) IsManaged() bool {
	return m.cfg.Managed
}

// IsRunning reports whether the managed process is up.
func (m *Manager) IsRunning() bool {
	return m.process != nil && m.process.IsRunning()
}

// Address returns the server's dial address.
func (m *Manager) Address() string {
	return m.cfg.Address()
}

// Stats reports the process state. Zero when unmanaged.
func (m *Manager) Stats() process.Stats {
	if m.process == nil {
		return process.Stats{Name: "adb-server", Status: process.StatusStopped}
	}
	return m.process.Stats()
}

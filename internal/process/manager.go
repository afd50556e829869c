package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a managed process.
type Status string

// Process statuses.
const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed" // gave up restarting
)

// ErrAlreadyRunning is returned by Start on a live manager.
var ErrAlreadyRunning = errors.New("process: already running")

const (
	defaultRestartDelay      = 5 * time.Second
	defaultMaxRestartDelay   = 5 * time.Minute
	defaultStableThreshold   = 2 * time.Minute
	defaultGracefulTimeout   = 10 * time.Second
	defaultHealthInterval    = 30 * time.Second
	defaultMaxHealthFailures = 3
	healthCheckTimeout       = 5 * time.Second
	killWait                 = 5 * time.Second
)

// Config describes a managed process.
type Config struct {
	Name    string
	Binary  string
	Args    []string
	Env     []string // appended to the parent environment
	WorkDir string

	RestartOnFailure bool

	// RestartDelay is the first backoff step; each further consecutive
	// failure doubles it up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the failure count
	// to reset.
	StableThreshold time.Duration

	// MaxRestartAttempts caps consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	GracefulTimeout time.Duration

	// HealthCheck, when set, runs every HealthCheckInterval. After
	// MaxHealthFailures consecutive failures the process is killed and
	// treated as crashed.
	HealthCheck         func(ctx context.Context) error
	HealthCheckInterval time.Duration
	MaxHealthFailures   int

	// OnStop is called after every exit with the exit error (nil on Stop).
	OnStop func(err error)
}

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

// Stats is a point-in-time view of the manager.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Manager runs and restarts one child process.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	failures  int // consecutive, reset after a stable run
	restarts  int // total
	lastErr   error
	startedAt time.Time
	stopping  bool
	stop      chan struct{}
	done      chan struct{}
}

// NewManager creates a manager, filling zero durations with defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = defaultStableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = defaultHealthInterval
	}
	if cfg.MaxHealthFailures <= 0 {
		cfg.MaxHealthFailures = defaultMaxHealthFailures
	}
	return &Manager{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// Start launches the process and its supervisor goroutine. It returns the
// error of the first launch only; later launches are retried.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.cfg.Name)
	}
	m.status = StatusStarting
	m.stopping = false
	stop := make(chan struct{})
	m.stop = stop
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.launch(); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastErr = err
		close(m.done)
		m.done = nil
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx, stop)
	return nil
}

func (m *Manager) launch() error {
	logger := m.log()
	logger.Info("starting process", "name", m.cfg.Name, "binary", m.cfg.Binary, "args", m.cfg.Args)

	// No CommandContext: shutdown goes through Stop's SIGTERM/SIGKILL sequence.
	cmd := exec.Command(m.cfg.Binary, m.cfg.Args...) //nolint:gosec // binary comes from station config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.cfg.Env != nil {
		cmd.Env = append(os.Environ(), m.cfg.Env...)
	}
	cmd.Dir = m.cfg.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.cfg.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startedAt = time.Now()
	m.mu.Unlock()

	go m.forward("stdout", stdout)
	go m.forward("stderr", stderr)

	logger.Info("process started", "name", m.cfg.Name, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) forward(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m.log().Debug("process output", "name", m.cfg.Name, "stream", stream, "line", sc.Text())
	}
}

// supervise waits on the current child and relaunches it until stopped,
// ctx ends, or the restart budget is spent.
func (m *Manager) supervise(ctx context.Context, stop <-chan struct{}) {
	defer func() {
		m.mu.Lock()
		close(m.done)
		m.done = nil
		m.mu.Unlock()
	}()

	for {
		m.mu.RLock()
		cmd, startedAt := m.cmd, m.startedAt
		m.mu.RUnlock()

		err := m.watch(ctx, cmd, stop)

		select {
		case <-stop:
			m.setStatus(StatusStopped)
			m.log().Info("process stopped", "name", m.cfg.Name)
			m.notifyStop(nil)
			return
		default:
		}
		if ctx.Err() != nil {
			m.setStatus(StatusStopped)
			m.notifyStop(ctx.Err())
			return
		}

		m.log().Warn("process exited", "name", m.cfg.Name, "error", err)
		m.notifyStop(err)

		if time.Since(startedAt) >= m.cfg.StableThreshold {
			m.mu.Lock()
			m.failures = 0
			m.mu.Unlock()
		}
		if !m.restart(ctx, err, stop) {
			return
		}
	}
}

// restart records the failure and relaunches after backoff, retrying
// launches that fail. It returns false when giving up or stopped.
func (m *Manager) restart(ctx context.Context, err error, stop <-chan struct{}) bool {
	for {
		m.mu.Lock()
		m.lastErr = err
		m.failures++
		attempt := m.failures
		m.mu.Unlock()

		if !m.cfg.RestartOnFailure {
			m.setStatus(StatusFailed)
			return false
		}
		if m.cfg.MaxRestartAttempts > 0 && attempt > m.cfg.MaxRestartAttempts {
			m.log().Error("restart budget exhausted", "name", m.cfg.Name, "attempts", attempt-1)
			m.setStatus(StatusFailed)
			return false
		}

		delay := m.Backoff(attempt)
		m.setStatus(StatusBackoff)
		m.log().Info("restarting process", "name", m.cfg.Name, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			m.setStatus(StatusStopped)
			return false
		case <-ctx.Done():
			timer.Stop()
			m.setStatus(StatusStopped)
			return false
		}

		if err = m.launch(); err != nil {
			m.log().Error("relaunch failed", "name", m.cfg.Name, "error", err)
			continue
		}
		m.mu.Lock()
		m.restarts++
		m.mu.Unlock()
		return true
	}
}

// watch blocks until cmd exits, the manager is stopped, ctx ends, or the
// health check gives up. Stop and ctx both terminate the process group.
func (m *Manager) watch(ctx context.Context, cmd *exec.Cmd, stop <-chan struct{}) error {
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var tick <-chan time.Time
	if m.cfg.HealthCheck != nil {
		ticker := time.NewTicker(m.cfg.HealthCheckInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	failures := 0
	for {
		select {
		case err := <-exited:
			return err
		case <-stop:
			return m.terminate(cmd, exited)
		case <-ctx.Done():
			m.terminate(cmd, exited) //nolint:errcheck // shutting down
			return ctx.Err()
		case <-tick:
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := m.cfg.HealthCheck(checkCtx)
			cancel()
			if err == nil {
				if failures > 0 {
					m.log().Info("health check recovered", "name", m.cfg.Name)
				}
				failures = 0
				continue
			}
			failures++
			m.log().Warn("health check failed", "name", m.cfg.Name, "error", err, "consecutive", failures)
			if failures < m.cfg.MaxHealthFailures {
				continue
			}

			m.log().Error("process unhealthy, killing", "name", m.cfg.Name)
			signalGroup(cmd, syscall.SIGKILL)
			select {
			case <-exited:
			case <-time.After(killWait):
			}
			return fmt.Errorf("killed after %d failed health checks: %w", failures, err)
		}
	}
}

// terminate sends SIGTERM to the process group, then SIGKILL after
// GracefulTimeout.
func (m *Manager) terminate(cmd *exec.Cmd, exited <-chan error) error {
	m.log().Info("stopping process", "name", m.cfg.Name, "pid", cmd.Process.Pid)
	signalGroup(cmd, syscall.SIGTERM)

	select {
	case err := <-exited:
		return err
	case <-time.After(m.cfg.GracefulTimeout):
		m.log().Warn("graceful stop timed out, killing", "name", m.cfg.Name)
	}

	signalGroup(cmd, syscall.SIGKILL)
	select {
	case err := <-exited:
		return err
	case <-time.After(killWait):
		return fmt.Errorf("%s did not exit after SIGKILL", m.cfg.Name)
	}
}

// Backoff returns the delay before restart attempt n (1-based).
func (m *Manager) Backoff(n int) time.Duration {
	d := m.cfg.RestartDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= m.cfg.MaxRestartDelay {
			return m.cfg.MaxRestartDelay
		}
	}
	return d
}

// Stop terminates the process group (SIGTERM, then SIGKILL after
// GracefulTimeout) and waits for the supervisor to exit. It is a no-op when
// nothing is running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	done := m.done
	if done == nil || m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	close(m.stop)
	m.mu.Unlock()

	<-done
	return nil
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	// Negative pid signals the whole group created via Setpgid.
	_ = syscall.Kill(-cmd.Process.Pid, sig) //nolint:errcheck // ESRCH when already gone
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the child is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// Stats returns a snapshot for health reporting.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Name: m.cfg.Name, Status: m.status, RestartCount: m.restarts}
	if m.cmd != nil && m.cmd.Process != nil && m.status == StatusRunning {
		s.PID = m.cmd.Process.Pid
		s.Uptime = time.Since(m.startedAt)
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) notifyStop(err error) {
	if m.cfg.OnStop != nil {
		m.cfg.OnStop(err)
	}
}

func (m *Manager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

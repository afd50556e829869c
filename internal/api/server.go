package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/nerrad567/flashline-core/internal/batch"
	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/engine"
	"github.com/nerrad567/flashline-core/internal/history"
	"github.com/nerrad567/flashline-core/internal/infrastructure/config"
	"github.com/nerrad567/flashline-core/internal/infrastructure/logging"
	"github.com/nerrad567/flashline-core/internal/plan"
	"github.com/nerrad567/flashline-core/internal/safety"
	"github.com/nerrad567/flashline-core/internal/schedule"
	"github.com/nerrad567/flashline-core/internal/zerotouch"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each component probe made by GET /health.
const healthCheckTimeout = 2 * time.Second

// RunController starts and steers plan runs. *engine.Supervisor satisfies it.
type RunController interface {
	Start(ctx context.Context, key string, p *plan.Plan) (engine.RunInfo, error)
	Get(key string) (engine.RunInfo, error)
	Runs() []engine.RunInfo
	Pause(key string)
	Resume(key string) error
	Cancel(key string) error
}

// BatchExecutor runs one action on many devices. *batch.Dispatcher satisfies it.
type BatchExecutor interface {
	Execute(ctx context.Context, serials []string, action string) batch.Job
}

// HealthChecker is implemented by every infrastructure component that can
// report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
//
// Registry, Runs and Logger are required. The remaining components are
// optional; their routes answer 503 when they are nil.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Registry  *device.Registry
	Runs      RunController
	Batch     BatchExecutor
	ZeroTouch *zerotouch.State
	Schedules *schedule.Matcher
	History   history.Repository
	Safety    *safety.Assessor

	// Hub is shared with the event fanout so engine events reach clients.
	// If nil the server creates a private one.
	Hub *Hub

	// WorkflowsDir confines plan_path values; relative ones are joined onto it.
	WorkflowsDir string

	// Checks are reported by GET /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for the station.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	version string

	registry     *device.Registry
	runs         RunController
	batch        BatchExecutor
	zeroTouch    *zerotouch.State
	schedules    *schedule.Matcher
	history      history.Repository
	safety       *safety.Assessor
	workflowsDir string
	checks       map[string]HealthChecker

	server      *http.Server
	hub         *Hub
	externalHub bool
	limiter     *rateLimiter
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry, run controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Runs == nil {
		return nil, fmt.Errorf("run controller is required")
	}
	if deps.Security.AuthEnabled && deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required when auth is enabled")
	}

	workflowsDir := deps.WorkflowsDir
	if workflowsDir != "" {
		abs, err := filepath.Abs(workflowsDir)
		if err != nil {
			return nil, fmt.Errorf("resolving workflows dir: %w", err)
		}
		workflowsDir = abs
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		version:      deps.Version,
		registry:     deps.Registry,
		runs:         deps.Runs,
		batch:        deps.Batch,
		zeroTouch:    deps.ZeroTouch,
		schedules:    deps.Schedules,
		history:      deps.History,
		safety:       deps.Safety,
		workflowsDir: workflowsDir,
		checks:       deps.Checks,
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	if s.secCfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(s.secCfg.RateLimit.RequestsPerMinute, s.secCfg.RateLimit.Burst)
	}

	return s, nil
}

// Hub returns the WebSocket hub, which doubles as an events.Sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the hub (unless injected), the rate-limit janitor, and the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	if s.limiter != nil {
		go s.limiter.cleanup(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

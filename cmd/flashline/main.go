// Flashline Core - Android provisioning station
//
// This is the main entry point for the Flashline station service. It watches
// adb and fastboot for attached devices, runs flash plans against them on
// demand, on a schedule, or hands-free (zero-touch), and exposes all of it
// over an HTTP/WebSocket API with optional MQTT and InfluxDB mirrors.
//
// Usage:
//
//	flashline [--config path]
//	flashline --issue-token <subject> [--role viewer|operator]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/flashline-core/internal/adapter"
	"github.com/nerrad567/flashline-core/internal/adbserver"
	"github.com/nerrad567/flashline-core/internal/api"
	"github.com/nerrad567/flashline-core/internal/auth"
	"github.com/nerrad567/flashline-core/internal/batch"
	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/engine"
	"github.com/nerrad567/flashline-core/internal/events"
	"github.com/nerrad567/flashline-core/internal/history"
	"github.com/nerrad567/flashline-core/internal/infrastructure/config"
	"github.com/nerrad567/flashline-core/internal/infrastructure/database"
	"github.com/nerrad567/flashline-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/flashline-core/internal/infrastructure/logging"
	"github.com/nerrad567/flashline-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashline-core/internal/remote"
	"github.com/nerrad567/flashline-core/internal/safety"
	"github.com/nerrad567/flashline-core/internal/schedule"
	"github.com/nerrad567/flashline-core/internal/telemetry"
	"github.com/nerrad567/flashline-core/internal/watcher"
	"github.com/nerrad567/flashline-core/internal/zerotouch"
	"github.com/nerrad567/flashline-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

const (
	// shutdownTimeout bounds how long active runs get to reach a step boundary.
	shutdownTimeout = 30 * time.Second

	versionCheckTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath string
	issueToken string
	role       string
	version    bool
}

// parseFlags parses args. The config path defaults to FLASHLINE_CONFIG,
// then defaultConfigPath.
func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("flashline", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to config.yaml")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print a signed API token for this subject and exit")
	fs.StringVar(&opts.role, "role", string(auth.RoleOperator), "role for --issue-token (viewer or operator)")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.issueToken != "" && !auth.IsValidRole(auth.Role(opts.role)) {
		return opts, fmt.Errorf("%w: %q", auth.ErrInvalidRole, opts.role)
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses FLASHLINE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLASHLINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for --version and --issue-token output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error { //nolint:gocognit,gocyclo // linear startup sequence
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.version {
		fmt.Fprintf(stdout, "flashline %s (%s, %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.issueToken != "" {
		return issueToken(stdout, cfg.Security, opts.issueToken, auth.Role(opts.role))
	}

	log.Info("starting Flashline Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	checks := make(map[string]api.HealthChecker)

	// Database and activity history
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")
	checks["database"] = db

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Device tools
	cli := adapter.New(nil, cfg.Tools.ADB.Path, cfg.Tools.Fastboot.Path)
	cli.SetLogger(log.Component("adapter"))
	checkToolVersions(ctx, cli, cfg.Tools, log)

	if cfg.Tools.Server.Managed {
		adbManager, startErr := startADBServer(ctx, cfg.Tools, log)
		if startErr != nil {
			return fmt.Errorf("starting adb server: %w", startErr)
		}
		defer func() {
			log.Info("stopping adb server")
			if stopErr := adbManager.Stop(); stopErr != nil {
				log.Error("error stopping adb server", "error", stopErr)
			}
		}()
		checks["adb_server"] = adbManager
	}

	// Event sinks
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	fanout := events.NewFanout(hub)
	fanout.SetLogger(log.Component("events"))
	if mqttClient != nil {
		fanout.Add(events.NewMQTTSink(mqttClient, log.Component("events")))
	}
	historySink := history.NewSink(history.NewSQLiteRepository(db.DB), log.Component("history"))
	fanout.Add(historySink)
	if influxClient != nil {
		fanout.Add(telemetry.NewSink(influxClient))
	}

	// History keeps draining after ctx ends so shutdown events are recorded.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	var sinkWG sync.WaitGroup
	sinkWG.Add(1)
	go func() {
		defer sinkWG.Done()
		if runErr := historySink.Run(sinkCtx); runErr != nil {
			log.Warn("history sink stopped", "error", runErr)
		}
	}()
	defer func() {
		stopSinks()
		sinkWG.Wait()
	}()

	// Engines and triggers
	supervisor := engine.NewSupervisor(cli, fanout, log.Component("engine"))

	if mqttClient != nil {
		if regErr := remote.NewHandler(supervisor, log.Component("remote")).Register(mqttClient); regErr != nil {
			log.Warn("MQTT run control unavailable", "error", regErr)
		}
	}

	zeroTouch := zerotouch.NewState(zerotouch.Config{
		Enabled:          cfg.ZeroTouch.Enabled,
		TargetSerial:     cfg.ZeroTouch.TargetSerial,
		PlanPath:         cfg.ZeroTouch.PlanPath,
		CountdownSeconds: cfg.ZeroTouch.CountdownSeconds,
	})
	trigger := zerotouch.NewTrigger(zeroTouch, supervisor, fanout, log.Component("zerotouch"))

	matcher, err := schedule.NewMatcher(
		schedule.NewStore(cfg.Schedule.File, cfg.Schedule.WorkflowsDir),
		supervisor,
		log.Component("schedule"),
	)
	if err != nil {
		return fmt.Errorf("creating schedule matcher: %w", err)
	}

	assessor, err := safety.NewAssessor(safety.DefaultRules(), log.Component("safety"))
	if err != nil {
		return fmt.Errorf("loading safety rules: %w", err)
	}

	dispatcher := batch.NewDispatcher(cli, fanout, cfg.Batch.MaxParallel, log.Component("batch"))

	registry := device.NewRegistry()
	w := watcher.New(cli, registry, fanout, cfg.Watcher.PollInterval, log.Component("watcher"))
	w.Subscribe(trigger)
	w.Subscribe(matcher)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if runErr := w.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("device watcher stopped", "error", runErr)
		}
	}()

	// HTTP API
	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log.Component("api"),
		Registry:     registry,
		Runs:         supervisor,
		Batch:        dispatcher,
		ZeroTouch:    zeroTouch,
		Schedules:    matcher,
		History:      history.NewSQLiteRepository(db.DB),
		Safety:       assessor,
		Hub:          hub,
		WorkflowsDir: cfg.Schedule.WorkflowsDir,
		Checks:       checks,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	if err := healthCheck(ctx, checks); err != nil {
		server.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	<-watchDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		log.Warn("runs did not stop in time", "error", err)
	}
	if err := trigger.Wait(shutdownCtx); err != nil {
		log.Warn("zero-touch flows did not stop in time", "error", err)
	}
	if err := matcher.Wait(shutdownCtx); err != nil {
		log.Warn("scheduled flows did not stop in time", "error", err)
	}

	// Deferred calls run in reverse order: sinks, hub, adb server,
	// InfluxDB, MQTT, database.
	log.Info("Flashline Core stopped")
	return nil
}

// issueToken prints a signed token for subject and role.
func issueToken(out io.Writer, sec config.SecurityConfig, subject string, role auth.Role) error {
	ttl := time.Duration(sec.JWT.AccessTokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = auth.DefaultTTL
	}
	token, err := auth.IssueToken(subject, role, sec.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// checkToolVersions logs the installed adb/fastboot versions and warns when
// they are missing or older than configured. It never fails startup: the
// watcher reports missing tools on every tick anyway.
func checkToolVersions(ctx context.Context, cli *adapter.CLI, tools config.ToolsConfig, log *logging.Logger) {
	vctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	v, err := cli.Versions(vctx)
	if err != nil {
		log.Warn("could not determine tool versions", "error", err)
		return
	}
	log.Info("device tools found", "adb", v.ADB, "fastboot", v.Fastboot)

	if err := adapter.CheckVersions(v, tools.ADB.MinVersion, tools.Fastboot.MinVersion); err != nil {
		log.Warn("device tool version check failed", "error", err)
	}
}

// startADBServer starts a supervised "adb nodaemon server".
func startADBServer(ctx context.Context, tools config.ToolsConfig, log *logging.Logger) (*adbserver.Manager, error) {
	manager, err := adbserver.NewManager(adbserver.Config{
		Managed:             true,
		Binary:              tools.ADB.Path,
		Port:                tools.Server.Port,
		RestartOnFailure:    tools.Server.RestartOnFailure,
		RestartDelay:        time.Duration(tools.Server.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts:  tools.Server.MaxRestartAttempts,
		HealthCheckInterval: tools.Server.HealthCheckInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating adb server manager: %w", err)
	}
	manager.SetLogger(log.Component("adbserver"))

	log.Info("starting adb server", "address", manager.Address())
	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("adb server started", "address", manager.Address(), "managed", manager.IsManaged())
	return manager, nil
}

// healthCheck verifies every registered component is healthy.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

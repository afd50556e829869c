package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Flashline Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Station   StationConfig   `yaml:"station"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tools     ToolsConfig     `yaml:"tools"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	ZeroTouch ZeroTouchConfig `yaml:"zero_touch"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Batch     BatchConfig     `yaml:"batch"`
	Security  SecurityConfig  `yaml:"security"`
}

// StationConfig identifies the provisioning station.
type StationConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ToolsConfig locates the external device tools.
type ToolsConfig struct {
	ADB      ToolConfig      `yaml:"adb"`
	Fastboot ToolConfig      `yaml:"fastboot"`
	Server   ADBServerConfig `yaml:"adb_server"`
}

// ToolConfig describes one external binary.
type ToolConfig struct {
	// Path is the executable, resolved through $PATH when not absolute.
	Path string `yaml:"path"`

	// MinVersion is a semantic version below which a warning is logged.
	// Empty disables the check.
	MinVersion string `yaml:"min_version"`
}

// ADBServerConfig controls whether Flashline supervises its own adb server.
type ADBServerConfig struct {
	// Managed starts "adb nodaemon server" as a child process.
	// If false, adb starts its own background server on first use.
	Managed bool `yaml:"managed"`

	// Port is the adb server port. Default: 5037
	Port int `yaml:"port"`

	RestartOnFailure    bool          `yaml:"restart_on_failure"`
	RestartDelaySeconds int           `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int           `yaml:"max_restart_attempts"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// WatcherConfig controls device presence polling.
type WatcherConfig struct {
	// PollInterval is clamped to 1s..3s.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ZeroTouchConfig is the zero-touch state applied at startup.
type ZeroTouchConfig struct {
	Enabled          bool   `yaml:"enabled"`
	TargetSerial     string `yaml:"target_serial"`
	PlanPath         string `yaml:"plan_path"`
	CountdownSeconds uint64 `yaml:"countdown_seconds"`
}

// ScheduleConfig locates the schedule document and its workflows.
type ScheduleConfig struct {
	File         string `yaml:"file"`
	WorkflowsDir string `yaml:"workflows_dir"`
}

// BatchConfig bounds the multi-device dispatcher.
type BatchConfig struct {
	MaxParallel int `yaml:"max_parallel"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	AuthEnabled bool            `yaml:"auth_enabled"`
	JWT         JWTConfig       `yaml:"jwt"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLASHLINE_SECTION_KEY
// For example: FLASHLINE_DATABASE_PATH, FLASHLINE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Station: StationConfig{
			ID:   "station-001",
			Name: "Flashline",
		},
		Database: DatabaseConfig{
			Path:        "./data/flashline.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "flashline-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tools: ToolsConfig{
			ADB:      ToolConfig{Path: "adb", MinVersion: "1.0.39"},
			Fastboot: ToolConfig{Path: "fastboot"},
			Server: ADBServerConfig{
				Port:                5037,
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
				HealthCheckInterval: 30 * time.Second,
			},
		},
		Watcher: WatcherConfig{
			PollInterval: 2 * time.Second,
		},
		ZeroTouch: ZeroTouchConfig{
			CountdownSeconds: 10,
		},
		Schedule: ScheduleConfig{
			File:         "./config/schedules.json",
			WorkflowsDir: "./config/workflows",
		},
		Batch: BatchConfig{
			MaxParallel: 8,
		},
		Security: SecurityConfig{
			AuthEnabled: true,
			JWT: JWTConfig{
				AccessTokenTTL: 720,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLASHLINE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLASHLINE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FLASHLINE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLASHLINE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLASHLINE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FLASHLINE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FLASHLINE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("FLASHLINE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("FLASHLINE_ADB_PATH"); v != "" {
		cfg.Tools.ADB.Path = v
	}
	if v := os.Getenv("FLASHLINE_FASTBOOT_PATH"); v != "" {
		cfg.Tools.Fastboot.Path = v
	}

	if v := os.Getenv("FLASHLINE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Station.ID == "" {
		errs = append(errs, "station.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Tools.ADB.Path == "" {
		errs = append(errs, "tools.adb.path is required")
	}
	if c.Tools.Fastboot.Path == "" {
		errs = append(errs, "tools.fastboot.path is required")
	}
	if c.Tools.Server.Managed && (c.Tools.Server.Port < 1 || c.Tools.Server.Port > 65535) {
		errs = append(errs, "tools.adb_server.port must be between 1 and 65535")
	}

	if c.ZeroTouch.Enabled && c.ZeroTouch.PlanPath == "" {
		errs = append(errs, "zero_touch.plan_path is required when zero_touch.enabled is true")
	}

	if c.Batch.MaxParallel < 0 {
		errs = append(errs, "batch.max_parallel must not be negative")
	}

	// A forged token can start a flash on any attached device.
	const minJWTSecretLength = 32
	if c.Security.AuthEnabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set FLASHLINE_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

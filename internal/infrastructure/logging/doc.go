// Package logging provides structured logging for Flashline Core.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	engineLog := logger.Component("engine")
//	engineLog.Info("run started", "run_id", id)
//
// Never log JWT secrets or issued tokens.
package logging

// Package adbserver runs a supervised adb server for the station.
//
// By default adb forks its own background server the first time a client
// command runs, and nobody notices when it wedges. With management enabled
// Flashline starts "adb -P <port> nodaemon server" as a child process,
// watches it with a health check that speaks the adb host protocol, and
// restarts it with backoff when it dies or stops answering.
//
// Example configuration (in config.yaml):
//
//	tools:
//	  adb:
//	    path: /opt/platform-tools/adb
//	  adb_server:
//	    managed: true
//	    port: 5037
//	    restart_on_failure: true
//	    health_check_interval: 30s
package adbserver

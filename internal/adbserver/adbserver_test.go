package adbserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeServer answers every connection with reply after reading one request.
func fakeServer(t *testing.T, reply string) (int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() }) //nolint:errcheck // test cleanup

	requests := make(chan string, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				req, err := readFramed(conn)
				if err != nil {
					return
				}
				select {
				case requests <- req:
				default:
				}
				io.WriteString(conn, reply) //nolint:errcheck,gosec // test server
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, requests
}

func TestVersion(t *testing.T) {
	port, requests := fakeServer(t, "OKAY00040029")

	v, err := Version(context.Background(), fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != 0x29 {
		t.Errorf("Version() = %d, want 41", v)
	}
	if req := <-requests; req != "host:version" {
		t.Errorf("request = %q", req)
	}
}

func TestVersion_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"fail status", "FAIL000bno permission"},
		{"truncated", "OKA"},
		{"bad length", "OKAYzzzz"},
		{"bad version", "OKAY0002xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, _ := fakeServer(t, tt.reply)
			_, err := Version(context.Background(), fmt.Sprintf("127.0.0.1:%d", port))
			if !errors.Is(err, ErrUnhealthy) {
				t.Errorf("error = %v, want ErrUnhealthy", err)
			}
		})
	}
}

func TestVersion_NothingListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close() //nolint:errcheck,gosec // freeing the port

	if _, err := Version(context.Background(), addr); !errors.Is(err, ErrUnhealthy) {
		t.Errorf("error = %v, want ErrUnhealthy", err)
	}
}

func TestFrame(t *testing.T) {
	if got := frame("host:version"); got != "000chost:version" {
		t.Errorf("frame() = %q", got)
	}
}

func TestConfig(t *testing.T) {
	cfg := Config{Binary: "adb", Port: 5038}
	if got := strings.Join(cfg.Args(), " "); got != "-P 5038 nodaemon server" {
		t.Errorf("Args() = %q", got)
	}
	if cfg.Address() != "127.0.0.1:5038" {
		t.Errorf("Address() = %q", cfg.Address())
	}

	bad := []Config{
		{Binary: "", Port: 5037},
		{Binary: "adb", Port: 70000},
		{Binary: "adb", Port: 5037, MaxRestartAttempts: -1},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidConfig", c, err)
		}
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if m.Address() != "127.0.0.1:5037" {
		t.Errorf("Address() = %q", m.Address())
	}
	if m.IsManaged() {
		t.Error("IsManaged() = true")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Errorf("unmanaged Start() error = %v", err)
	}
	if m.IsRunning() {
		t.Error("unmanaged IsRunning() = true")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("unmanaged Stop() error = %v", err)
	}
}

// fakeADB writes a script that ignores its arguments and stays up.
func fakeADB(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 30\n"), 0o700); err != nil { //nolint:gosec // test script
		t.Fatal(err)
	}
	return path
}

func TestManagedStartStop(t *testing.T) {
	port, _ := fakeServer(t, "OKAY00040029")
	m, err := NewManager(Config{
		Managed:         true,
		Binary:          fakeADB(t),
		Port:            port,
		GracefulTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestManagedStart_ProcessDies(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o700); err != nil { //nolint:gosec // test script
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck,gosec // nothing answers on this port

	m, err := NewManager(Config{Managed: true, Binary: path, Port: port})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Start() error = %v, want ErrNotReady", err)
	}
}

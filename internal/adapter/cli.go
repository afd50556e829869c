package adapter

import (
	"context"
	"fmt"

	"github.com/nerrad567/flashline-core/internal/device"
)

// Logger defines the logging interface used by CLI.
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

// Default tool names resolved through PATH.
const (
	DefaultADB      = "adb"
	DefaultFastboot = "fastboot"
)

// CLI is the device control adapter over the adb and fastboot binaries.
//
// Thread Safety: CLI holds no mutable state after construction; all methods
// are safe for concurrent use. Concurrency against a single device is the
// caller's concern.
type CLI struct {
	runner   Runner
	adb      string
	fastboot string
	logger   Logger
}

// New creates a CLI. Empty paths fall back to DefaultADB and DefaultFastboot;
// a nil runner uses ExecRunner.
func New(runner Runner, adbPath, fastbootPath string) *CLI {
	if runner == nil {
		runner = ExecRunner{}
	}
	if adbPath == "" {
		adbPath = DefaultADB
	}
	if fastbootPath == "" {
		fastbootPath = DefaultFastboot
	}
	return &CLI{
		runner:   runner,
		adb:      adbPath,
		fastboot: fastbootPath,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for command tracing.
func (c *CLI) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Devices lists devices visible to the tool for mode.
func (c *CLI) Devices(ctx context.Context, mode device.ConnectionType) ([]device.Status, error) {
	switch mode {
	case device.ConnectionADB:
		res, err := c.run(ctx, c.adb, "devices")
		if err != nil {
			return nil, err
		}
		return parseADBDevices(res.Stdout), nil
	case device.ConnectionFastboot:
		res, err := c.run(ctx, c.fastboot, "devices")
		if err != nil {
			return nil, err
		}
		return parseFastbootDevices(res.Stdout), nil
	default:
		return nil, fmt.Errorf("adapter: unknown connection type %q", mode)
	}
}

// Erase runs fastboot erase on one partition.
func (c *CLI) Erase(ctx context.Context, serial, partition string) (string, error) {
	res, err := c.run(ctx, c.fastboot, withSerial(serial, "erase", partition)...)
	if err != nil {
		return "", err
	}
	return message(res, "erased "+partition), nil
}

// Flash writes file to partition. The tool streams the file itself.
func (c *CLI) Flash(ctx context.Context, serial, partition, file string) (string, error) {
	res, err := c.run(ctx, c.fastboot, withSerial(serial, "flash", partition, file)...)
	if err != nil {
		return "", err
	}
	return message(res, "flashed "+partition), nil
}

// Update applies a full update package with fastboot update.
func (c *CLI) Update(ctx context.Context, serial, file string) (string, error) {
	res, err := c.run(ctx, c.fastboot, withSerial(serial, "update", file)...)
	if err != nil {
		return "", err
	}
	return message(res, "updated from "+file), nil
}

// Boot boots an image once without flashing it.
func (c *CLI) Boot(ctx context.Context, serial, file string) (string, error) {
	res, err := c.run(ctx, c.fastboot, withSerial(serial, "boot", file)...)
	if err != nil {
		return "", err
	}
	return message(res, "booted "+file), nil
}

// Sideload streams a package through adb sideload, passing each output line
// to onLine as it arrives. It returns the last non-empty line.
func (c *CLI) Sideload(ctx context.Context, serial, file string, onLine func(string)) (string, error) {
	args := withSerial(serial, "sideload", file)
	c.logger.Debug("running tool", "tool", c.adb, "args", args)

	last := ""
	err := c.runner.Stream(ctx, c.adb, args, func(line string) {
		last = line
		if onLine != nil {
			onLine(line)
		}
	})
	if err != nil {
		return "", err
	}
	if last == "" {
		last = "sideloaded " + file
	}
	return last, nil
}

// Reboot restarts the device through adb. ModeSystem sends no argument.
func (c *CLI) Reboot(ctx context.Context, serial, mode string) (string, error) {
	args := []string{"reboot"}
	if mode != "" && mode != "system" {
		args = append(args, mode)
	}
	res, err := c.run(ctx, c.adb, withSerial(serial, args...)...)
	if err != nil {
		return "", err
	}
	return message(res, "rebooted to "+modeName(mode)), nil
}

// RebootBootloader restarts a device that is in fastboot mode.
func (c *CLI) RebootBootloader(ctx context.Context, serial, mode string) (string, error) {
	var cmd string
	switch mode {
	case "", "system":
		cmd = "reboot"
	case "bootloader":
		cmd = "reboot-bootloader"
	case "recovery":
		cmd = "reboot-recovery"
	case "fastboot":
		cmd = "reboot-fastboot"
	default:
		return "", fmt.Errorf("%w: fastboot cannot reboot to %q", ErrUnsupportedMode, mode)
	}
	res, err := c.run(ctx, c.fastboot, withSerial(serial, cmd)...)
	if err != nil {
		return "", err
	}
	return message(res, "rebooted to "+modeName(mode)), nil
}

func (c *CLI) run(ctx context.Context, tool string, args ...string) (Result, error) {
	c.logger.Debug("running tool", "tool", tool, "args", args)
	res, err := c.runner.Run(ctx, tool, args...)
	if err != nil {
		c.logger.Debug("tool failed", "tool", tool, "args", args, "error", err)
	}
	return res, err
}

// withSerial prefixes args with "-s serial" unless serial is empty.
func withSerial(serial string, args ...string) []string {
	if serial == "" {
		return args
	}
	return append([]string{"-s", serial}, args...)
}

func message(res Result, fallback string) string {
	if out := res.Combined(); out != "" {
		return out
	}
	return fallback
}

func modeName(mode string) string {
	if mode == "" {
		return "system"
	}
	return mode
}

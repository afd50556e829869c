package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// Combined returns stdout followed by stderr, trimmed. fastboot reports
// progress on stderr, so callers that only want a message use this.
func (r Result) Combined() string {
	return strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
}

// Runner executes tool commands.
type Runner interface {
	// Run executes name with args and captures its output.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// Stream executes name with args, calling onLine for each line of
	// combined output as it is produced.
	Stream(ctx context.Context, name string, args []string, onLine func(string)) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // tool path comes from configuration
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return res, commandError(name, args, err, res.Combined())
	}
	return res, nil
}

// Stream implements Runner. Lines are split on '\n' and '\r' so adb's
// in-place progress updates arrive as separate lines.
func (ExecRunner) Stream(ctx context.Context, name string, args []string, onLine func(string)) error {
	pr, pw := io.Pipe()
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // tool path comes from configuration
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close() //nolint:errcheck // pipe close
		return commandError(name, args, err, "")
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.CloseWithError(io.EOF) //nolint:errcheck // unblocks the scanner
		waitErr <- err
	}()

	var last string
	scanner := bufio.NewScanner(pr)
	scanner.Split(scanLinesCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if onLine != nil {
			onLine(line)
		}
	}
	// Drain so Wait can finish if the scanner stopped early.
	_, _ = io.Copy(io.Discard, pr) //nolint:errcheck // best-effort drain

	if err := <-waitErr; err != nil {
		return commandError(name, args, err, last)
	}
	return nil
}

func commandError(name string, args []string, err error, output string) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrToolNotFound, name, err)
	}
	msg := output
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%w: %s %s: %s", ErrCommandFailed, name, strings.Join(args, " "), msg)
}

// scanLinesCR is bufio.ScanLines that also breaks on a bare '\r'.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

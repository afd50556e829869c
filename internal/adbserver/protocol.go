package adbserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

const protocolTimeout = 2 * time.Second

// Version asks the server at addr for its protocol version using the host
// request "host:version". Requests and replies are framed with a
// four-digit hex length; the reply starts with OKAY or FAIL.
func Version(ctx context.Context, addr string) (int, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(protocolTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline) //nolint:errcheck // best effort on a fresh conn

	if _, err := io.WriteString(conn, frame("host:version")); err != nil {
		return 0, fmt.Errorf("%w: writing request: %w", ErrUnhealthy, err)
	}

	status := make([]byte, 4)
	if _, err := io.ReadFull(conn, status); err != nil {
		return 0, fmt.Errorf("%w: reading status: %w", ErrUnhealthy, err)
	}

	payload, err := readFramed(conn)
	if err != nil {
		return 0, fmt.Errorf("%w: reading reply: %w", ErrUnhealthy, err)
	}

	if string(status) != "OKAY" {
		return 0, fmt.Errorf("%w: %s %s", ErrUnhealthy, status, payload)
	}

	v, err := strconv.ParseInt(payload, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad version %q", ErrUnhealthy, payload)
	}
	return int(v), nil
}

func frame(req string) string {
	return fmt.Sprintf("%04x%s", len(req), req)
}

func readFramed(r io.Reader) (string, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(head), 16, 16)
	if err != nil {
		return "", fmt.Errorf("bad length %q", head)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", err
	}
	return string(body), nil
}

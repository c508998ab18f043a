package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning reports that no bridge owns the control socket.
var ErrNotRunning = errors.New("voicebridge is not running")

// CommandError is a request the running bridge answered with OK=false.
type CommandError struct {
	Command Command
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Client sends control requests to a running bridge.
type Client struct {
	Path    string
	Timeout time.Duration
}

// Do performs one request/response roundtrip. A missing socket or one with
// no listener yields ErrNotRunning; an OK=false reply yields *CommandError
// alongside the response.
func (c Client) Do(ctx context.Context, command Command) (Response, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.Path)
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			return Response{}, fmt.Errorf("%w (%s)", ErrNotRunning, c.Path)
		}
		return Response{}, fmt.Errorf("dial %s: %w", c.Path, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(Request{Command: command}); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return resp, &CommandError{Command: command, Message: resp.Error}
	}
	return resp, nil
}

// Probe reports whether a responsive bridge currently owns path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Client{Path: path, Timeout: timeout}.Do(ctx, CommandStatus)
	var cmdErr *CommandError
	switch {
	case err == nil, errors.As(err, &cmdErr):
		return true, nil
	case errors.Is(err, ErrNotRunning):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

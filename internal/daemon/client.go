package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrConnectionClosed is returned when the daemon hangs up mid-exchange.
var ErrConnectionClosed = errors.New("daemon connection closed")

// maxLine bounds one NDJSON line; long final segments fit comfortably.
const maxLine = 1024 * 1024

// SocketPath returns the default daemon socket path.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "hearnow", "hearnow.sock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "hearnow", "hearnow.sock")
}

// Client is one NDJSON connection to the daemon. A command connection is
// used for request/response; a subscribed connection only reads events.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// Connect dials the daemon Unix socket.
func Connect(socketPath string) (*Client, error) {
	return ConnectContext(context.Background(), socketPath)
}

// ConnectContext dials the daemon Unix socket, honoring ctx.
func ConnectContext(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	return &Client{conn: conn, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// SendCommand sends a command and reads one response line.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	return c.SendCommandContext(context.Background(), cmd)
}

// SendCommandContext is SendCommand bounded by ctx's deadline. A daemon
// refusal (ok=false) is returned as a Response, not an error.
func (c *Client) SendCommandContext(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal %s command: %w", cmd.Cmd, err)
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return Response{}, fmt.Errorf("write %s command: %w", cmd.Cmd, err)
	}

	var resp Response
	if err := c.readLine(&resp); err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", cmd.Cmd, err)
	}
	return resp, nil
}

// Do sends cmd and turns a daemon refusal into an error.
func (c *Client) Do(ctx context.Context, cmd Command) (Response, error) {
	resp, err := c.SendCommandContext(ctx, cmd)
	if err != nil {
		return resp, err
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "rejected"
		}
		return resp, fmt.Errorf("%s: %s", cmd.Cmd, msg)
	}
	return resp, nil
}

// Subscribe turns this connection into an event stream. Read events with
// ReadEvent afterwards.
func (c *Client) Subscribe(ctx context.Context) error {
	_, err := c.Do(ctx, Command{Cmd: CmdSubscribe})
	return err
}

// ReadEvent reads the next event line. Blocks until data arrives.
func (c *Client) ReadEvent() (Event, error) {
	var ev Event
	if err := c.readLine(&ev); err != nil {
		return Event{}, fmt.Errorf("read event: %w", err)
	}
	return ev, nil
}

func (c *Client) readLine(v any) error {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return err
		}
		return ErrConnectionClosed
	}
	if err := json.Unmarshal(c.scanner.Bytes(), v); err != nil {
		return fmt.Errorf("decode %q: %w", c.scanner.Bytes(), err)
	}
	return nil
}

// Package mayacmd is the relay's channel into Maya's remote command port.
// It is used exactly twice per session: once to inject the debugpy bootstrap,
// once to submit the run directive for the user's program.
package mayacmd

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ConnectionError means Maya's command port was not reachable. This is fatal
// for the relay: there is no way to inject the debug engine without it. The
// remediation text is data, so the caller decides how to surface it.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to Maya's command port at %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Remediation returns the command the user must run inside Maya to open the
// command port this client needs.
func (e *ConnectionError) Remediation() string {
	return fmt.Sprintf(
		"Please run the following command in Maya and try again:\n\n\tcmds.commandPort(name=\"%s:%d\", sourceType=\"mel\")\n",
		e.Host, e.Port)
}

// Client submits Python snippets to Maya for execution. Submissions are
// serialized: the run directive can arrive while an earlier snippet is still
// being written out.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	scratch string
}

func NewClient() *Client {
	return &Client{scratch: filepath.Join(os.TempDir(), "mayadap_exec.py")}
}

// Connect dials Maya's command port with a bounded timeout. Failure yields a
// *ConnectionError carrying remediation guidance.
func (c *Client) Connect(host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return &ConnectionError{Host: host, Port: port, Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	log.Printf("Connected to Maya command port at %s", addr)
	return nil
}

// Submit writes the snippet to the scratch file and sends Maya the MEL
// command that executes it. Fire and forget: the command port's echo is not
// read.
func (c *Client) Submit(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected to Maya's command port")
	}

	if err := os.WriteFile(c.scratch, []byte(code), 0o600); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}

	cmd := fmt.Sprintf(execCommand, escapeForMEL(c.scratch))
	log.Printf("Maya <- %s", strings.TrimSpace(cmd))
	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("send command to Maya: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ABOUTME: Represents a single connected agent and its framed channel.
// ABOUTME: Serializes request/response exchanges and tracks session status.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/2389/tether/internal/wire"
)

// ErrConnectionClosed indicates the connection was closed before or during
// the exchange.
var ErrConnectionClosed = errors.New("connection closed")

// closeTimeout bounds the best-effort disconnect directive sent on Close.
const closeTimeout = 2 * time.Second

// Status is the lifecycle state of a Connection.
type Status int

const (
	StatusConnected Status = iota
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "CONNECTED"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Connection represents a connected agent.
type Connection struct {
	ID          int
	IP          string
	Port        int
	ConnectedAt time.Time

	conn    net.Conn
	channel *wire.Channel
	logger  *slog.Logger

	exchangeMu sync.Mutex // one request in flight

	mu     sync.RWMutex
	status Status
	cwd    string

	closeOnce sync.Once
}

// NewConnection wraps an accepted socket. The ID is assigned by the Manager.
func NewConnection(conn net.Conn, recvSize int, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	ip, port := splitAddr(conn.RemoteAddr())
	return &Connection{
		ID:          -1,
		IP:          ip,
		Port:        port,
		ConnectedAt: time.Now(),
		conn:        conn,
		channel:     wire.NewChannel(conn, recvSize),
		logger:      logger.With("agent_ip", ip),
		status:      StatusConnected,
	}
}

// Addr returns "ip:port".
func (c *Connection) Addr() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}

// Status returns the current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Cwd returns the last working directory reported by the agent.
func (c *Connection) Cwd() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cwd
}

// SetCwd records the agent's working directory.
func (c *Connection) SetCwd(cwd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cwd = cwd
}

// SendCommand sends cmd and waits for the single response frame.
// A failure after the request was written drops the connection.
func (c *Connection) SendCommand(ctx context.Context, cmd string) (string, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	if c.Status() == StatusClosed {
		return "", ErrConnectionClosed
	}

	if err := c.channel.Send(ctx, cmd); err != nil {
		if errors.Is(err, wire.ErrSentinelInPayload) {
			return "", err
		}
		c.fail(err)
		return "", fmt.Errorf("sending to %s: %w", c.IP, err)
	}

	resp, err := c.channel.Receive(ctx)
	if err != nil {
		c.fail(err)
		return "", fmt.Errorf("receiving from %s: %w", c.IP, err)
	}
	return resp, nil
}

// Notify sends cmd without waiting for a reply. It is used for directives
// after which the agent goes away, such as reboot.
func (c *Connection) Notify(ctx context.Context, cmd string) error {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	if c.Status() == StatusClosed {
		return ErrConnectionClosed
	}
	if err := c.channel.Send(ctx, cmd); err != nil {
		if !errors.Is(err, wire.ErrSentinelInPayload) {
			c.fail(err)
		}
		return fmt.Errorf("sending to %s: %w", c.IP, err)
	}
	return nil
}

// Close sends a best-effort disconnect directive and closes the socket.
// It never fails and is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		wasOpen := c.markClosed()

		// Skip the directive when an exchange is in flight; closing the
		// socket below unblocks it.
		if wasOpen && c.exchangeMu.TryLock() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if err := c.channel.Send(ctx, wire.DirectiveDisconnect); err != nil {
				c.logger.Debug("disconnect directive not delivered", "error", err)
			}
			cancel()
			c.exchangeMu.Unlock()
		}

		if err := c.channel.Close(); err != nil {
			c.logger.Debug("closing socket", "error", err)
		}
	})
}

// Drop closes the socket without telling the agent.
func (c *Connection) Drop() {
	c.closeOnce.Do(func() {
		c.markClosed()
		if err := c.channel.Close(); err != nil {
			c.logger.Debug("closing socket", "error", err)
		}
	})
}

// fail drops the connection after a broken exchange.
func (c *Connection) fail(err error) {
	c.logger.Warn("exchange failed, dropping connection", "agent_id", c.ID, "error", err)
	c.Drop()
}

// markClosed flips the status and reports whether it was open.
func (c *Connection) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasOpen := c.status == StatusConnected
	c.status = StatusClosed
	return wasOpen
}

// splitAddr extracts the IP and port of a remote address.
func splitAddr(addr net.Addr) (string, int) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// ABOUTME: Sentinel-framed send/receive over a single stream connection.
// ABOUTME: Maps context deadlines and cancellation onto socket deadlines.

package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Sentinel terminates every frame on the wire.
const Sentinel = "~!_TERM_$~"

// DefaultRecvSize is the read chunk size used when none is configured.
const DefaultRecvSize = 1024

var sentinelBytes = []byte(Sentinel)

// ErrTransport wraps every read or write failure caused by the peer or the
// network (reset, EOF, broken pipe).
var ErrTransport = errors.New("transport failure")

// ErrSentinelInPayload is returned by Send when the payload would break framing.
var ErrSentinelInPayload = errors.New("payload contains frame sentinel")

// Channel sends and receives sentinel-terminated frames over one connection.
type Channel struct {
	conn     net.Conn
	recvSize int
	buf      []byte
}

// NewChannel wraps conn. A non-positive recvSize falls back to DefaultRecvSize.
func NewChannel(conn net.Conn, recvSize int) *Channel {
	if recvSize <= 0 {
		recvSize = DefaultRecvSize
	}
	return &Channel{
		conn:     conn,
		recvSize: recvSize,
	}
}

// Send writes text followed by the sentinel as one frame.
func (c *Channel) Send(ctx context.Context, text string) error {
	if strings.Contains(text, Sentinel) {
		return ErrSentinelInPayload
	}

	stop := bindDeadline(ctx, c.conn.SetWriteDeadline)
	defer stop()

	frame := make([]byte, 0, len(text)+len(sentinelBytes))
	frame = append(frame, text...)
	frame = append(frame, sentinelBytes...)

	if _, err := c.conn.Write(frame); err != nil {
		return classify(ctx, "write", err)
	}
	return nil
}

// Receive blocks until a complete frame is buffered and returns its payload.
// Empty reads are retried; EOF and resets are reported as ErrTransport.
func (c *Channel) Receive(ctx context.Context) (string, error) {
	if msg, ok := c.nextFrame(); ok {
		return msg, nil
	}

	stop := bindDeadline(ctx, c.conn.SetReadDeadline)
	defer stop()

	chunk := make([]byte, c.recvSize)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if msg, ok := c.nextFrame(); ok {
				return msg, nil
			}
		}
		if err != nil {
			return "", classify(ctx, "read", err)
		}
	}
}

// Buffered reports how many received bytes are waiting for a sentinel.
func (c *Channel) Buffered() int {
	return len(c.buf)
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// nextFrame pops the first complete frame from the buffer.
func (c *Channel) nextFrame() (string, bool) {
	i := bytes.Index(c.buf, sentinelBytes)
	if i < 0 {
		return "", false
	}
	msg := string(c.buf[:i])

	rest := c.buf[i+len(sentinelBytes):]
	if len(rest) == 0 {
		c.buf = nil
	} else {
		c.buf = append([]byte(nil), rest...)
	}
	return msg, true
}

// bindDeadline applies the context deadline to the socket and arranges for
// cancellation to interrupt a blocked read or write. The returned func must
// be called when the operation is finished.
func bindDeadline(ctx context.Context, set func(time.Time) error) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = set(dl)
	} else {
		_ = set(time.Time{})
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = set(time.Now())
	})
	return func() {
		if !stop() {
			<-fired
		}
	}
}

// classify turns an I/O error into either the context error that caused it
// or an ErrTransport.
func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", op, ctxErr)
	}
	// The socket deadline can fire a moment before the context timer does.
	var netErr net.Error
	if _, hasDeadline := ctx.Deadline(); hasDeadline && errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s interrupted: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

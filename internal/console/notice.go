// ABOUTME: Coloured operator notices and raw agent output
// ABOUTME: Serializes writes so listener notices never split a response

package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/tether/internal/events"
)

// Console writes operator-facing output.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	info  *color.Color
	good  *color.Color
	warn  *color.Color
	bad   *color.Color
	faint *color.Color
}

// New creates a Console writing to out.
func New(out io.Writer) *Console {
	return &Console{
		out:   out,
		info:  color.New(color.FgCyan),
		good:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed, color.Bold),
		faint: color.New(color.FgHiBlack),
	}
}

// Write prints raw agent output unchanged.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Print writes agent output, adding a trailing newline if missing.
func (c *Console) Print(s string) {
	if s == "" {
		return
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, _ = io.WriteString(c, s)
}

// Notice prints an informational "< ... >" line.
func (c *Console) Notice(format string, args ...any) {
	c.line(c.info, format, args...)
}

// Success prints a green notice.
func (c *Console) Success(format string, args ...any) {
	c.line(c.good, format, args...)
}

// Warn prints a yellow notice.
func (c *Console) Warn(format string, args ...any) {
	c.line(c.warn, format, args...)
}

// Error prints err as a red notice.
func (c *Console) Error(err error) {
	c.line(c.bad, "%v", err)
}

// Event prints a session event as it arrives from the bus.
func (c *Console) Event(e events.Event) {
	switch e.Kind {
	case events.AgentConnected, events.TransferCompleted:
		c.line(c.good, "%s", e)
	case events.AgentDisconnected, events.AgentReplaced, events.HandshakeRejected:
		c.line(c.warn, "%s", e)
	case events.TransferFailed:
		c.line(c.bad, "%s", e)
	default:
		c.line(c.faint, "%s", e)
	}
}

// Table prints rows as aligned columns under a faint header.
func (c *Console) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	format := func(cells []string) string {
		var b strings.Builder
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
		return strings.TrimRight(b.String(), " ") + "\n"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.faint.Fprint(c.out, format(header))
	for _, row := range rows {
		_, _ = io.WriteString(c.out, format(row))
	}
}

func (c *Console) line(col *color.Color, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	c.mu.Lock()
	defer c.mu.Unlock()
	col.Fprintf(c.out, "< %s >\n", msg)
}

// ABOUTME: Interactive and batch command loops over a line source
// ABOUTME: Unmatched lines go to a fallback; errors are reported and the loop continues

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LineReader supplies operator input. io.EOF ends the loop.
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// Fallback handles a line no command claimed.
type Fallback func(ctx context.Context, line string) error

// Loop reads lines and dispatches them until a command ends it.
type Loop struct {
	Registry *Registry
	Input    LineReader

	// Prompt is evaluated before every read. Returning false ends the
	// loop as if Break had been signalled. Nil uses "> ".
	Prompt func(ctx context.Context) (string, bool)

	// Fallback receives unmatched lines. Nil reports them as unknown.
	Fallback Fallback

	// Report receives handler and fallback errors. Nil writes them to Out.
	Report func(err error)

	Out    io.Writer
	Logger *slog.Logger
}

// Run executes batch first, if given. Unless the batch ends the loop it
// then reads lines interactively. Break and EOF return ("", nil); Return(v)
// returns (v, nil). Errors are only returned for a failed read or a
// cancelled context.
func (l *Loop) Run(ctx context.Context, batch ...string) (string, error) {
	if len(batch) > 0 {
		sig := l.RunBatch(ctx, batch)
		if sig.Ends() {
			return sig.Value, nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		prompt, ok := l.prompt(ctx)
		if !ok {
			return "", nil
		}

		line, err := l.Input.ReadLine(ctx, prompt)
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", err
		}

		sig := l.Execute(ctx, line)
		if sig.Ends() {
			return sig.Value, nil
		}
	}
}

// RunBatch executes every line in order and then returns the strongest
// signal raised: Return over Break over Continue over None. The first
// Return's value wins.
func (l *Loop) RunBatch(ctx context.Context, lines []string) Signal {
	result := None()
	for _, line := range lines {
		if ctx.Err() != nil {
			break
		}
		sig := l.Execute(ctx, line)
		if sig.stronger(result) {
			result = sig
		}
	}
	return result
}

// Execute dispatches a single line and reports any error.
func (l *Loop) Execute(ctx context.Context, line string) Signal {
	line = strings.TrimSpace(line)
	if line == "" {
		return None()
	}

	sig, matched, err := l.Registry.Dispatch(ctx, line)
	if err != nil {
		l.report(err)
		return sig
	}
	if matched {
		l.logger().Debug("command dispatched", "line", line, "signal", sig.Action.String())
		return sig
	}

	if l.Fallback == nil {
		lead, _ := Split(line)
		l.report(fmt.Errorf("unknown command %q", lead))
		return None()
	}
	if err := l.Fallback(ctx, line); err != nil {
		l.report(err)
	}
	return None()
}

func (l *Loop) prompt(ctx context.Context) (string, bool) {
	if l.Prompt == nil {
		return "> ", true
	}
	return l.Prompt(ctx)
}

func (l *Loop) report(err error) {
	l.logger().Debug("command failed", "error", err)
	if l.Report != nil {
		l.Report(err)
		return
	}
	if l.Out != nil {
		fmt.Fprintf(l.Out, "< %v >\n", err)
	}
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

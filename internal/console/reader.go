// ABOUTME: Context-aware line reader over stdin or any io.Reader
// ABOUTME: Prompts are only printed when the input is a terminal

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

type lineResult struct {
	line string
	err  error
}

// Reader reads operator lines. A single background goroutine owns the
// scanner, so a read abandoned by context cancellation is not lost; the
// next ReadLine receives it.
type Reader struct {
	in     io.Reader
	out    io.Writer
	prompt bool

	start sync.Once
	lines chan lineResult
}

// NewReader reads from in and writes prompts to out. Prompts are written
// only when in is a terminal.
func NewReader(in io.Reader, out io.Writer) *Reader {
	return &Reader{
		in:     in,
		out:    out,
		prompt: IsTerminal(in),
		lines:  make(chan lineResult),
	}
}

// SetPrompting overrides terminal detection.
func (r *Reader) SetPrompting(on bool) {
	r.prompt = on
}

// IsTerminal reports whether r is an interactive terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ReadLine prints prompt and waits for a line, io.EOF, or ctx.
func (r *Reader) ReadLine(ctx context.Context, prompt string) (string, error) {
	r.start.Do(func() { go r.scan() })

	if r.prompt && prompt != "" {
		fmt.Fprint(r.out, "\r"+prompt)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}

func (r *Reader) scan() {
	defer close(r.lines)

	scanner := bufio.NewScanner(r.in)
	for scanner.Scan() {
		r.lines <- lineResult{line: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		r.lines <- lineResult{err: fmt.Errorf("reading input: %w", err)}
	}
}

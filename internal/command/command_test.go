// ABOUTME: Tests for the command registry, tokenizing and signal handling
// ABOUTME: Uses scripted input in place of an operator terminal

package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script feeds fixed lines and then io.EOF.
type script struct {
	lines   []string
	prompts []string
}

func (s *script) ReadLine(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func fn(name string, sig Signal, calls *[]string) *Func {
	return &Func{
		Names: []string{name},
		Handler: func(_ context.Context, args string) (Signal, error) {
			*calls = append(*calls, name+"("+args+")")
			return sig, nil
		},
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line, lead, rest string
	}{
		{"", "", ""},
		{"   ", "", ""},
		{"list", "list", ""},
		{"  use 10.0.0.2  ", "use", "10.0.0.2"},
		{"upload 'my file.txt' /tmp/x", "upload", "'my file.txt' /tmp/x"},
		{"'quoted' rest", "quoted", "rest"},
		{"client\t-b  uname -a", "client", "-b  uname -a"},
		{`"my cmd" arg`, "my cmd", "arg"},
		{`my\ cmd  arg two`, "my cmd", "arg two"},
		{`'it''s' x`, "its", "x"},
		{`"unterminated rest`, `"unterminated`, "rest"},
	}
	for _, tt := range tests {
		lead, rest := Split(tt.line)
		assert.Equal(t, tt.lead, lead, tt.line)
		assert.Equal(t, tt.rest, rest, tt.line)
	}
}

func TestArgs(t *testing.T) {
	args, err := Args(`"my file.txt" /tmp/dest\ dir`)
	require.NoError(t, err)
	assert.Equal(t, []string{"my file.txt", "/tmp/dest dir"}, args)

	_, err = Args(`"unterminated`)
	assert.Error(t, err)
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	var calls []string
	r := NewRegistry(
		fn("quit", Break(), &calls),
		&Func{Names: []string{"list"}, Disabled: true, Handler: func(context.Context, string) (Signal, error) {
			calls = append(calls, "disabled")
			return None(), nil
		}},
		fn("list", None(), &calls),
		fn("quit", Return("second"), &calls),
	)

	sig, matched, err := r.Dispatch(t.Context(), "quit now")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, ActionBreak, sig.Action)

	_, matched, err = r.Dispatch(t.Context(), "list")
	require.NoError(t, err)
	assert.True(t, matched)

	assert.Equal(t, []string{"quit(now)", "list()"}, calls)
}

func TestRegistry_ExactKeywordOnly(t *testing.T) {
	var calls []string
	r := NewRegistry(fn("use", None(), &calls))

	_, matched, err := r.Dispatch(t.Context(), "user add bob")
	require.NoError(t, err)
	assert.False(t, matched)

	_, _, err = r.Dispatch(t.Context(), "  ")
	assert.ErrorIs(t, err, ErrNoCommand)
	assert.Empty(t, calls)
}

func TestLoop_FallbackPassthrough(t *testing.T) {
	var calls, forwarded []string
	loop := &Loop{
		Registry: NewRegistry(fn("list", None(), &calls)),
		Input:    &script{lines: []string{"stat /tmp", "", "list", "ls -la \"a b\""}},
		Fallback: func(_ context.Context, line string) error {
			forwarded = append(forwarded, line)
			return nil
		},
	}

	value, err := loop.Run(t.Context())
	require.NoError(t, err)
	assert.Empty(t, value)
	assert.Equal(t, []string{"stat /tmp", `ls -la "a b"`}, forwarded)
	assert.Equal(t, []string{"list()"}, calls)
}

func TestLoop_ReturnUnwindsNestedLoops(t *testing.T) {
	var calls []string
	input := &script{lines: []string{"shell", "whoami", "done", "never-read"}}

	inner := &Loop{
		Registry: NewRegistry(fn("done", Return("done"), &calls)),
		Input:    input,
		Fallback: func(context.Context, string) error { return nil },
	}
	outer := &Loop{
		Registry: NewRegistry(&Func{
			Names: []string{"shell"},
			Handler: func(ctx context.Context, _ string) (Signal, error) {
				value, err := inner.Run(ctx)
				if err != nil {
					return None(), err
				}
				if value != "" {
					return Return(value), nil
				}
				return None(), nil
			},
		}),
		Input: input,
	}

	value, err := outer.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.Equal(t, []string{"never-read"}, input.lines)
}

func TestLoop_BreakEndsOnlyInnerLoop(t *testing.T) {
	var calls []string
	input := &script{lines: []string{"shell", "back", "after"}}

	inner := &Loop{Registry: NewRegistry(fn("back", Break(), &calls)), Input: input}
	outer := &Loop{
		Registry: NewRegistry(
			&Func{Names: []string{"shell"}, Handler: func(ctx context.Context, _ string) (Signal, error) {
				_, err := inner.Run(ctx)
				return None(), err
			}},
			fn("after", None(), &calls),
		),
		Input: input,
	}

	_, err := outer.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"back()", "after()"}, calls)
}

func TestLoop_BatchDefersSignals(t *testing.T) {
	var calls []string
	loop := &Loop{
		Registry: NewRegistry(
			fn("cmd-break", Break(), &calls),
			fn("cmd-a", None(), &calls),
			fn("cmd-b", Continue(), &calls),
		),
		Input: &script{lines: []string{"cmd-a"}},
	}

	value, err := loop.Run(t.Context(), "cmd-break", "cmd-a", "cmd-b")
	require.NoError(t, err)
	assert.Empty(t, value)
	// All three ran, then the deferred Break ended the loop before any
	// interactive read.
	assert.Equal(t, []string{"cmd-break()", "cmd-a()", "cmd-b()"}, calls)
	assert.Empty(t, loop.Input.(*script).prompts)
}

func TestLoop_BatchPrecedence(t *testing.T) {
	var calls []string
	loop := &Loop{Registry: NewRegistry(
		fn("b", Break(), &calls),
		fn("r1", Return("one"), &calls),
		fn("r2", Return("two"), &calls),
		fn("c", Continue(), &calls),
	)}

	assert.Equal(t, Return("one"), loop.RunBatch(t.Context(), []string{"b", "r1", "c", "r2"}))
	assert.Equal(t, Break(), loop.RunBatch(t.Context(), []string{"c", "b", "c"}))
	assert.Equal(t, Continue(), loop.RunBatch(t.Context(), []string{"c"}))
}

func TestLoop_BatchWithoutEndContinuesInteractively(t *testing.T) {
	var calls []string
	input := &script{lines: []string{"quit"}}
	loop := &Loop{
		Registry: NewRegistry(fn("a", Continue(), &calls), fn("quit", Return("bye"), &calls)),
		Input:    input,
	}

	value, err := loop.Run(t.Context(), "a")
	require.NoError(t, err)
	assert.Equal(t, "bye", value)
	assert.Equal(t, []string{"a()", "quit()"}, calls)
}

func TestLoop_HandlerErrorReported(t *testing.T) {
	boom := errors.New("boom")
	var out bytes.Buffer
	var calls []string
	loop := &Loop{
		Registry: NewRegistry(
			&Func{Names: []string{"fail"}, Handler: func(context.Context, string) (Signal, error) {
				return None(), boom
			}},
			fn("ok", None(), &calls),
		),
		Input: &script{lines: []string{"fail", "nope", "ok"}},
		Out:   &out,
	}

	_, err := loop.Run(t.Context())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "< boom >")
	assert.Contains(t, out.String(), `unknown command "nope"`)
	assert.Equal(t, []string{"ok()"}, calls)
}

func TestLoop_ReportHook(t *testing.T) {
	var reported []error
	loop := &Loop{
		Registry: NewRegistry(),
		Input:    &script{lines: []string{"x"}},
		Fallback: func(context.Context, string) error { return io.ErrUnexpectedEOF },
		Report:   func(err error) { reported = append(reported, err) },
	}

	_, err := loop.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], io.ErrUnexpectedEOF)
}

func TestLoop_PromptCanEndLoop(t *testing.T) {
	input := &script{lines: []string{"a", "b"}}
	reads := 0
	loop := &Loop{
		Registry: NewRegistry(),
		Input:    input,
		Fallback: func(context.Context, string) error { return nil },
		Prompt: func(context.Context) (string, bool) {
			reads++
			return "<agent> /home ", reads < 2
		},
	}

	_, err := loop.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"<agent> /home "}, input.prompts)
	assert.Equal(t, []string{"b"}, input.lines)
}

func TestLoop_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	loop := &Loop{Registry: NewRegistry(), Input: &script{lines: []string{"x"}}}
	_, err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

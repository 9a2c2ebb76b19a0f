// ABOUTME: Ordered command table with first-match keyword routing
// ABOUTME: Also provides shell-style tokenizing for handler arguments

package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/google/shlex"
)

// ErrNoCommand is returned by Dispatch for an empty line.
var ErrNoCommand = errors.New("no command")

// Command is a named operator action.
type Command interface {
	// Invocations lists the lead tokens that trigger the command.
	Invocations() []string
	// Enabled reports whether the command may currently match.
	Enabled() bool
	// Run executes the command with the raw text after the lead token.
	Run(ctx context.Context, args string) (Signal, error)
}

// Describer is implemented by commands that document themselves for help.
type Describer interface {
	Usage() string
	Help() string
}

// Func adapts a function to Command.
type Func struct {
	Names    []string
	UsageStr string
	HelpStr  string
	Disabled bool
	Handler  func(ctx context.Context, args string) (Signal, error)
}

func (f *Func) Invocations() []string { return f.Names }
func (f *Func) Enabled() bool         { return !f.Disabled && f.Handler != nil }
func (f *Func) Usage() string {
	if f.UsageStr != "" {
		return f.UsageStr
	}
	if len(f.Names) > 0 {
		return f.Names[0]
	}
	return ""
}
func (f *Func) Help() string { return f.HelpStr }

func (f *Func) Run(ctx context.Context, args string) (Signal, error) {
	return f.Handler(ctx, args)
}

// Registry holds commands in registration order.
type Registry struct {
	mu       sync.RWMutex
	commands []Command
}

// NewRegistry creates a registry containing cmds in order.
func NewRegistry(cmds ...Command) *Registry {
	r := &Registry{}
	r.Register(cmds...)
	return r
}

// Register appends cmds. Earlier registrations win on shared keywords.
func (r *Registry) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmds...)
}

// Commands returns the registered commands in order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.commands...)
}

// Lookup returns the first enabled command that answers to keyword.
func (r *Registry) Lookup(keyword string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cmd := range r.commands {
		if !cmd.Enabled() {
			continue
		}
		for _, name := range cmd.Invocations() {
			if name == keyword {
				return cmd, true
			}
		}
	}
	return nil, false
}

// Dispatch runs the command matching line's lead token. matched is false
// when no command claims the line; the caller decides what to do with it.
func (r *Registry) Dispatch(ctx context.Context, line string) (sig Signal, matched bool, err error) {
	lead, rest := Split(line)
	if lead == "" {
		return None(), false, ErrNoCommand
	}

	cmd, ok := r.Lookup(lead)
	if !ok {
		return None(), false, nil
	}
	sig, err = cmd.Run(ctx, rest)
	return sig, true, err
}

// Split separates the lead token from the raw remainder. The lead token is
// unquoted shell-style and may contain quoted spaces; the remainder is
// trimmed but otherwise untouched.
func Split(line string) (lead, rest string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}

	end := leadEnd(line)
	head := line
	if end >= 0 {
		head, rest = line[:end], strings.TrimSpace(line[end:])
	}

	if tokens, err := shlex.Split(head); err == nil && len(tokens) == 1 {
		return tokens[0], rest
	}
	return head, rest
}

// leadEnd returns the index of the first whitespace outside quotes and
// escapes, or -1 if the whole line is one token. An unterminated quote
// falls back to the first whitespace.
func leadEnd(line string) int {
	var quote rune
	escaped := false
	for i, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			return i
		}
	}
	if quote != 0 {
		return strings.IndexFunc(line, unicode.IsSpace)
	}
	return -1
}

// Args tokenizes handler arguments with shell quoting rules.
func Args(args string) ([]string, error) {
	return shlex.Split(args)
}

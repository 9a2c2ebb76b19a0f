// ABOUTME: Restart parameters rendered as key=value arguments
// ABOUTME: Used for the agent reboot directive and for the server's own restart

package restart

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/2389/tether/internal/wire"
)

// Params are the session parameters a restarted process needs to rejoin.
type Params struct {
	Host      string
	Port      int
	RecvSize  int
	SessionID string
}

// Args renders p as key=value arguments in a fixed order.
func (p Params) Args() []string {
	return []string{
		"host=" + p.Host,
		"port=" + strconv.Itoa(p.Port),
		"recv_size=" + strconv.Itoa(p.RecvSize),
		"session_id=" + p.SessionID,
	}
}

// AgentDirective builds the reboot directive sent to an agent.
func AgentDirective(p Params) string {
	return wire.Directive(wire.DirectiveReboot, p.Args()...)
}

// ParseArgs reads key=value arguments back into Params. Unknown keys and
// bare words are ignored; malformed numbers are errors.
func ParseArgs(args []string) (Params, error) {
	var p Params
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "host":
			p.Host = value
		case "port":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Params{}, fmt.Errorf("parsing port %q: %w", value, err)
			}
			p.Port = n
		case "recv_size":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Params{}, fmt.Errorf("parsing recv_size %q: %w", value, err)
			}
			p.RecvSize = n
		case "session_id":
			p.SessionID = value
		}
	}
	return p, nil
}

// Plan is a process to start in place of the current one.
type Plan struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// SelfPlan returns a plan that reruns the current executable with its
// original arguments and environment.
func SelfPlan() (Plan, error) {
	path, err := os.Executable()
	if err != nil {
		return Plan{}, fmt.Errorf("locating executable: %w", err)
	}
	dir, err := os.Getwd()
	if err != nil {
		return Plan{}, fmt.Errorf("reading working directory: %w", err)
	}
	return Plan{
		Path: path,
		Args: append([]string(nil), os.Args[1:]...),
		Env:  os.Environ(),
		Dir:  dir,
	}, nil
}

// Argv returns the full argument vector including argv[0].
func (p Plan) Argv() []string {
	return append([]string{p.Path}, p.Args...)
}

// WithParams returns a copy of p whose key=value arguments for the Params
// keys are replaced by params. Other arguments are kept in order.
func (p Plan) WithParams(params Params) Plan {
	keys := make(map[string]bool)
	for _, arg := range params.Args() {
		key, _, _ := strings.Cut(arg, "=")
		keys[key] = true
	}

	args := make([]string, 0, len(p.Args)+len(keys))
	for _, arg := range p.Args {
		if key, _, ok := strings.Cut(arg, "="); ok && keys[key] {
			continue
		}
		args = append(args, arg)
	}
	p.Args = append(args, params.Args()...)
	return p
}

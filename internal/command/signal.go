// ABOUTME: Control signals returned by command handlers
// ABOUTME: None, Continue, Break and Return(value)

package command

// Action is the control-flow effect of a Signal.
type Action int

const (
	ActionNone Action = iota
	ActionContinue
	ActionBreak
	ActionReturn
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionContinue:
		return "continue"
	case ActionBreak:
		return "break"
	case ActionReturn:
		return "return"
	default:
		return "unknown"
	}
}

// Signal tells the enclosing Loop what to do next. Value is only
// meaningful for ActionReturn.
type Signal struct {
	Action Action
	Value  string
}

// None keeps the loop going.
func None() Signal { return Signal{Action: ActionNone} }

// Continue keeps the loop going.
func Continue() Signal { return Signal{Action: ActionContinue} }

// Break ends the enclosing loop.
func Break() Signal { return Signal{Action: ActionBreak} }

// Return ends the enclosing loop with value.
func Return(value string) Signal { return Signal{Action: ActionReturn, Value: value} }

// Ends reports whether the signal terminates the enclosing loop.
func (s Signal) Ends() bool {
	return s.Action == ActionBreak || s.Action == ActionReturn
}

// stronger reports whether s takes precedence over other in a batch.
func (s Signal) stronger(other Signal) bool {
	return s.Action > other.Action
}

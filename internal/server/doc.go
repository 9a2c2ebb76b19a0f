// Package server wires the tether operator console together.
//
// A Server owns the event bus, the agent Manager, the listener, the
// background download writer, the optional session ledger and the operator
// shell. Run serves agents and reads operator commands until the operator
// quits, asks for a reboot, or the context is cancelled.
package server

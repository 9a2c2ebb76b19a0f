// ABOUTME: Package shell holds the operator and agent-shell command tables.
// ABOUTME: Commands act on the agent.Manager and report through the console.

// Package shell wires tether's commands into two nested command loops.
//
// The operator loop ("tether> ") manages agents:
//
//	list                      registered agents
//	use <ip|id>               select an agent and open its shell
//	use none                  clear the selection
//	broadcast <cmd>           send cmd to every agent (alias: client -b <cmd>)
//	update all                ask every agent to update itself
//	set <key> <value>         change a runtime setting
//	get [key]                 show runtime settings
//	history [n]               recent commands from the session ledger
//	help                      this list
//	reboot                    restart the server process
//	quit | exit | shutdown    stop the server
//
// Anything else is forwarded to the selected agent.
//
// The agent shell ("<ip> <cwd>> ") talks to the selected agent:
//
//	upload <local> [remote]   send a file
//	download <remote> [local] fetch a file in the background
//	reboot                    restart the agent with this server's parameters
//	back | detach             return to the operator loop
//	quit | exit               disconnect the agent and return
//
// Anything else is sent to the agent verbatim and its output printed.
package shell

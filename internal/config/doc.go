// Package config handles configuration loading for tether.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment
// variable expansion, then defaults are applied and the result validated.
// The resulting Config is immutable and passed into constructors.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from TETHER_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/tether/server.yaml (or ~/.config/tether/server.yaml)
//
// A missing default file is not an error; built-in defaults are used.
//
// # Environment Variable Expansion
//
//	database:
//	  path: "${TETHER_DB}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  bind_retry_delay: "1s"
//	  handshake_timeout: "10s"
//	  poll_interval: "100ms"
//	  command_timeout: "0s"   # 0 waits forever
//
// # Configuration Sections
//
// Server:
//
//	server:
//	  host: ""
//	  port: 6667
//	  recv_size: 1024
//	  listen_backlog: 10   # concurrent handshakes
//	  bind_retry: 5
//
// Session ledger:
//
//	database:
//	  path: "~/.local/share/tether/ledger.db"   # empty disables
//
// Transfers:
//
//	transfer:
//	  download_dir: "."
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Runtime Settings
//
// Settings holds the few values an operator may change from the prompt with
// `set <key> <value>`. Keys are whitelisted; each has a typed setter. Unknown
// keys return ErrUnknownSetting.
package config

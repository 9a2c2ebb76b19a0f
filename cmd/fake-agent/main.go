// ABOUTME: Minimal fake agent for E2E testing: connects over TCP, answers directives, echoes commands.
// ABOUTME: Usage: fake-agent [-addr localhost:6667] [-session ID] [-cwd /tmp/fake-agent]
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"

	"github.com/2389/tether/internal/wire"
)

func main() {
	addr := flag.String("addr", "localhost:6667", "tether server address")
	session := flag.String("session", "", "expected session ID (empty accepts any)")
	cwd := flag.String("cwd", "/tmp/fake-agent", "working directory to report")
	flag.Parse()

	if err := run(*addr, *session, *cwd); err != nil {
		log.Fatal(err)
	}
}

func run(addr, session, cwd string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	ch := wire.NewChannel(conn, wire.DefaultRecvSize)
	agent := newFakeAgent(session, cwd)

	for {
		cmd, err := ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, wire.ErrTransport) {
				return nil // server went away or graceful shutdown
			}
			return fmt.Errorf("recv error: %w", err)
		}
		log.Printf("received: %s", truncate(cmd, 80))

		reply, keep := agent.handle(cmd)
		if !keep {
			log.Printf("closing after %q", truncate(cmd, 80))
			return nil
		}
		if err := ch.Send(ctx, reply); err != nil {
			return fmt.Errorf("send error: %w", err)
		}
	}
}

// fakeAgent keeps just enough state to satisfy the server's directives.
// Uploaded files live in memory and can be downloaded again.
type fakeAgent struct {
	session string
	cwd     string
	ip      string
	port    string

	files         map[string][]byte
	pendingUpload string
	awaitingData  bool
}

func newFakeAgent(session, cwd string) *fakeAgent {
	return &fakeAgent{session: session, cwd: cwd, files: make(map[string][]byte)}
}

// handle returns the reply for cmd and whether the connection stays open.
func (a *fakeAgent) handle(cmd string) (string, bool) {
	if a.awaitingData {
		a.awaitingData = false
		data, err := base64.StdEncoding.DecodeString(cmd)
		if err != nil {
			return "Upload failed: " + err.Error(), true
		}
		a.files[a.pendingUpload] = data
		return fmt.Sprintf("Wrote %d bytes to %s", len(data), a.pendingUpload), true
	}

	name, arg, _ := strings.Cut(cmd, " ")
	switch name {
	case wire.DirectiveHandshake:
		if a.session != "" && arg != a.session {
			return "False", false
		}
		return wire.HandshakeAccepted, true
	case wire.DirectiveSetIP:
		a.ip = arg
		return "", true
	case wire.DirectiveSetPort:
		a.port = arg
		return "", true
	case wire.DirectiveGetCwd:
		return a.cwd, true
	case wire.DirectiveUploadFilepath:
		a.pendingUpload = arg
		return "", true
	case wire.DirectiveUploadData:
		a.awaitingData = true
		return "", true
	case wire.DirectiveGet:
		data, ok := a.files[arg]
		if !ok {
			return "File not found.", true
		}
		return base64.StdEncoding.EncodeToString(data), true
	case wire.DirectiveServerShutdown:
		return wire.ShutdownConfirmed, true
	case wire.DirectiveDisconnect, wire.DirectiveReboot:
		return "", false
	case wire.DirectiveUpdate:
		return "already up to date\n", true
	case "cd":
		if arg != "" {
			a.cwd = arg
		}
		return "", true
	}
	return fmt.Sprintf("echo (%s:%s): %s\n", a.ip, a.port, cmd), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

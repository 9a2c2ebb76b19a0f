// ABOUTME: Test helpers for the agent package
// ABOUTME: Fake agents on the far side of an in-memory pipe with a chosen address

package agent

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/2389/tether/internal/wire"
)

// tcpConn reports a fixed remote address so pipes look like TCP peers.
type tcpConn struct {
	net.Conn
	remote *net.TCPAddr
}

func (c tcpConn) RemoteAddr() net.Addr { return c.remote }

// fakeAgent answers frames on the agent side of a pipe.
type fakeAgent struct {
	mu       sync.Mutex
	received []string
	done     chan struct{}
}

func (f *fakeAgent) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

// respondFunc returns the reply for cmd; ok=false makes the agent hang up
// instead of replying.
type respondFunc func(cmd string) (reply string, ok bool)

func echo(cmd string) (string, bool) { return "echo:" + cmd, true }

func newFakeAgent(t *testing.T, ip string, port int, respond respondFunc) (*Connection, *fakeAgent) {
	t.Helper()

	serverSide, agentSide := net.Pipe()
	conn := NewConnection(tcpConn{Conn: serverSide, remote: &net.TCPAddr{IP: net.ParseIP(ip), Port: port}}, 64, nil)

	fa := &fakeAgent{done: make(chan struct{})}
	ch := wire.NewChannel(agentSide, 64)
	ctx := context.Background()

	go func() {
		defer close(fa.done)
		defer agentSide.Close()
		for {
			cmd, err := ch.Receive(ctx)
			if err != nil {
				return
			}
			fa.mu.Lock()
			fa.received = append(fa.received, cmd)
			fa.mu.Unlock()

			if cmd == wire.DirectiveDisconnect {
				return
			}
			reply, ok := respond(cmd)
			if !ok {
				return
			}
			if err := ch.Send(ctx, reply); err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		serverSide.Close()
		<-fa.done
	})
	return conn, fa
}

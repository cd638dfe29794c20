package ws

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/wguerze/websocket-app/pkg/transport"
)

// startPair upgrades one loopback connection and returns both channel ends.
func startPair(t *testing.T) (server, client transport.Channel) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer l.Close()

	srvCh := make(chan transport.Channel, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			errCh <- err
			return
		}
		s, err := NewUpgrader().Upgrade(conn)
		if err != nil {
			errCh <- err
			return
		}
		srvCh <- s
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err = NewDialer().Dial(ctx, "ws://"+l.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	select {
	case server = <-srvCh:
	case err := <-errCh:
		t.Fatalf("server side failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for upgrade")
	}

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func next(t *testing.T, ch transport.Channel) (transport.Message, error) {
	t.Helper()
	type result struct {
		m   transport.Message
		err error
	}
	res := make(chan result, 1)
	go func() {
		m, err := ch.Next()
		res <- result{m, err}
	}()
	select {
	case r := <-res:
		return r.m, r.err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a message")
		return transport.Message{}, nil
	}
}

func TestTextRoundTrip(t *testing.T) {
	server, client := startPair(t)

	if err := client.Send(transport.Text("ping me")); err != nil {
		t.Fatalf("client send failed: %v", err)
	}
	m, err := next(t, server)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if m.Type != transport.TypeText || string(m.Data) != "ping me" {
		t.Fatalf("server got %v %q", m.Type, m.Data)
	}

	if err := server.Send(transport.Text("pong")); err != nil {
		t.Fatalf("server send failed: %v", err)
	}
	m, err = next(t, client)
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if m.Type != transport.TypeText || string(m.Data) != "pong" {
		t.Fatalf("client got %v %q", m.Type, m.Data)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	server, client := startPair(t)

	payload := []byte{0x00, 0xff, 0x10, 0x20}
	if err := client.Send(transport.Binary(payload)); err != nil {
		t.Fatalf("client send failed: %v", err)
	}
	m, err := next(t, server)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if m.Type != transport.TypeBinary || string(m.Data) != string(payload) {
		t.Fatalf("server got %v %v", m.Type, m.Data)
	}
}

func TestPingIsAnsweredTransparently(t *testing.T) {
	server, client := startPair(t)

	if err := client.Send(transport.Message{Type: transport.TypePing}); err != nil {
		t.Fatalf("client ping failed: %v", err)
	}

	// The server surfaces the ping as a message to skip...
	m, err := next(t, server)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if m.Type != transport.TypePing {
		t.Fatalf("server got %v, want ping", m.Type)
	}

	// ...and the pong reply was written without any Send on the server side.
	m, err = next(t, client)
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if m.Type != transport.TypePong {
		t.Fatalf("client got %v, want pong", m.Type)
	}
}

func TestPeerCloseSurfacesOnceThenEOF(t *testing.T) {
	server, client := startPair(t)

	if err := client.Send(transport.Message{Type: transport.TypeClose}); err != nil {
		t.Fatalf("client close frame failed: %v", err)
	}

	m, err := next(t, server)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if m.Type != transport.TypeClose {
		t.Fatalf("server got %v, want close", m.Type)
	}

	if _, err := next(t, server); err != io.EOF {
		t.Fatalf("second read after close: %v, want io.EOF", err)
	}

	// The client sees the acknowledging close frame.
	m, err = next(t, client)
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if m.Type != transport.TypeClose {
		t.Fatalf("client got %v, want close ack", m.Type)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server, client := startPair(t)
	_ = server

	if err := client.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestRemoteAddr(t *testing.T) {
	server, client := startPair(t)
	if server.RemoteAddr() == nil || client.RemoteAddr() == nil {
		t.Fatalf("missing remote addresses")
	}
}

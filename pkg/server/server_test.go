package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/wguerze/websocket-app/pkg/config"
	"github.com/wguerze/websocket-app/pkg/session"
	"github.com/wguerze/websocket-app/pkg/transport"
	wstransport "github.com/wguerze/websocket-app/pkg/transport/ws"
)

func startServer(t *testing.T, maxSessions, keepaliveS int) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		Listen:             "127.0.0.1:0",
		MaxSessions:        maxSessions,
		KeepaliveIntervalS: keepaliveS,
		CountLogIntervalS:  1,
		ShutdownGraceS:     2,
	}
	s := New(cfg, wstransport.NewUpgrader())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func dialSession(t *testing.T, s *Server) transport.Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := wstransport.NewDialer().Dial(ctx, "ws://"+s.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func readMessage(t *testing.T, ch transport.Channel) transport.Message {
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
		if r.err != nil {
			t.Fatalf("read failed: %v", r.err)
		}
		return r.m
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for a message")
		return transport.Message{}
	}
}

func readGreeting(t *testing.T, ch transport.Channel) {
	t.Helper()
	m := readMessage(t, ch)
	if m.Type != transport.TypeText || string(m.Data) != session.Greeting {
		t.Fatalf("expected greeting, got %v %q", m.Type, m.Data)
	}
}

func waitActive(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ActiveSessions() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("active sessions stuck at %d, want %d", s.ActiveSessions(), want)
}

func TestGreetingAndEcho(t *testing.T) {
	s := startServer(t, 2, 30)
	ch := dialSession(t, s)

	readGreeting(t, ch)

	if err := ch.Send(transport.Text("hello")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	m := readMessage(t, ch)
	if m.Type != transport.TypeText || string(m.Data) != "Echo: hello" {
		t.Fatalf("expected echo, got %v %q", m.Type, m.Data)
	}
	if !strings.Contains(string(m.Data), "hello") {
		t.Fatalf("echo does not embed the input: %q", m.Data)
	}
}

func TestBinaryMessageKeepsSessionOpen(t *testing.T) {
	s := startServer(t, 1, 30)
	ch := dialSession(t, s)
	readGreeting(t, ch)

	if err := ch.Send(transport.Binary([]byte{0xde, 0xad})); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := ch.Send(transport.Text("after binary")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	m := readMessage(t, ch)
	if string(m.Data) != "Echo: after binary" {
		t.Fatalf("binary triggered a response before %q", m.Data)
	}
}

// readRejection reads the raw bytes an over-capacity peer receives.
func readRejection(t *testing.T, addr string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("raw dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	return string(raw)
}

func TestCapacityScenario(t *testing.T) {
	s := startServer(t, 1, 30)

	// A is admitted.
	a := dialSession(t, s)
	readGreeting(t, a)
	waitActive(t, s, 1)

	// B is rejected on the raw socket, before any upgrade.
	resp := readRejection(t, s.Addr().String())
	if !strings.HasPrefix(resp, "HTTP/1.1 503 Service Unavailable\r\n") {
		t.Fatalf("unexpected rejection status in %q", resp)
	}
	if !strings.Contains(resp, "limit reached (1)") {
		t.Fatalf("rejection body does not state the limit: %q", resp)
	}

	// Closing A frees the slot; C is then admitted.
	_ = a.Close()
	waitActive(t, s, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var c transport.Channel
	var err error
	for i := 0; i < 20; i++ {
		c, err = wstransport.NewDialer().Dial(ctx, "ws://"+s.Addr().String())
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial after release failed: %v", err)
	}
	defer c.Close()
	readGreeting(t, c)
}

func TestZeroCapacityRejectsEverything(t *testing.T) {
	s := startServer(t, 0, 30)
	resp := readRejection(t, s.Addr().String())
	if !strings.Contains(resp, "503 Service Unavailable") {
		t.Fatalf("expected 503, got %q", resp)
	}
}

func TestKeepaliveProbeOnIdleSession(t *testing.T) {
	s := startServer(t, 1, 1)
	ch := dialSession(t, s)
	readGreeting(t, ch)

	// An idle session must be probed, not dropped.
	m := readMessage(t, ch)
	if m.Type != transport.TypePing {
		t.Fatalf("expected liveness probe, got %v", m.Type)
	}

	if err := ch.Send(transport.Text("still alive")); err != nil {
		t.Fatalf("send after probe failed: %v", err)
	}
	for {
		m = readMessage(t, ch)
		if m.Type == transport.TypePing || m.Type == transport.TypePong {
			continue
		}
		break
	}
	if string(m.Data) != "Echo: still alive" {
		t.Fatalf("session unusable after probe: %v %q", m.Type, m.Data)
	}
}

func TestShutdownClosesSessionsWithinGrace(t *testing.T) {
	s := startServer(t, 2, 30)
	a := dialSession(t, s)
	b := dialSession(t, s)
	readGreeting(t, a)
	readGreeting(t, b)
	waitActive(t, s, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := s.ActiveSessions(); got != 0 {
		t.Fatalf("active sessions after shutdown: %d", got)
	}

	// Both peers observe the close.
	for _, ch := range []transport.Channel{a, b} {
		m, err := ch.Next()
		if err == nil && m.Type == transport.TypeClose {
			continue
		}
		if !errors.Is(err, io.EOF) {
			t.Fatalf("peer observed neither close frame nor EOF: %v %v", m, err)
		}
	}
}

// Package session owns the lifecycle of one admitted connection: counter
// bookkeeping, protocol upgrade, greeting, keepalive, message loop, and
// cleanup on every exit path.
package session

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wguerze/websocket-app/pkg/gate"
	"github.com/wguerze/websocket-app/pkg/transport"
)

// Greeting is sent exactly once on every upgraded session, before any echo.
const Greeting = "Connected to WebSocket server"

const echoPrefix = "Echo: "

// Supervisor drives one admitted connection end to end. It holds the permit
// for the session's lifetime and guarantees that the register is decremented
// and the permit released on every exit path, panics included.
type Supervisor struct {
	conn      net.Conn
	upgrader  transport.Upgrader
	permit    *gate.Permit
	register  *Register
	keepalive time.Duration
	shutdown  <-chan struct{}
	log       *zap.Logger
}

// NewSupervisor wires a supervisor for an accepted raw connection. The permit
// must already be acquired; ownership transfers to the supervisor.
func NewSupervisor(conn net.Conn, up transport.Upgrader, permit *gate.Permit, reg *Register, keepalive time.Duration, shutdown <-chan struct{}) *Supervisor {
	return &Supervisor{
		conn:      conn,
		upgrader:  up,
		permit:    permit,
		register:  reg,
		keepalive: keepalive,
		shutdown:  shutdown,
		log: zap.L().With(
			zap.String("session", uuid.NewString()),
			zap.String("peer", conn.RemoteAddr().String()),
		),
	}
}

// Run blocks until the session terminates. Intended to be spawned as its own
// goroutine by the accept loop.
func (s *Supervisor) Run() {
	total := s.register.Increment()
	s.log.Info("connection opened", zap.Int("active", total))

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session panic", zap.Any("panic", r))
		}
		remaining := s.register.Decrement()
		s.permit.Release()
		s.log.Info("connection closed", zap.Int("active", remaining))
	}()

	ch, err := s.upgrader.Upgrade(s.conn)
	if err != nil {
		s.log.Error("websocket handshake failed", zap.Error(err))
		_ = s.conn.Close()
		return
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Send(transport.Text(Greeting)); err != nil {
		s.log.Error("failed to send welcome message", zap.Error(err))
		return
	}

	s.loop(ch)
}

// loop waits symmetrically on inbound messages and the keepalive signal until
// the session ends.
func (s *Supervisor) loop(ch transport.Channel) {
	type inbound struct {
		msg transport.Message
		err error
	}

	done := make(chan struct{})
	defer close(done)

	msgs := make(chan inbound)
	go func() {
		for {
			m, err := ch.Next()
			select {
			case msgs <- inbound{msg: m, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	// Keepalive sub-task: signals the loop through a single-slot queue.
	ping := make(chan struct{}, 1)
	go func() {
		t := time.NewTicker(s.keepalive)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				select {
				case ping <- struct{}{}:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case in := <-msgs:
			if in.err != nil {
				if errors.Is(in.err, io.EOF) {
					s.log.Info("connection closed by peer")
				} else {
					s.log.Error("websocket read failed", zap.Error(in.err))
				}
				return
			}
			switch in.msg.Type {
			case transport.TypeText:
				text := string(in.msg.Data)
				s.log.Info("received text", zap.String("text", text))
				if err := ch.Send(transport.Text(echoPrefix + text)); err != nil {
					s.log.Error("failed to send echo", zap.Error(err))
					return
				}
			case transport.TypeBinary:
				s.log.Info("received binary", zap.Int("bytes", len(in.msg.Data)))
			case transport.TypeClose:
				s.log.Info("client initiated close")
				return
			case transport.TypePing, transport.TypePong:
				// liveness frames are answered inside the transport
			}
		case <-ping:
			if err := ch.Send(transport.Message{Type: transport.TypePing}); err != nil {
				s.log.Error("failed to send ping", zap.Error(err))
				return
			}
		case <-s.shutdown:
			s.log.Info("server shutting down, closing session")
			_ = ch.Send(transport.Message{Type: transport.TypeClose})
			return
		}
	}
}

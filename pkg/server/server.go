// Package server runs the accept loop of the websocket session service:
// admission against the gate, supervisor spawning, rejection of
// over-capacity peers, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wguerze/websocket-app/pkg/config"
	"github.com/wguerze/websocket-app/pkg/gate"
	"github.com/wguerze/websocket-app/pkg/session"
	"github.com/wguerze/websocket-app/pkg/transport"
)

// Server accepts connections and hands admitted ones to session supervisors.
type Server struct {
	cfg      config.ServerConfig
	gate     *gate.Gate
	register *session.Register
	upgrader transport.Upgrader

	ln       net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

// New builds a Server from the immutable configuration snapshot.
func New(cfg config.ServerConfig, up transport.Upgrader) *Server {
	return &Server{
		cfg:      cfg,
		gate:     gate.New(cfg.MaxSessions),
		register: session.NewRegister(),
		upgrader: up,
		shutdown: make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop and the active-count
// ticker. A bind failure is fatal and returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln

	zap.L().Info("websocket server listening", zap.String("addr", ln.Addr().String()))
	zap.L().Info("maximum concurrent sessions", zap.Int("max", s.cfg.MaxSessions))

	go s.logActiveCount()
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// ActiveSessions returns the current register value.
func (s *Server) ActiveSessions() int { return s.register.Current() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-s.shutdown:
				return
			default:
			}
			// Transient accept failures never stop the loop.
			zap.L().Error("failed to accept connection", zap.Error(err))
			continue
		}

		permit := s.gate.TryAcquire()
		if permit == nil {
			zap.L().Warn("session limit reached, rejecting connection",
				zap.Int("max", s.cfg.MaxSessions),
				zap.String("peer", conn.RemoteAddr().String()))
			go s.reject(conn)
			continue
		}

		sup := session.NewSupervisor(conn, s.upgrader, permit, s.register, s.cfg.KeepaliveInterval(), s.shutdown)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sup.Run()
		}()
	}
}

// reject answers an over-capacity peer on the still-unupgraded connection so
// it gets a diagnosable response instead of a silent drop. Runs off the
// accept loop so a slow peer cannot stall admission.
func (s *Server) reject(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	body := fmt.Sprintf("Maximum concurrent connections limit reached (%d)", s.cfg.MaxSessions)
	resp := fmt.Sprintf("HTTP/1.1 503 Service Unavailable\r\n"+
		"Content-Type: text/plain\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n%s", len(body), body)

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(resp)); err != nil {
		zap.L().Debug("failed to write rejection response", zap.Error(err))
	}
}

// logActiveCount periodically reports the register value. Observability only:
// it never gates the accept loop or any supervisor.
func (s *Server) logActiveCount() {
	t := time.NewTicker(s.cfg.CountLogInterval())
	defer t.Stop()
	for {
		select {
		case <-t.C:
			zap.L().Info("active sessions", zap.Int("count", s.register.Current()))
		case <-s.shutdown:
			return
		}
	}
}

// Shutdown stops accepting, signals every live supervisor to send a close
// frame and terminate, and waits for them up to the context deadline. The
// caller bounds the grace period through ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		if s.ln != nil {
			_ = s.ln.Close()
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

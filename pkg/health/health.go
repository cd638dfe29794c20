// Package health runs the plaintext liveness responder used by orchestration
// probes. Every connection gets the same fixed success response.
package health

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const body = "OK"

// Responder answers every inbound connection with a fixed HTTP 200 and
// closes it.
type Responder struct {
	ln       net.Listener
	stopOnce sync.Once
}

// Start binds the responder and begins serving. The caller decides whether a
// bind failure is fatal; for the session service it is logged and ignored.
func Start(addr string) (*Responder, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind health listener %s: %w", addr, err)
	}
	r := &Responder{ln: ln}
	zap.L().Info("health check server listening", zap.String("addr", ln.Addr().String()))
	go r.serve()
	return r, nil
}

// Addr returns the bound address.
func (r *Responder) Addr() net.Addr { return r.ln.Addr() }

// Close stops the responder.
func (r *Responder) Close() error {
	var err error
	r.stopOnce.Do(func() { err = r.ln.Close() })
	return err
}

func (r *Responder) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go respond(conn)
	}
}

func respond(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\n"+
		"Content-Type: text/plain\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n%s", len(body), body)

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(resp)); err != nil {
		zap.L().Debug("failed to write health response", zap.Error(err))
	}
}

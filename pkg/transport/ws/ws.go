// Package ws implements the transport.Channel contract over websocket using
// gobwas/ws. The server side upgrades a raw accepted net.Conn directly, which
// lets the accept loop answer over-capacity peers on the unupgraded socket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/wguerze/websocket-app/pkg/transport"
)

// Upgrader performs the server-side websocket handshake on a raw connection.
// Safe for concurrent use.
type Upgrader struct {
	u ws.Upgrader
}

func NewUpgrader() *Upgrader { return &Upgrader{} }

func (u *Upgrader) Upgrade(conn net.Conn) (transport.Channel, error) {
	if _, err := u.u.Upgrade(conn); err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return newChannel(conn, nil, ws.StateServerSide), nil
}

// Dialer establishes outbound client-side channels.
type Dialer struct {
	d ws.Dialer
}

func NewDialer() *Dialer { return &Dialer{} }

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Channel, error) {
	conn, br, _, err := d.d.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	// br holds frames that arrived buffered behind the handshake response.
	var src io.Reader = conn
	if br != nil {
		src = br
	}
	return newChannel(conn, src, ws.StateClientSide), nil
}

type channel struct {
	conn  net.Conn
	state ws.State
	r     *wsutil.Reader

	// wmu serializes every write to conn: data frames from Send and the
	// control replies written while handling an inbound ping or close.
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	peerClosed bool
}

func newChannel(conn net.Conn, src io.Reader, state ws.State) *channel {
	if src == nil {
		src = conn
	}
	c := &channel{conn: conn, state: state}
	c.r = wsutil.NewReader(src, state)
	return c
}

func (c *channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *channel) Send(m transport.Message) error {
	var op ws.OpCode
	switch m.Type {
	case transport.TypeText:
		op = ws.OpText
	case transport.TypeBinary:
		op = ws.OpBinary
	case transport.TypePing:
		op = ws.OpPing
	case transport.TypePong:
		op = ws.OpPong
	case transport.TypeClose:
		return c.sendClose()
	default:
		return fmt.Errorf("unsupported message type %v", m.Type)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteMessage(c.conn, c.state, op, m.Data)
}

func (c *channel) sendClose() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	return wsutil.WriteMessage(c.conn, c.state, ws.OpClose, body)
}

// Next reads the next inbound message. An inbound ping is answered before it
// is surfaced; a peer close frame is acknowledged and surfaced once as
// TypeClose, after which Next reports io.EOF.
func (c *channel) Next() (transport.Message, error) {
	if c.peerClosed {
		return transport.Message{}, io.EOF
	}
	for {
		hdr, err := c.r.NextFrame()
		if err != nil {
			return transport.Message{}, mapReadErr(err)
		}
		payload, err := io.ReadAll(c.r)
		if err != nil {
			return transport.Message{}, mapReadErr(err)
		}
		switch hdr.OpCode {
		case ws.OpText:
			return transport.Message{Type: transport.TypeText, Data: payload}, nil
		case ws.OpBinary:
			return transport.Message{Type: transport.TypeBinary, Data: payload}, nil
		case ws.OpPing:
			c.wmu.Lock()
			err = wsutil.WriteMessage(c.conn, c.state, ws.OpPong, payload)
			c.wmu.Unlock()
			if err != nil {
				return transport.Message{}, err
			}
			return transport.Message{Type: transport.TypePing}, nil
		case ws.OpClose:
			// Acknowledge best-effort; the peer may already be gone.
			c.wmu.Lock()
			_ = wsutil.WriteMessage(c.conn, c.state, ws.OpClose, payload)
			c.wmu.Unlock()
			c.peerClosed = true
			return transport.Message{Type: transport.TypeClose}, nil
		case ws.OpPong:
			return transport.Message{Type: transport.TypePong}, nil
		default:
			// continuation of a fragmented message; not produced by our peers
			continue
		}
	}
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		// Best-effort close frame; the conn close below is what matters.
		_ = c.sendClose()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func mapReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return err
}

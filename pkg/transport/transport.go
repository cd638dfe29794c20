package transport

import (
	"context"
	"net"
)

// Type identifies a message variant on the duplex channel.
type Type int

const (
	TypeText Type = iota
	TypeBinary
	TypeClose
	TypePing
	TypePong
)

func (t Type) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeBinary:
		return "binary"
	case TypeClose:
		return "close"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	default:
		return "unknown"
	}
}

// Message is one discrete unit exchanged over a Channel. Data is nil for
// control variants surfaced without payload.
type Message struct {
	Type Type
	Data []byte
}

// Text builds a text message from s.
func Text(s string) Message { return Message{Type: TypeText, Data: []byte(s)} }

// Binary builds a binary message holding b.
func Binary(b []byte) Message { return Message{Type: TypeBinary, Data: b} }

// Channel is a duplex message stream over one upgraded connection.
// Exactly one goroutine calls Next; Send and Close may be called from other
// goroutines and are internally synchronized against control replies.
type Channel interface {
	// Send writes one message. A send failure means the connection is lost.
	Send(Message) error
	// Next blocks for the next inbound message. It returns io.EOF when the
	// peer went away without a close frame; a peer-initiated close surfaces
	// as a TypeClose message followed by io.EOF.
	Next() (Message, error)
	// Close attempts a graceful close frame and then closes the underlying
	// connection. Safe to call more than once.
	Close() error
	// RemoteAddr reports the peer address.
	RemoteAddr() net.Addr
}

// Upgrader performs the protocol upgrade on a raw accepted connection.
// On error the raw connection is left to the caller to discard.
type Upgrader interface {
	Upgrade(conn net.Conn) (Channel, error)
}

// Dialer establishes an outbound upgraded Channel.
type Dialer interface {
	Dial(ctx context.Context, url string) (Channel, error)
}

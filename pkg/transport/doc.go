// Package transport defines the duplex message-channel contract consumed by
// the session layer and provides the websocket implementation (subpackage ws).
//
// Key concepts:
// - Message: one discrete frame-level unit (text, binary, close, ping, pong)
// - Channel: a bidirectional stream of Messages over one upgraded connection
// - Upgrader: performs the protocol upgrade on a raw accepted net.Conn
// - Dialer: establishes an outbound, already-upgraded Channel
//
// Protocol-level liveness frames are handled inside the Channel: an inbound
// ping is answered before it is surfaced, so callers only ever observe it as
// a message to skip.
package transport

// Package netconn implements Connection: framing plus a last-seen
// timestamp layered over one transport.StreamTransport, exposing a
// sendMessage/recvMessage/close trio.
package netconn

import (
	"sync"
	"time"

	"github.com/tensorfabric/fabric/pkg/transport"
	"github.com/tensorfabric/fabric/pkg/wire"
)

// Connection owns a transport, tracks the monotonic time of the last
// successful receive, and serializes sends with a per-connection mutex —
// the design note in the concurrency model recommends this over routing
// sends through the worker pool.
type Connection struct {
	transport transport.StreamTransport
	sendMu    sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
}

// New wraps t as a framed Connection with LastSeen initialized to now.
func New(t transport.StreamTransport) *Connection {
	return &Connection{
		transport: t,
		lastSeen:  time.Now(),
	}
}

// SendMessage frames and sends one message. Safe for concurrent callers;
// serialized by an internal mutex so heartbeat and dispatcher sends on the
// same connection never interleave.
func (c *Connection) SendMessage(msgType wire.MsgType, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return wire.WriteFrame(transport.Writer{T: c.transport}, msgType, payload)
}

// RecvMessage blocks for the next frame. On success it updates LastSeen.
// Returns the zero-length-frame error or any transport error unchanged on
// failure (the caller is expected to tear the connection down).
func (c *Connection) RecvMessage() (wire.MsgType, []byte, error) {
	msgType, payload, err := wire.ReadFrame(transport.Reader{T: c.transport})
	if err != nil {
		return 0, nil, err
	}
	c.touch()
	return msgType, payload, nil
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the monotonic time of the most recent successful
// receive (or connection creation, if none yet).
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Close half-shuts the write side then fully releases the transport.
func (c *Connection) Close() error {
	c.transport.CloseWrite()
	return c.transport.Close()
}

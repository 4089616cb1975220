package transport

import (
	"io"
	"net"
)

// TCP wraps a *net.TCPConn as a StreamTransport, enabling TCP_NODELAY via
// its own socket option call.
type TCP struct {
	conn *net.TCPConn
}

// DialTCP connects to addr and returns a ready StreamTransport with
// TCP_NODELAY enabled.
func DialTCP(addr string) (*TCP, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTCP("tcp", nil, raddr)
	if err != nil {
		return nil, err
	}
	if err := conn.SetNoDelay(true); err != nil {
		conn.Close()
		return nil, err
	}
	return &TCP{conn: conn}, nil
}

// NewTCP wraps an already-accepted *net.TCPConn, enabling TCP_NODELAY.
func NewTCP(conn *net.TCPConn) (*TCP, error) {
	if err := conn.SetNoDelay(true); err != nil {
		return nil, err
	}
	return &TCP{conn: conn}, nil
}

func (t *TCP) SendAll(buf []byte) error {
	for len(buf) > 0 {
		n, err := t.conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (t *TCP) RecvExact(buf []byte) error {
	_, err := io.ReadFull(t.conn, buf)
	return err
}

func (t *TCP) CloseWrite() error {
	return t.conn.CloseWrite()
}

func (t *TCP) Close() error {
	return t.conn.Close()
}

// RemoteAddr returns the peer's address string, used as the registry's
// human-readable NodeInfo.Addr.
func (t *TCP) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

var _ StreamTransport = (*TCP)(nil)

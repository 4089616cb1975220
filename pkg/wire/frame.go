// Package wire implements the length-prefixed binary framing protocol and
// its fixed payload layouts: a frame is [uint32 length_be][uint8
// type][payload] where length = 1 + len(payload).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies a frame's payload shape.
type MsgType uint8

const (
	// MsgResourceReport carries a worker's reported RAM/thread capacity.
	MsgResourceReport MsgType = 1
	// MsgPing is sent by the coordinator to probe liveness.
	MsgPing MsgType = 2
	// MsgPong acknowledges a Ping.
	MsgPong MsgType = 3
	// MsgShutdown announces a graceful worker departure.
	MsgShutdown MsgType = 4
	// MsgConfig carries a msgpack-encoded NodeAssignment, coordinator to worker.
	MsgConfig MsgType = 5
)

func (t MsgType) String() string {
	switch t {
	case MsgResourceReport:
		return "RESOURCE_REPORT"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgShutdown:
		return "SHUTDOWN"
	case MsgConfig:
		return "CONFIG"
	case MsgHello:
		return "HELLO"
	case MsgActivation:
		return "ACTIVATION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// ErrZeroLengthFrame is returned when a received frame declares length 0,
// which is always invalid (length counts at least the type tag byte).
var ErrZeroLengthFrame = errors.New("zero-length frame")

// ErrBadResourceReportSize is returned when a RESOURCE_REPORT payload is not
// exactly 12 bytes.
var ErrBadResourceReportSize = errors.New("resource report payload must be 12 bytes")

// WriteFrame composes the 5-byte header and payload into a single write and
// sends it via w. w is expected to implement send-all semantics itself (see
// transport.StreamTransport); WriteFrame here targets any io.Writer, used
// directly by tests and indirectly by netconn.Connection over a transport
// adapter.
func WriteFrame(w io.Writer, msgType MsgType, payload []byte) error {
	length := uint32(1 + len(payload))
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(msgType)
	copy(buf[5:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame from r: a 4-byte big-endian length, then exactly
// that many more bytes (type tag + payload). Returns ErrZeroLengthFrame when
// length == 0; any io error from the underlying reader (including io.EOF on
// clean close) propagates unchanged.
func ReadFrame(r io.Reader) (MsgType, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return 0, nil, ErrZeroLengthFrame
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return MsgType(body[0]), body[1:], nil
}

// EncodeResourceReport serializes (ramBytes, threads) into the fixed 12-byte
// big-endian RESOURCE_REPORT payload.
func EncodeResourceReport(ramBytes uint64, threads uint32) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[0:8], ramBytes)
	binary.BigEndian.PutUint32(buf[8:12], threads)
	return buf
}

// DecodeResourceReport parses a 12-byte RESOURCE_REPORT payload. Any other
// length is rejected.
func DecodeResourceReport(payload []byte) (ramBytes uint64, threads uint32, err error) {
	if len(payload) != 12 {
		return 0, 0, fmt.Errorf("%w: got %d bytes", ErrBadResourceReportSize, len(payload))
	}
	ramBytes = binary.BigEndian.Uint64(payload[0:8])
	threads = binary.BigEndian.Uint32(payload[8:12])
	return ramBytes, threads, nil
}

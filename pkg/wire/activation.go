package wire

import (
	"github.com/vmihailenco/msgpack/v5"
)

// HELLO is the worker's first frame to the coordinator, letting it
// advertise the address its own activation listener is reachable at (the
// coordinator cannot learn this from the accepted socket's peer address,
// since that is the worker's ephemeral outbound port, not a listening
// port); ACTIVATION is exchanged directly between two workers on the
// forwarding chain the partitioner constructs, never touching the
// coordinator connection.
const (
	// MsgHello carries the worker's activation-listener address (a UTF-8
	// "host:port" string), sent once immediately after dialing the
	// coordinator and before the first RESOURCE_REPORT.
	MsgHello MsgType = 6
	// MsgActivation carries one msgpack-encoded tensor, sent worker to
	// worker along the forward-chain built by the partitioner.
	MsgActivation MsgType = 7
)

// activationPayload is the wire shape for one tensor crossing an
// ACTIVATION frame: shape plus flat row-major data, mirroring the
// canonical msgpack encoding already used for CONFIG.
type activationPayload struct {
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// EncodeActivation serializes a tensor's shape and flat data into an
// ACTIVATION payload.
func EncodeActivation(shape []int, data []float32) ([]byte, error) {
	return msgpack.Marshal(activationPayload{Shape: shape, Data: data})
}

// DecodeActivation parses an ACTIVATION payload back into shape and flat
// data slices.
func DecodeActivation(payload []byte) (shape []int, data []float32, err error) {
	var p activationPayload
	if err := msgpack.Unmarshal(payload, &p); err != nil {
		return nil, nil, err
	}
	return p.Shape, p.Data, nil
}

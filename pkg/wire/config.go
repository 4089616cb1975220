package wire

import (
	"github.com/tensorfabric/fabric/pkg/partition"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeConfig serializes a NodeAssignment into the canonical CONFIG payload
// encoding: msgpack, the self-describing format already used elsewhere in
// this codebase for structured wire/disk payloads. Field order is declared
// by the msgpack struct tags on partition.NodeAssignment, in the order:
// node_index, layer_begin, layer_end, array_bytes, next_addr, is_first,
// is_last.
func EncodeConfig(a partition.NodeAssignment) ([]byte, error) {
	return msgpack.Marshal(a)
}

// DecodeConfig deserializes a CONFIG payload back into a NodeAssignment. A
// round-trip of EncodeConfig/DecodeConfig is the identity for any
// NodeAssignment value.
func DecodeConfig(payload []byte) (partition.NodeAssignment, error) {
	var a partition.NodeAssignment
	err := msgpack.Unmarshal(payload, &a)
	return a, err
}

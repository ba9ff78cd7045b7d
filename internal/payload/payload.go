// Package payload encodes the uplink frame of the node.
//
// Frame layout (5 bytes):
//
//	byte 0    tx reason
//	byte 1    tx power, signed dBm
//	byte 2    data rate
//	byte 3-4  supply level in mV, big endian
package payload

import (
	"encoding/binary"
	"fmt"

	"github.com/sweeney/lora-node/internal/logic"
)

// Size is the encoded frame length.
const Size = 5

// Frame is a decoded uplink.
type Frame struct {
	Reason   logic.TxReason `json:"reason"`
	TxPower  int8           `json:"tx_power"`
	DataRate uint8          `json:"data_rate"`
	SupplyMv uint16         `json:"supply_mv"`
}

// Encode appends the frame to dst[:0] and returns it.
func Encode(dst []byte, f Frame) []byte {
	dst = append(dst[:0], byte(f.Reason), byte(f.TxPower), f.DataRate, 0, 0)
	binary.BigEndian.PutUint16(dst[3:], f.SupplyMv)
	return dst
}

// Decode parses a frame.
func Decode(b []byte) (Frame, error) {
	if len(b) != Size {
		return Frame{}, fmt.Errorf("frame length %d, want %d", len(b), Size)
	}
	return Frame{
		Reason:   logic.TxReason(b[0]),
		TxPower:  int8(b[1]),
		DataRate: b[2],
		SupplyMv: binary.BigEndian.Uint16(b[3:]),
	}, nil
}

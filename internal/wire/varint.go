// Package wire implements the Minecraft Java-edition framed wire protocol:
// varint-prefixed packets, zlib compression at or above a threshold, and
// AES-128-CFB8 encryption, chained in that order on the outbound side.
package wire

import (
	"errors"
	"io"
)

const (
	// MaxVarIntBytes is the maximum number of bytes a 32-bit varint can occupy.
	MaxVarIntBytes = 5

	segmentBits = 0x7F
	continueBit = 0x80
)

// ErrVarIntTooBig is returned when a varint exceeds MaxVarIntBytes without
// terminating.
var ErrVarIntTooBig = errors.New("wire: varint is too big")

// ReadVarInt reads a little-endian 7-bit-group varint from r.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var value int32
	var position uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= int32(b&segmentBits) << position
		if b&continueBit == 0 {
			return value, nil
		}
		position += 7
		if position >= 32 {
			return 0, ErrVarIntTooBig
		}
	}
}

// PutVarInt appends the varint encoding of v to buf and returns the result.
func PutVarInt(buf []byte, v int32) []byte {
	uv := uint32(v)
	for {
		if uv&^segmentBits == 0 {
			return append(buf, byte(uv))
		}
		buf = append(buf, byte(uv&segmentBits)|continueBit)
		uv >>= 7
	}
}

// VarIntSize returns the number of bytes PutVarInt would emit for v.
func VarIntSize(v int32) int {
	uv := uint32(v)
	n := 1
	for uv&^segmentBits != 0 {
		uv >>= 7
		n++
	}
	return n
}

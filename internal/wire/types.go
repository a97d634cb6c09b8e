package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/google/uuid"
)

// ErrStringTooLong guards against a maliciously large length-prefix on a
// string field turning into an oversized allocation.
var ErrStringTooLong = errors.New("wire: string field too long")

const maxStringBytes = 1 << 16

// PutString appends a varint-length-prefixed UTF-8 string, the encoding
// used for every string field in the protocol (usernames, server IDs,
// base64 key blobs, textures JSON).
func PutString(buf []byte, s string) []byte {
	buf = PutVarInt(buf, int32(len(s)))
	return append(buf, s...)
}

// ReadString reads a PutString-encoded field from r.
func ReadString(r *bytes.Reader) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > maxStringBytes {
		return "", ErrStringTooLong
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return string(out), nil
}

// PutByteArray appends a varint-length-prefixed opaque byte slice, used for
// the RSA public key and verify-token/shared-secret fields.
func PutByteArray(buf []byte, b []byte) []byte {
	buf = PutVarInt(buf, int32(len(b)))
	return append(buf, b...)
}

// ReadByteArray reads a PutByteArray-encoded field from r.
func ReadByteArray(r *bytes.Reader) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > maxStringBytes {
		return nil, ErrStringTooLong
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutUUID appends a player UUID as 16 raw bytes, the encoding used by the
// 1.16+ LoginSuccess packet (earlier versions used the dashed string form
// via PutString instead).
func PutUUID(buf []byte, id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return append(buf, b...)
}

// PutUint16 appends a big-endian uint16, used for port fields in the
// handshake packet.
func PutUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

// ReadUint16 reads a big-endian uint16 field, the encoding used by the
// handshake packet's server-port field.
func ReadUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

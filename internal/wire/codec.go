package wire

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrUnexpectedEnd signals EOF inside a partial frame.
	ErrUnexpectedEnd = errors.New("wire: unexpected end of stream inside frame")
	// ErrEndOfStream signals a clean EOF at a frame boundary.
	ErrEndOfStream = errors.New("wire: end of stream")
	// ErrFrameTooLarge signals a decoded frame length outside [0, MaxFrameSize].
	ErrFrameTooLarge = errors.New("wire: frame-too-large")
	// ErrFrameCorrupt signals a decompression failure.
	ErrFrameCorrupt = errors.New("wire: frame-corrupt")
)

// compressorPool bounds the number of live zlib writers, matching the
// "pooled per execution thread" requirement with a goroutine-agnostic
// sync.Pool instead of a thread-local.
var compressorPool = sync.Pool{
	New: func() any { return zlib.NewWriter(io.Discard) },
}

// Encoder serializes Packets onto an underlying byte stream, applying
// compression and then encryption in that order.
type Encoder struct {
	mu  sync.Mutex
	out io.Writer

	compressionThreshold int // -1 disabled
	encStream            cipher.Stream
}

// NewEncoder returns an Encoder with compression and encryption disabled.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{out: w, compressionThreshold: -1}
}

// SetWriter replaces the underlying writer, used when the connection enables
// a raw passthrough or reassigns buffering.
func (e *Encoder) SetWriter(w io.Writer) {
	e.mu.Lock()
	e.out = w
	e.mu.Unlock()
}

// SetCompression sets the zlib threshold; a negative value disables
// compression.
func (e *Encoder) SetCompression(threshold int) {
	e.mu.Lock()
	e.compressionThreshold = threshold
	e.mu.Unlock()
}

// DisableCompression turns compression off.
func (e *Encoder) DisableCompression() {
	e.SetCompression(-1)
}

// EnableEncryption installs the outbound AES-128-CFB8 stream. Per the wire
// contract this must only be called between frames.
func (e *Encoder) EnableEncryption(stream cipher.Stream) {
	e.mu.Lock()
	e.encStream = stream
	e.mu.Unlock()
}

// WritePacket encodes and writes p as a single frame.
func (e *Encoder) WritePacket(p Packet) error {
	payload := PutVarInt(nil, p.ID)
	payload = append(payload, p.Data...)
	return e.writeFrame(payload)
}

// WriteRaw writes a pre-encoded {id, data} payload, bypassing Packet
// construction (used for legacy passthrough of captured bytes).
func (e *Encoder) WriteRaw(payload []byte) error {
	return e.writeFrame(payload)
}

func (e *Encoder) writeFrame(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var body []byte
	if e.compressionThreshold >= 0 {
		if len(payload) >= e.compressionThreshold {
			compressed, err := compress(payload)
			if err != nil {
				return fmt.Errorf("wire: compress payload: %w", err)
			}
			body = PutVarInt(nil, int32(len(payload)))
			body = append(body, compressed...)
		} else {
			body = PutVarInt(nil, 0)
			body = append(body, payload...)
		}
	} else {
		body = payload
	}

	frame := PutVarInt(nil, int32(len(body)))
	frame = append(frame, body...)

	if e.encStream != nil {
		e.encStream.XORKeyStream(frame, frame)
	}

	_, err := e.out.Write(frame)
	return err
}

func compress(payload []byte) ([]byte, error) {
	zw := compressorPool.Get().(*zlib.Writer)
	defer compressorPool.Put(zw)

	var buf bytes.Buffer
	zw.Reset(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decoder deserializes Packets from an underlying byte stream.
type Decoder struct {
	br *bufio.Reader

	compressionThreshold int
	decStream            cipher.Stream
}

// NewDecoder returns a Decoder with compression and encryption disabled.
func NewDecoder(r *bufio.Reader) *Decoder {
	return &Decoder{br: r, compressionThreshold: -1}
}

// SetReader replaces the underlying buffered reader.
func (d *Decoder) SetReader(r *bufio.Reader) {
	d.br = r
}

// SetCompressionThreshold sets the decoder's compression mode; a negative
// value means the wire is not compressed.
func (d *Decoder) SetCompressionThreshold(threshold int) {
	d.compressionThreshold = threshold
}

// DisableCompression turns compression off.
func (d *Decoder) DisableCompression() {
	d.compressionThreshold = -1
}

// EnableEncryption installs the inbound AES-128-CFB8 stream.
func (d *Decoder) EnableEncryption(stream cipher.Stream) {
	d.decStream = stream
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.br.ReadByte()
	if err != nil {
		return 0, err
	}
	if d.decStream != nil {
		buf := [1]byte{b}
		d.decStream.XORKeyStream(buf[:], buf[:])
		b = buf[0]
	}
	return b, nil
}

func (d *Decoder) readVarInt() (int32, error) {
	var value int32
	var position uint
	for {
		b, err := d.readByte()
		if err != nil {
			if err == io.EOF && position > 0 {
				return 0, ErrUnexpectedEnd
			}
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

func (d *Decoder) readFull(n int32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.br, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrUnexpectedEnd
		}
		return nil, err
	}
	if d.decStream != nil {
		d.decStream.XORKeyStream(buf, buf)
	}
	return buf, nil
}

// ReadPacket reads and fully decodes the next frame. At a clean frame
// boundary (no bytes buffered, peer closed) it returns ErrEndOfStream.
func (d *Decoder) ReadPacket() (Packet, error) {
	length, err := d.readVarInt()
	if err != nil {
		if err == io.EOF {
			return Packet{}, ErrEndOfStream
		}
		return Packet{}, err
	}
	if length < 0 || length > MaxFrameSize {
		return Packet{}, ErrFrameTooLarge
	}

	body, err := d.readFull(length)
	if err != nil {
		return Packet{}, err
	}

	var payload []byte
	if d.compressionThreshold >= 0 {
		payload, err = d.decompressBody(body)
		if err != nil {
			return Packet{}, err
		}
	} else {
		payload = body
	}

	br := bytes.NewReader(payload)
	id, err := ReadVarInt(br)
	if err != nil {
		return Packet{}, fmt.Errorf("wire: read packet id: %w", ErrUnexpectedEnd)
	}
	data := make([]byte, br.Len())
	_, _ = br.Read(data)
	return Packet{ID: id, Data: data}, nil
}

func (d *Decoder) decompressBody(body []byte) ([]byte, error) {
	br := bytes.NewReader(body)
	dataLen, err := ReadVarInt(br)
	if err != nil {
		return nil, fmt.Errorf("wire: read data-length: %w", ErrUnexpectedEnd)
	}
	rest := body[len(body)-br.Len():]
	if dataLen == 0 {
		return rest, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
	}
	defer zr.Close()
	out := make([]byte, dataLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
	}
	return out, nil
}

package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// cfb8Stream implements AES-128-CFB8: an 8-bit (single byte) segment cipher
// feedback mode. The standard library's cipher.NewCFBEncrypter only
// implements full-block-size feedback (CFB128), which is incompatible with
// the Minecraft protocol's byte-at-a-time framing, so the 1-byte segment
// variant is implemented directly over crypto/aes's block primitive.
type cfb8Stream struct {
	block     cipher.Block
	register  []byte
	tmp       []byte
	decrypt   bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) *cfb8Stream {
	register := make([]byte, len(iv))
	copy(register, iv)
	return &cfb8Stream{
		block:    block,
		register: register,
		tmp:      make([]byte, block.BlockSize()),
		decrypt:  decrypt,
	}
}

// XORKeyStream implements cipher.Stream. dst and src may overlap exactly.
func (c *cfb8Stream) XORKeyStream(dst, src []byte) {
	n := len(c.register)
	for i := range src {
		c.block.Encrypt(c.tmp, c.register)
		in := src[i]
		out := in ^ c.tmp[0]

		var feedback byte
		if c.decrypt {
			feedback = in
		} else {
			feedback = out
		}
		copy(c.register, c.register[1:n])
		c.register[n-1] = feedback

		dst[i] = out
	}
}

// NewEncryptStream returns the keystream cipher.Stream for the outbound
// (encrypting) direction, keyed by a 16-byte shared secret used as both the
// AES-128 key and the CFB8 IV, per the Notchian protocol.
func NewEncryptStream(sharedSecret []byte) (cipher.Stream, error) {
	block, err := newSharedSecretBlock(sharedSecret)
	if err != nil {
		return nil, err
	}
	return newCFB8(block, sharedSecret, false), nil
}

// NewDecryptStream returns the keystream cipher.Stream for the inbound
// (decrypting) direction.
func NewDecryptStream(sharedSecret []byte) (cipher.Stream, error) {
	block, err := newSharedSecretBlock(sharedSecret)
	if err != nil {
		return nil, err
	}
	return newCFB8(block, sharedSecret, true), nil
}

func newSharedSecretBlock(sharedSecret []byte) (cipher.Block, error) {
	if len(sharedSecret) != 16 {
		return nil, fmt.Errorf("wire: shared secret must be 16 bytes, got %d", len(sharedSecret))
	}
	return aes.NewCipher(sharedSecret)
}

// Package codec implements the optional at-rest protections for the index
// document: zstd compression and XChaCha20-Poly1305 encryption. Both are
// no-ops when unconfigured, so the default repository stores a plain JSON
// index exactly as spec.md §6 describes.
package codec

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCiphertextTooShort is returned by Decode when the encrypted payload is
// smaller than a nonce, which can only mean the file is corrupt or was
// never encrypted with this codec.
var ErrCiphertextTooShort = errors.New("codec: ciphertext shorter than nonce")

// Shared zstd encoder/decoder: construction allocates internal state
// tables, so the pack reuses one instance across calls rather than paying
// that cost per index save.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Codec applies compression and, if a secret is configured, encryption to
// the index document before it is written to disk. A zero-value Codec is
// the identity transform.
type Codec struct {
	aead     interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
	compress bool
}

// New builds a Codec. secret may be nil to disable encryption; compress
// enables zstd compression of the plaintext before any encryption is
// applied.
func New(secret []byte, compress bool) (*Codec, error) {
	c := &Codec{compress: compress}

	if len(secret) == 0 {
		return c, nil
	}

	key := blake2b.Sum256(secret)

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: building cipher: %w", err)
	}

	c.aead = aead

	return c, nil
}

// Encode compresses (if enabled) then encrypts (if a secret was
// configured) plaintext, in that order. A nil *Codec is the identity
// transform, so callers that never configured one can pass it through
// unchecked.
func (c *Codec) Encode(plaintext []byte) ([]byte, error) {
	if c == nil {
		return plaintext, nil
	}

	data := plaintext

	if c.compress {
		data = zstdEncoder.EncodeAll(data, nil)
	}

	if c.aead == nil {
		return data, nil
	}

	nonce := make([]byte, c.aead.NonceSize())

	_, err := rand.Read(nonce)
	if err != nil {
		return nil, fmt.Errorf("codec: generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, data, nil)

	return append(nonce, sealed...), nil
}

// Decode reverses [Codec.Encode]: decrypt first (if a secret is
// configured), then decompress (if enabled). A nil *Codec is the identity
// transform.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if c == nil {
		return data, nil
	}

	out := data

	if c.aead != nil {
		nonceSize := c.aead.NonceSize()
		if len(out) < nonceSize {
			return nil, ErrCiphertextTooShort
		}

		nonce, ciphertext := out[:nonceSize], out[nonceSize:]

		plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("codec: decrypting: %w", err)
		}

		out = plain
	}

	if c.compress {
		decoded, err := zstdDecoder.DecodeAll(out, nil)
		if err != nil {
			return nil, fmt.Errorf("codec: decompressing: %w", err)
		}

		out = decoded
	}

	return out, nil
}

// Package itemid computes content-addressed identifiers for backed-up
// files: the SHA-512 hash of a file's entire byte content.
package itemid

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// ID is the cryptographic hash of a file's content. Equal content produces
// an equal ID; collisions are treated as unreachable, per spec.md §3.
type ID []byte

// Of streams r through a SHA-512 hasher without buffering the whole file in
// memory.
func Of(r io.Reader) (ID, error) {
	h := sha512.New()

	_, err := io.Copy(h, r)
	if err != nil {
		return nil, fmt.Errorf("hashing content: %w", err)
	}

	return ID(h.Sum(nil)), nil
}

// OfWithChecksum streams r through both a SHA-512 hasher and a fast xxh3
// checksum in a single pass, so callers that want both (the repository's
// scan-cache fast path) never read a file's content twice.
func OfWithChecksum(r io.Reader) (ID, uint64, error) {
	h := sha512.New()
	x := xxh3.New()

	_, err := io.Copy(io.MultiWriter(h, x), r)
	if err != nil {
		return nil, 0, fmt.Errorf("hashing content: %w", err)
	}

	return ID(h.Sum(nil)), x.Sum64(), nil
}

// String renders the id as lowercase hex, the form used for object-store
// filenames.
func (id ID) String() string {
	return hex.EncodeToString(id)
}

// Base64 renders the id as standard base64, the form used in the index
// document (spec.md §6).
func (id ID) Base64() string {
	return base64.StdEncoding.EncodeToString(id)
}

// FromBase64 parses an id previously produced by [ID.Base64].
func FromBase64(s string) (ID, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding item id: %w", err)
	}

	return ID(b), nil
}

// FromHex parses an id previously produced by [ID.String].
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding item id: %w", err)
	}

	return ID(b), nil
}

// Equal reports whether id and other are the same content hash.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id, other)
}

// Compare orders ids by their raw bytes, returning -1, 0 or +1.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id, other)
}

// Package blobkey implements the content-addressed identifier used
// throughout the blob cache: a 20-byte SHA-1 digest of a blob's contents.
package blobkey

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/jobrun/blobcache/internal/blobcacheerr"
)

// Size is the fixed width of a BlobKey in bytes.
const Size = 20

// Key is an opaque 20-byte content identifier. The zero value is the
// all-zero key, used to represent "no key chosen yet" — a get against it
// always misses.
type Key [Size]byte

// FromBytes builds a Key from exactly Size bytes. It fails with
// KindInvalidKeySize for any other length.
func FromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != Size {
		return k, blobcacheerr.New(blobcacheerr.KindInvalidKeySize, "blobkey:fromBytes", nil)
	}
	copy(k[:], b)
	return k, nil
}

// Zero reports whether k is the all-zero key.
func (k Key) Zero() bool {
	return k == Key{}
}

// Equal reports whether k and other hold the same 20 bytes.
func (k Key) Equal(other Key) bool {
	return k == other
}

// Compare returns -1, 0 or 1 comparing k to other as unsigned big-endian
// byte sequences, giving a total order over keys.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k[:], other[:])
}

// Hex renders k as 40 lowercase hex characters.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// String implements fmt.Stringer as the hex form, for logging.
func (k Key) String() string {
	return k.Hex()
}

// Bytes returns the key's 20 raw bytes.
func (k Key) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, k[:])
	return b
}

// ParseHex parses a 40-character lowercase hex string back into a Key.
func ParseHex(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, blobcacheerr.New(blobcacheerr.KindInvalidKeySize, "blobkey:parseHex", err)
	}
	return FromBytes(b)
}

// Read decodes a Key from exactly 20 bytes read from r, failing with
// KindUnexpectedEOF if the stream ends early.
func Read(r io.Reader) (Key, error) {
	var k Key
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return Key{}, blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "blobkey:read", err)
	}
	return k, nil
}

// Write encodes k as its 20 raw bytes to w.
func Write(w io.Writer, k Key) error {
	_, err := w.Write(k[:])
	if err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "blobkey:write", err)
	}
	return nil
}

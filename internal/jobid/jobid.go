// Package jobid stands in for the job-execution runtime's job identifier
// type. The runtime owns the real type and its serialization; this package
// only captures the fixed-width-byte-buffer shape the blob cache needs in
// order to accept a JobID on the wire for provenance without indexing by it.
package jobid

import "encoding/hex"

// Size is the wire width of a job identifier. The runtime this cache serves
// fixes this at build time; it is not negotiated over the wire.
const Size = 16

// ID is an opaque, fixed-width job identifier. The cache never inspects its
// contents beyond carrying it through to the audit trail.
type ID [Size]byte

// Bytes returns the identifier's raw bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// String renders id as hex, for audit logging.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// FromBytes builds an ID from exactly Size bytes.
func FromBytes(b []byte) (ID, bool) {
	var id ID
	if len(b) != Size {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// Package blobcacheerr defines the error taxonomy shared by every component
// of the blob cache: the store, the wire codec, the roles, the client and
// the facade all return errors constructed here rather than ad hoc
// errors.New calls scattered through the codebase.
package blobcacheerr

import "fmt"

// Kind classifies a blob cache error into one of the taxonomy's buckets.
// Callers should branch on Kind via errors.As, never on error string text.
type Kind int

const (
	// KindIO covers any filesystem or socket failure not covered below.
	KindIO Kind = iota
	// KindNotFound means a get/getURL could not locate the requested blob.
	KindNotFound
	// KindNotInitialized means a facade operation ran before a role was set up.
	KindNotInitialized
	// KindAlreadyInitialized means a facade init call found a role already active.
	KindAlreadyInitialized
	// KindUnexpectedEOF means a socket or stream ended in the middle of a frame.
	KindUnexpectedEOF
	// KindProtocolViolation means a peer sent bytes the wire codec does not accept.
	KindProtocolViolation
	// KindCorruptTransfer means a post-transfer digest did not match the expected key.
	KindCorruptTransfer
	// KindInvalidKeySize means a BlobKey was built from a slice whose length isn't 20.
	KindInvalidKeySize
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotInitialized:
		return "not_initialized"
	case KindAlreadyInitialized:
		return "already_initialized"
	case KindUnexpectedEOF:
		return "unexpected_eof"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindCorruptTransfer:
		return "corrupt_transfer"
	case KindInvalidKeySize:
		return "invalid_key_size"
	default:
		return "io"
	}
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind Kind
	Op   string // component:operation, e.g. "filestore:promote"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, blobcacheerr.NotFound) work without callers needing
// to construct a matching Op/Err pair.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind, wrapping cause (which may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// sentinel values usable with errors.Is; their Err and Op fields are ignored
// by Is and only Kind is compared.
var (
	NotFound           = &Error{Kind: KindNotFound}
	NotInitialized     = &Error{Kind: KindNotInitialized}
	AlreadyInitialized = &Error{Kind: KindAlreadyInitialized}
	UnexpectedEOF      = &Error{Kind: KindUnexpectedEOF}
	ProtocolViolation  = &Error{Kind: KindProtocolViolation}
	CorruptTransfer    = &Error{Kind: KindCorruptTransfer}
	InvalidKeySize     = &Error{Kind: KindInvalidKeySize}
)

// IsKind reports whether err is, or wraps, a blob cache error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return asError(err, &e) && e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

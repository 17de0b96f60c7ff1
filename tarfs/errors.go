package tarfs

import "github.com/go-errors/errors"

// ErrKind is one of §7's abstract error kinds. The FUSE host binding maps
// these onto unix errno values; tarfs itself never speaks errno.
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrOutOfMemory
	ErrIO
	ErrReadOnlyFS
	ErrNoSuchEntry
	ErrExists
	ErrNotEmpty
	ErrBusy
	ErrIsDir
	ErrNotDir
	ErrBadFormat
	ErrInvalidArgument
	ErrNotSupported
	ErrNameTooLong
)

func (k ErrKind) String() string {
	switch k {
	case ErrOutOfMemory:
		return "out-of-memory"
	case ErrIO:
		return "io-error"
	case ErrReadOnlyFS:
		return "read-only-fs"
	case ErrNoSuchEntry:
		return "no-such-entry"
	case ErrExists:
		return "exists"
	case ErrNotEmpty:
		return "not-empty"
	case ErrBusy:
		return "busy"
	case ErrIsDir:
		return "is-a-directory"
	case ErrNotDir:
		return "not-a-directory"
	case ErrBadFormat:
		return "bad-format"
	case ErrInvalidArgument:
		return "invalid-argument"
	case ErrNotSupported:
		return "not-supported"
	case ErrNameTooLong:
		return "name-too-long"
	default:
		return "none"
	}
}

// FSError pairs an abstract error kind with a go-errors/errors value (so a
// stack trace is available for logging) and is what every Backend method
// returns on failure.
type FSError struct {
	Kind ErrKind
	err  error
}

func (e *FSError) Error() string { return e.err.Error() }
func (e *FSError) Unwrap() error { return e.err }

func newErr(kind ErrKind, msg string) *FSError {
	return &FSError{Kind: kind, err: errors.New(msg)}
}

func wrapErr(kind ErrKind, err error) *FSError {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*FSError); ok {
		return fe
	}
	return &FSError{Kind: kind, err: errors.WrapPrefix(err, kind.String(), 1)}
}

// KindOf extracts the abstract error kind from err, or ErrIO if err is not
// an *FSError (an unexpected internal error should still look like an I/O
// failure to the host rather than panic the request).
func KindOf(err error) ErrKind {
	if err == nil {
		return ErrNone
	}
	if fe, ok := err.(*FSError); ok {
		return fe.Kind
	}
	return ErrIO
}

package vecgo

import (
	"errors"
	"fmt"
)

// Kind classifies an error per the error-kind taxonomy.
type Kind int

const (
	// KindCorruptIndex marks a load-time structural problem with the
	// on-disk files: bad header, mismatched N, incompatible PQ centroid
	// count, oversize PQ chunk count. Always fatal; the handle is never
	// returned.
	KindCorruptIndex Kind = iota
	// KindUnknownLabel marks a filter referencing a label the index's
	// label map never saw. Fatal to the one query, not to the handle.
	KindUnknownLabel
	// KindIoFailure marks a sector read or file-system error.
	KindIoFailure
	// KindFetchError marks an embedding-client RPC failure.
	KindFetchError
	// KindOutOfBudget marks an io_limit hit. Not a failure: the query
	// still returns its best-so-far result, with Stats.OutOfBudget set.
	KindOutOfBudget
	// KindBadArgument marks a rejected option, e.g. a beam_width that
	// would overrun the scratch pool's reserved sector-read arena.
	KindBadArgument
)

func (k Kind) String() string {
	switch k {
	case KindCorruptIndex:
		return "CorruptIndex"
	case KindUnknownLabel:
		return "UnknownLabel"
	case KindIoFailure:
		return "IoFailure"
	case KindFetchError:
		return "FetchError"
	case KindOutOfBudget:
		return "OutOfBudget"
	case KindBadArgument:
		return "BadArgument"
	default:
		return "Unknown"
	}
}

// Error is the user-visible error shape: a kind plus a message, with the
// originating error available via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// IsKind reports whether err (or something it wraps) is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

var (
	// ErrClosed is returned by any Handle method called after Close.
	ErrClosed = errors.New("vecgo: handle is closed")
)

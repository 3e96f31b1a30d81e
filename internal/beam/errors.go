package beam

import "errors"

// ErrBadArgument is returned when a search parameter is structurally
// invalid, e.g. a beam width that would overrun the scratch arena.
var ErrBadArgument = errors.New("beam: bad argument")

// ErrDeferredFetchFailed wraps an embedding-fetch failure in
// deferred-fetch mode, where the whole ranking depends on the fetch
// succeeding and so the query itself must fail.
type ErrDeferredFetchFailed struct {
	Err error
}

func (e *ErrDeferredFetchFailed) Error() string {
	return "beam: deferred fetch failed: " + e.Err.Error()
}

func (e *ErrDeferredFetchFailed) Unwrap() error { return e.Err }

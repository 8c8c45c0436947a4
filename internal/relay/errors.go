package relay

import (
	"errors"
	"fmt"
)

// ErrNotRunning is returned, without any network I/O, when an operation
// needs a running relay and none is.
var ErrNotRunning = errors.New("relay server is not running")

// ApplyError reports a failed live configuration push.
type ApplyError struct {
	Endpoint string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to apply configuration to %s: %v", e.Endpoint, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// FetchError reports a failed or unparsable model listing.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch models from %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

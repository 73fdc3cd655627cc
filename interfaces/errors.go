package interfaces

import (
	"errors"
	"fmt"
)

// ErrNoStoredEvent is returned by StateStore.Load when no usable event
// identifier is persisted. An absent, empty, or unreadable state file all
// map to this sentinel: the conservative reading is "never configured",
// which drives an unconditional reconfiguration.
var ErrNoStoredEvent = errors.New("no stored event identifier")

// ResolutionError indicates the endpoint resolver could not produce a
// cluster URL: the pointer service stayed unreachable across the retry
// budget, or it rejected the configured credentials. Fatal for the run.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cluster resolution failed: %s", e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// RemoteQueryError indicates a query against the resolved cluster failed
// (event lookup or credential issuance). Fatal for the run; by the time
// these calls run, transient network problems have already been retried at
// the resolution layer.
type RemoteQueryError struct {
	Op  string
	Err error
}

func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("cluster query %q failed: %s", e.Op, e.Err)
}

func (e *RemoteQueryError) Unwrap() error {
	return e.Err
}

// ApplierError indicates the configuration automation could not be run or
// exited non-zero. Fatal for the run, but the persisted state is left
// untouched so the next invocation naturally retries the reconfiguration.
type ApplierError struct {
	Err error
}

func (e *ApplierError) Error() string {
	return fmt.Sprintf("configuration applier failed: %s", e.Err)
}

func (e *ApplierError) Unwrap() error {
	return e.Err
}

package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the tracking registry and
// carrier transports return these (optionally wrapped) so services can decide
// whether a failure is per-entry or structural.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: concurrent writer won, caller may retry
//   - ErrUnavailable: backing store or broker cannot be reached
//   - ErrClosed: component was shut down
//
// For validation failures (bad input, unknown carrier) use pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
)

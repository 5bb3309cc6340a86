// internal/session/errors.go
package session

import "github.com/xkilldash9x/kwdriver/internal/fault"

// Conditions adapters report while an element or dialog is not ready yet. They are all
// transient, so waits configured to ignore transient errors absorb them. Adapters wrap them
// with %w to add detail.
var (
	ErrNoSuchElement   = fault.New(fault.KindTransient, "no such element")
	ErrStaleElement    = fault.New(fault.KindTransient, "stale element reference")
	ErrNotInteractable = fault.New(fault.KindTransient, "element not interactable")
	ErrNoAlertOpen     = fault.New(fault.KindTransient, "no alert open")
	ErrNoSuchFrame     = fault.New(fault.KindTransient, "no such frame")
	ErrNoSuchWindow    = fault.New(fault.KindTransient, "no such window")
)

// ErrClosed is returned by every operation on a session that has been closed.
var ErrClosed = fault.New(fault.KindFatal, "session closed")

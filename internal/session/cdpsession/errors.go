// internal/session/cdpsession/errors.go
package cdpsession

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"

	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/session"
)

// Protocol messages that mean the handle outlived its document.
var staleMessages = []string{
	"Could not find object with given id",
	"Cannot find context with specified id",
	"Execution context was destroyed",
	"Inspected target navigated or closed",
	"No node with given id found",
}

// mapError translates protocol errors into session sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s", session.ErrStaleElement, msg)
		}
	}
	if strings.Contains(msg, "No dialog is showing") {
		return fmt.Errorf("%w: %s", session.ErrNoAlertOpen, msg)
	}
	return err
}

// scriptErr is a JavaScript exception raised by an evaluated function.
type scriptErr struct {
	details *runtime.ExceptionDetails
}

func (e *scriptErr) Error() string {
	if e.details.Exception != nil && e.details.Exception.Description != "" {
		return "script error: " + e.details.Exception.Description
	}
	return "script error: " + e.details.Text
}

func scriptError(details *runtime.ExceptionDetails) error {
	return &scriptErr{details: details}
}

// locatorError classifies exceptions from element lookups. Malformed selectors are the
// caller's mistake; an inaccessible frame document means the frame went away.
func locatorError(loc session.Locator, details *runtime.ExceptionDetails) error {
	se := &scriptErr{details: details}
	msg := se.Error()
	switch {
	case strings.Contains(msg, "SyntaxError"), strings.Contains(msg, "is not a valid"):
		return fault.Wrap(fault.KindValidation, se, "invalid locator %q", string(loc))
	case strings.Contains(msg, "frame document is not accessible"):
		return fmt.Errorf("%w: %s", session.ErrNoSuchFrame, msg)
	default:
		return se
	}
}

func decodeValue(obj *runtime.RemoteObject, out any) error {
	if obj == nil || len(obj.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(obj.Value), out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// internal/session/pwsession/errors.go
package pwsession

import (
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/session"
)

// Driver messages that mean the handle outlived its document.
var staleMessages = []string{
	"Element is not attached to the DOM",
	"JSHandle is disposed",
	"Execution context was destroyed",
	"Frame was detached",
}

// mapError translates Playwright errors into session sentinels. loc is set for lookups so
// malformed selectors surface as validation errors.
func mapError(err error, loc session.Locator) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s", session.ErrStaleElement, msg)
		}
	}
	switch {
	case loc != "" && (strings.Contains(msg, "SyntaxError") || strings.Contains(msg, "is not a valid") ||
		strings.Contains(msg, "Unexpected token")):
		return fault.Wrap(fault.KindValidation, err, "invalid locator %q", string(loc))
	case strings.Contains(msg, "Target page, context or browser has been closed"),
		strings.Contains(msg, "Target closed"):
		return fmt.Errorf("%w: %s", session.ErrClosed, msg)
	case errors.Is(err, playwright.ErrTimeout):
		// Playwright timed out waiting for actionability: the element is there but not usable yet.
		return fmt.Errorf("%w: %s", session.ErrNotInteractable, msg)
	}
	return err
}

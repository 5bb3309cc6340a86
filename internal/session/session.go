// internal/session/session.go
// Package session defines the browser automation collaborator that every keyword drives.
// The core never talks to a browser directly: adapters such as cdpsession and pwsession
// implement these interfaces, and sessiontest provides a scripted fake for tests.
//
// One Session is driven by exactly one goroutine at a time. Implementations are not
// required to be safe for concurrent use.
package session

import (
	"context"
	"strings"
)

// Locator is an element lookup expression. Expressions starting with "/", "./" or "(" are
// XPath, everything else is a CSS selector.
type Locator string

// IsXPath reports whether the locator is an XPath expression.
func (l Locator) IsXPath() bool {
	s := strings.TrimSpace(string(l))
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "(")
}

func (l Locator) String() string { return string(l) }

// Finder resolves locators. A Session resolves against its current ExecutionContext, an
// Element against its own subtree. No match is an empty slice and a nil error.
type Finder interface {
	FindElements(ctx context.Context, loc Locator) ([]Element, error)
}

// Element is a handle to a node resolved at a specific instant. Once the document changes
// underneath it, every method returns an error wrapping ErrStaleElement.
type Element interface {
	Finder

	IsDisplayed(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	IsSelected(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Value returns the current form value of input, select and textarea elements.
	Value(ctx context.Context) (string, error)

	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Clear(ctx context.Context) error
}

// Window describes one top-level browsing context.
type Window struct {
	Handle string
	Title  string
	URL    string
}

// Session is one automation session against a single browser tab or window set.
type Session interface {
	Finder

	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Refresh(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// ExecuteScript evaluates script in the current context and decodes the result into res,
	// which may be nil.
	ExecuteScript(ctx context.Context, script string, res any) error

	// SwitchToFrame moves the execution context into the given frame element.
	SwitchToFrame(ctx context.Context, frame Element) error
	SwitchToParentFrame(ctx context.Context) error
	SwitchToDefaultContent(ctx context.Context) error
	Windows(ctx context.Context) ([]Window, error)
	SwitchToWindow(ctx context.Context, handle string) error

	// AlertText returns the message of the open dialog or an error wrapping ErrNoAlertOpen.
	AlertText(ctx context.Context) (string, error)
	AcceptAlert(ctx context.Context) error
	DismissAlert(ctx context.Context) error

	// Context describes the frame and window locators currently resolve against.
	Context() ExecutionContext

	Close(ctx context.Context) error
}

// internal/session/session_test.go
package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/kwdriver/internal/fault"
)

func TestLocatorIsXPath(t *testing.T) {
	tests := map[Locator]bool{
		"//button[@id='go']": true,
		"./li":               true,
		"(//tr)[2]":          true,
		"  //div":            true,
		"#go":                false,
		"button.primary":     false,
		"div > span":         false,
	}
	for loc, want := range tests {
		assert.Equal(t, want, loc.IsXPath(), "%q", loc)
	}
}

func TestSentinelErrorsAreTransient(t *testing.T) {
	for _, err := range []error{ErrNoSuchElement, ErrStaleElement, ErrNotInteractable, ErrNoAlertOpen, ErrNoSuchFrame, ErrNoSuchWindow} {
		wrapped := fmt.Errorf("click #go: %w", err)
		assert.True(t, fault.IsTransient(wrapped), "%v", err)
		assert.ErrorIs(t, wrapped, err)
	}
	assert.Equal(t, fault.KindFatal, fault.KindOf(ErrClosed))
}

func TestExecutionContext(t *testing.T) {
	top := ExecutionContext{Window: "main"}
	assert.True(t, top.IsTopLevel())
	assert.Equal(t, `window "main", top-level document`, top.String())

	inner := top.Enter("#outer").Enter("#inner")
	assert.Equal(t, []string{"#outer", "#inner"}, inner.Frames)
	assert.Equal(t, `window "main", frame #outer > #inner`, inner.String())
	assert.True(t, top.IsTopLevel(), "Enter must not mutate the receiver")

	parent := inner.Parent()
	assert.Equal(t, []string{"#outer"}, parent.Frames)
	assert.Equal(t, top, top.Parent())
	assert.Equal(t, top, inner.Top())

	assert.Equal(t, `window "current", top-level document`, ExecutionContext{}.String())
}

// internal/session/pwsession/pwsession_test.go
package pwsession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/session"
)

func TestSelector(t *testing.T) {
	assert.Equal(t, "css=#login .btn", selector("#login .btn"))
	assert.Equal(t, "xpath=//button[@id='go']", selector("//button[@id='go']"))
	assert.Equal(t, "xpath=.//option", selector(".//option"))
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(config.BrowserConfig{
		Driver:            config.DriverPlaywright,
		Headless:          true,
		Args:              []string{"--lang=en-US"},
		NavigationTimeout: 20 * time.Second,
		ActionTimeout:     3 * time.Second,
		WindowWidth:       800,
		WindowHeight:      600,
	})
	assert.True(t, opts.Headless)
	assert.Equal(t, 3*time.Second, opts.ActionTimeout)

	launch := opts.launchOptions()
	require.NotNil(t, launch.Headless)
	assert.True(t, *launch.Headless)
	assert.Equal(t, []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage", "--lang=en-US"}, launch.Args)
	assert.Equal(t, 60000.0, *launch.Timeout)

	ctxOpts := opts.contextOptions()
	require.NotNil(t, ctxOpts.Viewport)
	assert.Equal(t, 800, ctxOpts.Viewport.Width)

	assert.Nil(t, Options{WindowWidth: 800}.contextOptions().Viewport, "both dimensions are required")
}

func TestTimeout(t *testing.T) {
	s := &Session{opts: Options{ActionTimeout: 2 * time.Second}}

	assert.Equal(t, 2000.0, *s.timeout(context.Background(), 0))
	assert.Equal(t, 7000.0, *s.timeout(context.Background(), 7*time.Second))
	assert.Equal(t, float64(defaultActionTimeout.Milliseconds()), *(&Session{}).timeout(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	got := *s.timeout(ctx, 0)
	assert.LessOrEqual(t, got, 500.0, "the caller's deadline caps the driver timeout")
	assert.Greater(t, got, 0.0)

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Equal(t, 1.0, *s.timeout(expired, 0))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		loc    session.Locator
		target error
		kind   fault.Kind
	}{
		{"detached", errors.New("Element is not attached to the DOM"), "", session.ErrStaleElement, fault.KindTransient},
		{"disposed", errors.New("JSHandle is disposed"), "", session.ErrStaleElement, fault.KindTransient},
		{"closed", errors.New("Target page, context or browser has been closed"), "", session.ErrClosed, fault.KindFatal},
		{"timeout", playwright.ErrTimeout, "", session.ErrNotInteractable, fault.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, tt.loc)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.kind, fault.KindOf(err))
		})
	}

	t.Run("invalid selector", func(t *testing.T) {
		err := mapError(errors.New("SyntaxError: '##x' is not a valid selector"), "##x")
		assert.True(t, fault.IsValidation(err))
		assert.Contains(t, err.Error(), `invalid locator "##x"`)
	})

	t.Run("selector text outside lookups", func(t *testing.T) {
		other := errors.New("SyntaxError: Unexpected token")
		assert.Same(t, other, mapError(other, ""))
	})

	assert.NoError(t, mapError(nil, "#x"))
}

func TestDecodeInto(t *testing.T) {
	var n int
	require.NoError(t, decodeInto(float64(3), &n))
	assert.Equal(t, 3, n)

	var m map[string]any
	require.NoError(t, decodeInto(map[string]interface{}{"a": "b"}, &m))
	assert.Equal(t, "b", m["a"])

	var s string
	assert.Error(t, decodeInto(float64(1), &s))
}

func TestUserScript(t *testing.T) {
	assert.Equal(t, "(async function() { return 1 })()", userScript("return 1"))
}

func TestClosedSessionRejectsCalls(t *testing.T) {
	s := &Session{closed: true}
	_, err := s.FindElements(context.Background(), "#x")
	assert.ErrorIs(t, err, session.ErrClosed)
	assert.ErrorIs(t, s.Navigate(context.Background(), "about:blank"), session.ErrClosed)
	_, err = s.AlertText(context.Background())
	assert.ErrorIs(t, err, session.ErrClosed)
	assert.NoError(t, s.Close(context.Background()), "closing twice is a no-op")
}

func TestNoDialogOpen(t *testing.T) {
	s := &Session{dialogs: map[playwright.Page]playwright.Dialog{}}
	_, err := s.AlertText(context.Background())
	assert.ErrorIs(t, err, session.ErrNoAlertOpen)
	assert.ErrorIs(t, s.AcceptAlert(context.Background()), session.ErrNoAlertOpen)
	assert.ErrorIs(t, s.DismissAlert(context.Background()), session.ErrNoAlertOpen)
}

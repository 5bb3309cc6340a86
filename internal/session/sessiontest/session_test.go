// internal/session/sessiontest/session_test.go
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

func TestFakeTiming(t *testing.T) {
	ctx := context.Background()
	late := &Node{Name: "late", AppearsAfter: 30 * time.Millisecond, ShowsAfter: 150 * time.Millisecond}
	s := New(NewDocument("Home", "http://app.test/").Add("#late", late))

	els, err := s.FindElements(ctx, "#late")
	require.NoError(t, err)
	assert.Empty(t, els, "not present yet")

	time.Sleep(40 * time.Millisecond)
	els, err = s.FindElements(ctx, "#late")
	require.NoError(t, err)
	require.Len(t, els, 1)
	shown, err := els[0].IsDisplayed(ctx)
	require.NoError(t, err)
	assert.False(t, shown)
	assert.ErrorIs(t, els[0].Click(ctx), session.ErrNotInteractable)

	time.Sleep(120 * time.Millisecond)
	shown, err = els[0].IsDisplayed(ctx)
	require.NoError(t, err)
	assert.True(t, shown)
	assert.Equal(t, 2, s.FindCalls())
}

func TestFakeStaleness(t *testing.T) {
	ctx := context.Background()
	row := &Node{Name: "row", Text: "first"}
	s := New(NewDocument("", "").Add("//tr", row))

	els, err := s.FindElements(ctx, "//tr")
	require.NoError(t, err)
	require.Len(t, els, 1)

	s.Rerender(row)
	_, err = els[0].Text(ctx)
	assert.ErrorIs(t, err, session.ErrStaleElement)

	els, err = s.FindElements(ctx, "//tr")
	require.NoError(t, err)
	text, err := els[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", text)

	s.Remove(row)
	_, err = els[0].IsDisplayed(ctx)
	assert.ErrorIs(t, err, session.ErrStaleElement)
}

func TestFakeFramesWindowsAlerts(t *testing.T) {
	ctx := context.Background()
	inner := NewDocument("", "").Add("#pay", &Node{Name: "pay"})
	s := New(NewDocument("Checkout", "http://app.test/checkout").Add("iframe", &Node{Name: "iframe#card", Frame: inner}))
	s.AddWindow("help", NewDocument("Help", "http://app.test/help"))

	frames, err := s.FindElements(ctx, "iframe")
	require.NoError(t, err)
	require.NoError(t, s.SwitchToFrame(ctx, frames[0]))
	assert.Equal(t, []string{"iframe#card"}, s.Context().Frames)

	els, err := s.FindElements(ctx, "#pay")
	require.NoError(t, err)
	assert.Len(t, els, 1)

	require.NoError(t, s.SwitchToParentFrame(ctx))
	assert.True(t, s.Context().IsTopLevel())

	require.NoError(t, s.SwitchToWindow(ctx, "help"))
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Help", title)
	assert.ErrorIs(t, s.SwitchToWindow(ctx, "nope"), session.ErrNoSuchWindow)

	_, err = s.AlertText(ctx)
	assert.ErrorIs(t, err, session.ErrNoAlertOpen)
	s.OpenAlert("Saved")
	text, err := s.AlertText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Saved", text)
	require.NoError(t, s.AcceptAlert(ctx))
	assert.Equal(t, []string{"accept"}, s.AlertActions())
}

func TestFakeInputAndScript(t *testing.T) {
	ctx := context.Background()
	box := &Node{Name: "box", Attrs: map[string]string{"type": "checkbox"}}
	field := &Node{Name: "q", Value: "old"}
	s := New(NewDocument("", "").Add("#box", box).Add("#q", field))
	s.Script = func(string) (any, error) { return map[string]int{"n": 2}, nil }

	els, _ := s.FindElements(ctx, "#box")
	require.NoError(t, els[0].Click(ctx))
	assert.True(t, box.Selected)

	els, _ = s.FindElements(ctx, "#q")
	require.NoError(t, els[0].Clear(ctx))
	require.NoError(t, els[0].SendKeys(ctx, "kwdriver"))
	assert.Equal(t, "kwdriver", field.Value)

	var out struct{ N int }
	require.NoError(t, s.ExecuteScript(ctx, "return {n: 2}", &out))
	assert.Equal(t, 2, out.N)

	require.NoError(t, s.Close(ctx))
	_, err := s.FindElements(ctx, "#q")
	assert.ErrorIs(t, err, session.ErrClosed)
}

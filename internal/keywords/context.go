// internal/keywords/context.go
package keywords

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/locate"
	"github.com/xkilldash9x/kwdriver/internal/session"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

// SwitchFrame enters the frame element matched by loc.
func (k *Keywords) SwitchFrame(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("switch to frame", string(loc)), func(ctx context.Context) error {
		frame, err := k.acq.One(ctx, loc, locate.Present, opts...)
		if err != nil {
			return err
		}
		return k.sess.SwitchToFrame(ctx, frame)
	})
}

// SwitchParentFrame leaves the innermost frame.
func (k *Keywords) SwitchParentFrame(ctx context.Context, ch execution.Channel) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("switch to parent frame", ""), k.sess.SwitchToParentFrame)
}

// SwitchDefaultContent returns to the top-level document.
func (k *Keywords) SwitchDefaultContent(ctx context.Context, ch execution.Channel) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("switch to default content", ""), k.sess.SwitchToDefaultContent)
}

var errNoMatchingWindow = fmt.Errorf("%w: no matching window", session.ErrNoSuchWindow)

// SwitchWindowByTitle waits for a window titled title and switches to it.
func (k *Keywords) SwitchWindowByTitle(ctx context.Context, ch execution.Channel, title string, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("switch to window", title), func(ctx context.Context) error {
		if err := fault.RequireNonEmpty("window title", title); err != nil {
			return err
		}
		return k.switchWindow(ctx, opts, func(_ int, w session.Window) bool { return w.Title == title })
	})
}

// SwitchWindowByIndex waits for at least index+1 windows and switches to the one at index.
func (k *Keywords) SwitchWindowByIndex(ctx context.Context, ch execution.Channel, index int, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("switch to window", strconv.Itoa(index)), func(ctx context.Context) error {
		if index < 0 {
			return fault.Validation("window index must not be negative, got %d", index)
		}
		return k.switchWindow(ctx, opts, func(i int, _ session.Window) bool { return i == index })
	})
}

func (k *Keywords) switchWindow(ctx context.Context, opts []wait.Option, match func(int, session.Window) bool) error {
	handle, err := wait.Until(ctx, k.engine, k.acq.Spec(opts...), wait.Truthy(func(ctx context.Context) (string, error) {
		windows, err := k.sess.Windows(ctx)
		if err != nil {
			return "", err
		}
		for i, w := range windows {
			if match(i, w) {
				return w.Handle, nil
			}
		}
		return "", errNoMatchingWindow
	}))
	if err != nil {
		return err
	}
	return k.sess.SwitchToWindow(ctx, handle)
}

// AcceptAlert waits for a dialog and accepts it.
func (k *Keywords) AcceptAlert(ctx context.Context, ch execution.Channel, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("accept alert", ""), func(ctx context.Context) error {
		return k.onAlert(ctx, opts, k.sess.AcceptAlert)
	})
}

// DismissAlert waits for a dialog and dismisses it.
func (k *Keywords) DismissAlert(ctx context.Context, ch execution.Channel, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("dismiss alert", ""), func(ctx context.Context) error {
		return k.onAlert(ctx, opts, k.sess.DismissAlert)
	})
}

// AlertText waits for a dialog and returns its message without closing it.
func (k *Keywords) AlertText(ctx context.Context, ch execution.Channel, opts ...wait.Option) (execution.Outcome[string], error) {
	return execution.Do(ctx, k.ex, ch, diag("get alert text", ""), func(ctx context.Context) (string, error) {
		return wait.Until(ctx, k.engine, k.acq.Spec(opts...), func(ctx context.Context) (string, bool, error) {
			text, err := k.sess.AlertText(ctx)
			return text, err == nil, err
		})
	})
}

func (k *Keywords) onAlert(ctx context.Context, opts []wait.Option, act func(context.Context) error) error {
	// ErrNoAlertOpen is transient, so the wait keeps polling until a dialog shows up.
	_, err := wait.Until(ctx, k.engine, k.acq.Spec(opts...), wait.Predicate(func(ctx context.Context) (bool, error) {
		return true, act(ctx)
	}))
	return err
}

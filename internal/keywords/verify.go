// internal/keywords/verify.go
package keywords

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/locate"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

// WaitFor waits until an element matching loc satisfies ready.
func (k *Keywords) WaitFor(ctx context.Context, ch execution.Channel, loc locate.Locator, ready locate.Readiness, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("wait for "+ready.String(), string(loc)), func(ctx context.Context) error {
		_, err := k.acq.One(ctx, loc, ready, opts...)
		return err
	})
}

// VerifyVisible checks that loc becomes visible.
func (k *Keywords) VerifyVisible(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return k.verify(ctx, ch, "verify visible", loc, locate.Visible, opts)
}

// VerifyNotVisible checks that no match of loc is displayed.
func (k *Keywords) VerifyNotVisible(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("verify not visible", string(loc)), func(ctx context.Context) error {
		return k.acq.Absent(ctx, loc, opts...)
	})
}

// VerifyEnabled checks that loc becomes enabled.
func (k *Keywords) VerifyEnabled(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return k.verify(ctx, ch, "verify enabled", loc, locate.Enabled, opts)
}

// VerifySelected checks that loc becomes selected.
func (k *Keywords) VerifySelected(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return k.verify(ctx, ch, "verify selected", loc, locate.Selected, opts)
}

// VerifyText checks that the text of loc equals want.
func (k *Keywords) VerifyText(ctx context.Context, ch execution.Channel, loc locate.Locator, want string, opts ...wait.Option) (bool, error) {
	return k.verify(ctx, ch, "verify text equals", loc, locate.TextEquals(want), opts)
}

// VerifyTextContains checks that the text of loc contains want.
func (k *Keywords) VerifyTextContains(ctx context.Context, ch execution.Channel, loc locate.Locator, want string, opts ...wait.Option) (bool, error) {
	return k.verify(ctx, ch, "verify text contains", loc, locate.TextContains(want), opts)
}

// VerifyAttribute checks that attribute name of loc equals want.
func (k *Keywords) VerifyAttribute(ctx context.Context, ch execution.Channel, loc locate.Locator, name, want string, opts ...wait.Option) (bool, error) {
	return k.verify(ctx, ch, "verify attribute "+name, loc, locate.AttributeEquals(name, want), opts)
}

// VerifyValue checks that the form value of loc equals want.
func (k *Keywords) VerifyValue(ctx context.Context, ch execution.Channel, loc locate.Locator, want string, opts ...wait.Option) (bool, error) {
	return k.verify(ctx, ch, "verify value", loc, locate.ValueEquals(want), opts)
}

func (k *Keywords) verify(ctx context.Context, ch execution.Channel, description string, loc locate.Locator, ready locate.Readiness, opts []wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag(description, string(loc)), func(ctx context.Context) error {
		_, err := k.acq.One(ctx, loc, ready, opts...)
		return err
	})
}

// VerifyTitle checks that the page title becomes want.
func (k *Keywords) VerifyTitle(ctx context.Context, ch execution.Channel, want string, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("verify title", want), func(ctx context.Context) error {
		_, err := wait.Until(ctx, k.engine, k.acq.Spec(opts...), func(ctx context.Context) (string, bool, error) {
			title, err := k.sess.Title(ctx)
			return title, err == nil && title == want, err
		})
		return err
	})
}

// VerifyURLContains checks that the current URL comes to contain part.
func (k *Keywords) VerifyURLContains(ctx context.Context, ch execution.Channel, part string, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("verify url contains", part), func(ctx context.Context) error {
		if err := fault.RequireNonEmpty("url fragment", part); err != nil {
			return err
		}
		_, err := wait.Until(ctx, k.engine, k.acq.Spec(opts...), func(ctx context.Context) (string, bool, error) {
			url, err := k.sess.CurrentURL(ctx)
			return url, err == nil && strings.Contains(url, part), err
		})
		return err
	})
}

// VerifyCount checks that loc comes to match exactly want elements.
func (k *Keywords) VerifyCount(ctx context.Context, ch execution.Channel, loc locate.Locator, want int, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag(fmt.Sprintf("verify count = %d", want), string(loc)), func(ctx context.Context) error {
		if want < 0 {
			return fault.Validation("expected count must not be negative, got %d", want)
		}
		_, err := wait.Until(ctx, k.engine, k.acq.Spec(opts...), func(ctx context.Context) (int, bool, error) {
			n, err := k.acq.Count(ctx, loc)
			return n, err == nil && n == want, err
		})
		return err
	})
}

// GetText returns the trimmed text of the first visible match of loc.
func (k *Keywords) GetText(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (execution.Outcome[string], error) {
	return execution.Do(ctx, k.ex, ch, diag("get text", string(loc)), func(ctx context.Context) (string, error) {
		el, err := k.acq.One(ctx, loc, locate.Visible, opts...)
		if err != nil {
			return "", err
		}
		text, err := el.Text(ctx)
		return strings.TrimSpace(text), err
	})
}

// GetAttribute returns attribute name of the first match of loc. A missing attribute is "".
func (k *Keywords) GetAttribute(ctx context.Context, ch execution.Channel, loc locate.Locator, name string, opts ...wait.Option) (execution.Outcome[string], error) {
	return execution.Do(ctx, k.ex, ch, diag("get attribute "+name, string(loc)), func(ctx context.Context) (string, error) {
		if err := fault.RequireNonEmpty("attribute name", name); err != nil {
			return "", err
		}
		el, err := k.acq.One(ctx, loc, locate.Present, opts...)
		if err != nil {
			return "", err
		}
		v, _, err := el.Attribute(ctx, name)
		return v, err
	})
}

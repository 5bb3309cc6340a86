// internal/keywords/actions.go
package keywords

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/locate"
	"github.com/xkilldash9x/kwdriver/internal/retry"
	"github.com/xkilldash9x/kwdriver/internal/session"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

// Navigate loads url in the current window.
func (k *Keywords) Navigate(ctx context.Context, ch execution.Channel, url string) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("navigate", url), func(ctx context.Context) error {
		if err := fault.RequireNonEmpty("url", url); err != nil {
			return err
		}
		return k.sess.Navigate(ctx, url)
	})
}

// Back goes one step back in history.
func (k *Keywords) Back(ctx context.Context, ch execution.Channel) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("navigate back", ""), k.sess.Back)
}

// Refresh reloads the current page.
func (k *Keywords) Refresh(ctx context.Context, ch execution.Channel) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("refresh", ""), k.sess.Refresh)
}

// Click clicks the first clickable match of loc.
func (k *Keywords) Click(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("click", string(loc)), func(ctx context.Context) error {
		return k.click(ctx, loc, opts)
	})
}

func (k *Keywords) click(ctx context.Context, loc locate.Locator, opts []wait.Option) error {
	el, err := k.acq.One(ctx, loc, locate.Clickable, opts...)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// ClickWithRetry re-acquires and clicks loc until it works or policy is exhausted. opts bound
// each attempt's acquisition. A zero policy uses the configured one.
func (k *Keywords) ClickWithRetry(ctx context.Context, ch execution.Channel, loc locate.Locator, policy retry.Policy, opts ...wait.Option) (bool, error) {
	if policy == (retry.Policy{}) {
		policy = k.policy
	}
	return execution.Check(ctx, k.ex, ch, diag("click with retry", string(loc)), func(ctx context.Context) error {
		_, err := retry.Do(ctx, k.retrier, policy, func(ctx context.Context, attempt int) (struct{}, error) {
			return struct{}{}, k.click(ctx, loc, opts)
		})
		return err
	})
}

// ClickEach clicks every match of loc in document order, re-resolving each one first.
func (k *Keywords) ClickEach(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("click each", string(loc)), func(ctx context.Context) error {
		return k.acq.ForEach(ctx, loc, func(ctx context.Context, _ int, el session.Element) error {
			return el.Click(ctx)
		}, opts...)
	})
}

// Type replaces the content of the first visible match of loc with text.
func (k *Keywords) Type(ctx context.Context, ch execution.Channel, loc locate.Locator, text string, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("type", string(loc)), func(ctx context.Context) error {
		el, err := k.acq.One(ctx, loc, locate.Clickable, opts...)
		if err != nil {
			return err
		}
		if err := el.Clear(ctx); err != nil {
			return err
		}
		return el.SendKeys(ctx, text)
	})
}

// Clear empties the first visible match of loc.
func (k *Keywords) Clear(ctx context.Context, ch execution.Channel, loc locate.Locator, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("clear", string(loc)), func(ctx context.Context) error {
		el, err := k.acq.One(ctx, loc, locate.Clickable, opts...)
		if err != nil {
			return err
		}
		return el.Clear(ctx)
	})
}

// SelectByText picks the option of the select element loc whose visible text is text.
func (k *Keywords) SelectByText(ctx context.Context, ch execution.Channel, loc locate.Locator, text string, opts ...wait.Option) (bool, error) {
	return execution.Check(ctx, k.ex, ch, diag("select "+text, string(loc)), func(ctx context.Context) error {
		sel, err := k.acq.One(ctx, loc, locate.Clickable, opts...)
		if err != nil {
			return err
		}
		option, err := k.acq.Within(ctx, sel, optionByText(text), locate.Present, opts...)
		if err != nil {
			return err
		}
		return option.Click(ctx)
	})
}

func optionByText(text string) locate.Locator {
	return locate.Locator(fmt.Sprintf(".//option[normalize-space(.)=%s]", xpathLiteral(text)))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences. Text holding both quote
// kinds is split on single quotes and rejoined with concat().
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts)-1)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if part != "" {
			quoted = append(quoted, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// SetChecked clicks the checkbox loc if its state differs from checked.
func (k *Keywords) SetChecked(ctx context.Context, ch execution.Channel, loc locate.Locator, checked bool, opts ...wait.Option) (bool, error) {
	description := "uncheck"
	if checked {
		description = "check"
	}
	return execution.Check(ctx, k.ex, ch, diag(description, string(loc)), func(ctx context.Context) error {
		el, err := k.acq.One(ctx, loc, locate.Clickable, opts...)
		if err != nil {
			return err
		}
		selected, err := el.IsSelected(ctx)
		if err != nil || selected == checked {
			return err
		}
		return el.Click(ctx)
	})
}

// ExecuteScript runs script in the current context and returns its result as JSON decoded
// into a generic value.
func (k *Keywords) ExecuteScript(ctx context.Context, ch execution.Channel, script string) (execution.Outcome[any], error) {
	return execution.Do(ctx, k.ex, ch, diag("execute script", ""), func(ctx context.Context) (any, error) {
		if err := fault.RequireNonEmpty("script", script); err != nil {
			return nil, err
		}
		var res any
		err := k.sess.ExecuteScript(ctx, script, &res)
		return res, err
	})
}

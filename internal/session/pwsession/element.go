// internal/session/pwsession/element.go
package pwsession

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cast"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

// element wraps a Playwright element handle. Handles survive detachment, so every call
// checks that the node is still in a document first.
type element struct {
	s *Session
	h playwright.ElementHandle
}

var _ session.Element = (*element)(nil)

func (e *element) connected() error {
	if e.s.closed {
		return session.ErrClosed
	}
	v, err := e.h.Evaluate(`el => el.isConnected`)
	if err != nil {
		return mapError(err, "")
	}
	if ok, _ := v.(bool); !ok {
		return fmt.Errorf("%w: element is no longer attached to the document", session.ErrStaleElement)
	}
	return nil
}

// eval runs fn against the element after the staleness and context checks.
func (e *element) eval(ctx context.Context, expr string, arg ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.connected(); err != nil {
		return nil, err
	}
	v, err := e.h.Evaluate(expr, arg...)
	return v, mapError(err, "")
}

func (e *element) FindElements(ctx context.Context, loc session.Locator) ([]session.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.connected(); err != nil {
		return nil, err
	}
	found, err := e.h.QuerySelectorAll(selector(loc))
	if err != nil {
		return nil, mapError(err, loc)
	}
	return e.s.wrap(found), nil
}

func (e *element) boolean(ctx context.Context, expr string) (bool, error) {
	v, err := e.eval(ctx, expr)
	if err != nil {
		return false, err
	}
	return cast.ToBoolE(v)
}

func (e *element) str(ctx context.Context, expr string, arg ...interface{}) (string, error) {
	v, err := e.eval(ctx, expr, arg...)
	if err != nil {
		return "", err
	}
	return cast.ToString(v), nil
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	return e.boolean(ctx, displayedExpr)
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	return e.boolean(ctx, `el => !el.disabled`)
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	return e.boolean(ctx, `el => !!(el.checked || el.selected)`)
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.str(ctx, `el => (el.innerText !== undefined ? el.innerText : el.textContent || "").trim()`)
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.eval(ctx, `(el, n) => el.hasAttribute(n) ? [true, el.getAttribute(n)] : [false, ""]`, name)
	if err != nil {
		return "", false, err
	}
	pair, _ := v.([]interface{})
	if len(pair) != 2 {
		return "", false, fmt.Errorf("unexpected attribute result %v", v)
	}
	present, _ := pair[0].(bool)
	return cast.ToString(pair[1]), present, nil
}

func (e *element) Value(ctx context.Context) (string, error) {
	return e.str(ctx, `el => el.value === undefined ? "" : String(el.value)`)
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.connected(); err != nil {
		return err
	}
	// Options have no layout box of their own; selecting them directly matches a user pick.
	handled, err := e.boolean(ctx, selectOptionExpr)
	if err != nil || handled {
		return err
	}
	return mapError(e.h.Click(playwright.ElementHandleClickOptions{
		Timeout:     e.s.timeout(ctx, 0),
		NoWaitAfter: playwright.Bool(true),
	}), "")
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.connected(); err != nil {
		return err
	}
	return mapError(e.h.Type(text, playwright.ElementHandleTypeOptions{
		Timeout:     e.s.timeout(ctx, 0),
		NoWaitAfter: playwright.Bool(true),
	}), "")
}

func (e *element) Clear(ctx context.Context) error {
	_, err := e.eval(ctx, clearExpr)
	return err
}

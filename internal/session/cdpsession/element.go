// internal/session/cdpsession/element.go
package cdpsession

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

// element is a handle to a JavaScript object in one tab.
type element struct {
	s   *Session
	tab string
	id  runtime.RemoteObjectID
}

var _ session.Element = (*element)(nil)

type evalResult struct {
	Stale bool                `json:"stale"`
	V     jsoniter.RawMessage `json:"v"`
}

// eval runs body with the element as receiver and decodes its result into out.
func (e *element) eval(ctx context.Context, body string, out any) error {
	obj, err := e.s.call(ctx, e.tab, e.id, elementScript(body), true)
	if err != nil {
		return err
	}
	var res evalResult
	if err := decodeValue(obj, &res); err != nil {
		return err
	}
	if res.Stale {
		return session.ErrStaleElement
	}
	if out == nil || len(res.V) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.V, out); err != nil {
		return fmt.Errorf("decode element result: %w", err)
	}
	return nil
}

func (e *element) FindElements(ctx context.Context, loc session.Locator) ([]session.Element, error) {
	var connected bool
	if err := e.eval(ctx, "return true;", &connected); err != nil {
		return nil, err
	}
	return e.s.findFrom(ctx, e.id, loc, false)
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	var ok bool
	err := e.eval(ctx, displayedBody, &ok)
	return ok, err
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.eval(ctx, enabledBody, &ok)
	return ok, err
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	var ok bool
	err := e.eval(ctx, selectedBody, &ok)
	return ok, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.eval(ctx, textBody, &text)
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var pair [2]any
	if err := e.eval(ctx, attributeBody(name), &pair); err != nil {
		return "", false, err
	}
	v, _ := pair[0].(string)
	present, _ := pair[1].(bool)
	return v, present, nil
}

func (e *element) Value(ctx context.Context) (string, error) {
	var v string
	err := e.eval(ctx, valueBody, &v)
	return v, err
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// Handled is set when the script already performed the click.
	Handled bool `json:"handled"`
}

// Click presses and releases the left mouse button at the element's center.
func (e *element) Click(ctx context.Context) error {
	var pt *point
	if err := e.eval(ctx, clickPointBody, &pt); err != nil {
		return err
	}
	if pt == nil {
		return fmt.Errorf("%w: disabled, hidden or covered", session.ErrNotInteractable)
	}
	if pt.Handled {
		return nil
	}
	return e.s.runOn(ctx, e.tab, func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MousePressed, pt.X, pt.Y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, pt.X, pt.Y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	})
}

// SendKeys focuses the element and inserts text as if typed.
func (e *element) SendKeys(ctx context.Context, text string) error {
	var focused bool
	if err := e.eval(ctx, focusBody, &focused); err != nil {
		return err
	}
	if !focused {
		return fmt.Errorf("%w: cannot focus", session.ErrNotInteractable)
	}
	return e.s.runOn(ctx, e.tab, input.InsertText(text).Do)
}

func (e *element) Clear(ctx context.Context) error {
	var cleared bool
	if err := e.eval(ctx, clearBody, &cleared); err != nil {
		return err
	}
	if !cleared {
		return fmt.Errorf("%w: disabled or read-only", session.ErrNotInteractable)
	}
	return nil
}

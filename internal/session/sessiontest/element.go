// internal/session/sessiontest/element.go
package sessiontest

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

type element struct {
	s          *Session
	n          *Node
	generation int
}

var _ session.Element = (*element)(nil)

// check must be called with s.mu held.
func (e *element) check() error {
	if err := e.s.checkOpen(); err != nil {
		return err
	}
	if e.n.generation != e.generation || !e.n.present(e.s.elapsed()) {
		return fmt.Errorf("%s: %w", e.n.Name, session.ErrStaleElement)
	}
	return nil
}

// read runs fn under the session lock after the staleness check.
func (e *element) read(fn func(n *Node)) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	fn(e.n)
	return nil
}

func (e *element) FindElements(ctx context.Context, loc session.Locator) ([]session.Element, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	e.s.finds++
	return e.s.handles(resolve(e.n.Children, loc, e.s.elapsed())), nil
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	var v bool
	err := e.read(func(n *Node) { v = n.displayed(e.s.elapsed()) })
	return v, err
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	var v bool
	err := e.read(func(n *Node) { v = !n.Disabled })
	return v, err
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	var v bool
	err := e.read(func(n *Node) { v = n.Selected })
	return v, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	var v string
	err := e.read(func(n *Node) { v = n.Text })
	return v, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := e.read(func(n *Node) { v, ok = n.Attrs[name] })
	return v, ok, err
}

func (e *element) Value(ctx context.Context) (string, error) {
	var v string
	err := e.read(func(n *Node) { v = n.Value })
	return v, err
}

// interactable must be called with s.mu held.
func (e *element) interactable() error {
	if err := e.check(); err != nil {
		return err
	}
	if !e.n.displayed(e.s.elapsed()) || e.n.Disabled {
		return fmt.Errorf("%s: %w", e.n.Name, session.ErrNotInteractable)
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	e.s.mu.Lock()
	if err := e.interactable(); err != nil {
		e.s.mu.Unlock()
		return err
	}
	if e.n.ClickErr != nil {
		e.s.mu.Unlock()
		return e.n.ClickErr
	}
	switch {
	case e.n.Attrs["type"] == "checkbox":
		e.n.Selected = !e.n.Selected
	case e.n.Attrs["type"] == "radio", e.n.Attrs["tag"] == "option":
		e.n.Selected = true
	}
	onClick := e.n.OnClick
	e.s.mu.Unlock()

	if onClick != nil {
		onClick(e.s)
	}
	return nil
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.interactable(); err != nil {
		return err
	}
	e.n.Value += text
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.interactable(); err != nil {
		return err
	}
	e.n.Value = ""
	return nil
}

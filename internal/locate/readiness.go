// internal/locate/readiness.go
package locate

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

// Readiness is a composable predicate deciding whether a resolved element is usable yet.
// The zero value behaves like Present.
type Readiness struct {
	name  string
	check func(ctx context.Context, el session.Element) (bool, error)
}

// Check evaluates r against el.
func (r Readiness) Check(ctx context.Context, el session.Element) (bool, error) {
	if r.check == nil {
		return true, nil
	}
	return r.check(ctx, el)
}

func (r Readiness) String() string {
	if r.name == "" {
		return "present"
	}
	return r.name
}

// Is builds a custom readiness predicate.
func Is(name string, check func(ctx context.Context, el session.Element) (bool, error)) Readiness {
	return Readiness{name: name, check: check}
}

var (
	// Present accepts any element that exists in the document.
	Present = Readiness{name: "present"}
	// Visible accepts displayed elements.
	Visible = Is("visible", func(ctx context.Context, el session.Element) (bool, error) {
		return el.IsDisplayed(ctx)
	})
	// Enabled accepts elements that are not disabled.
	Enabled = Is("enabled", func(ctx context.Context, el session.Element) (bool, error) {
		return el.IsEnabled(ctx)
	})
	// Selected accepts checked checkboxes, radios and selected options.
	Selected = Is("selected", func(ctx context.Context, el session.Element) (bool, error) {
		return el.IsSelected(ctx)
	})
	// Clickable is the readiness click targets are resolved with.
	Clickable = All(Visible, Enabled)
)

// All accepts an element only if every predicate does. Evaluation stops at the first
// rejection or error.
func All(rs ...Readiness) Readiness {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.String())
	}
	return Is(strings.Join(names, " and "), func(ctx context.Context, el session.Element) (bool, error) {
		for _, r := range rs {
			ok, err := r.Check(ctx, el)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Not inverts r. Errors are passed through, not inverted.
func Not(r Readiness) Readiness {
	return Is("not "+r.String(), func(ctx context.Context, el session.Element) (bool, error) {
		ok, err := r.Check(ctx, el)
		return !ok && err == nil, err
	})
}

// TextEquals accepts elements whose trimmed text equals want.
func TextEquals(want string) Readiness {
	return Is(fmt.Sprintf("text = %q", want), func(ctx context.Context, el session.Element) (bool, error) {
		got, err := el.Text(ctx)
		return err == nil && strings.TrimSpace(got) == want, err
	})
}

// TextContains accepts elements whose text contains want.
func TextContains(want string) Readiness {
	return Is(fmt.Sprintf("text contains %q", want), func(ctx context.Context, el session.Element) (bool, error) {
		got, err := el.Text(ctx)
		return err == nil && strings.Contains(got, want), err
	})
}

// AttributeEquals accepts elements whose attribute name is present and equals want.
func AttributeEquals(name, want string) Readiness {
	return Is(fmt.Sprintf("@%s = %q", name, want), func(ctx context.Context, el session.Element) (bool, error) {
		got, ok, err := el.Attribute(ctx, name)
		return err == nil && ok && got == want, err
	})
}

// ValueEquals accepts form elements whose current value equals want.
func ValueEquals(want string) Readiness {
	return Is(fmt.Sprintf("value = %q", want), func(ctx context.Context, el session.Element) (bool, error) {
		got, err := el.Value(ctx)
		return err == nil && got == want, err
	})
}

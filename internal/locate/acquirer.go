// internal/locate/acquirer.go
// Package locate turns locators into element handles by polling the session through the
// wait engine. Lookups always resolve against the session's current execution context;
// the acquirer never switches frames or windows on its own.
package locate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/session"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

// Locator is re-exported so callers rarely need to import session.
type Locator = session.Locator

var (
	// ErrNotReady is the transient condition reported while matches exist but none
	// satisfies the requested readiness.
	ErrNotReady = fault.New(fault.KindTransient, "element not ready")
	// ErrParentNotFound marks a Child lookup whose parent never resolved.
	ErrParentNotFound = errors.New("parent element not found")
	// ErrNoDescendants marks a lookup under a resolved parent that found no usable match.
	ErrNoDescendants = errors.New("no matching descendant")
)

// Acquirer resolves elements for one session.
type Acquirer struct {
	sess     session.Session
	engine   *wait.Engine
	defaults wait.Defaults
	logger   *zap.Logger
}

// New creates an Acquirer. engine and logger may be nil.
func New(sess session.Session, engine *wait.Engine, defaults wait.Defaults, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{sess: sess, engine: engine, defaults: defaults, logger: logger.Named("locate")}
}

// Session returns the session elements are resolved against.
func (a *Acquirer) Session() session.Session { return a.sess }

// Engine returns the wait engine used for every lookup.
func (a *Acquirer) Engine() *wait.Engine { return a.engine }

// Spec builds the wait spec used for lookups: the configured defaults, transient session
// errors ignored, then opts.
func (a *Acquirer) Spec(opts ...wait.Option) wait.Spec {
	return a.defaults.Spec(append([]wait.Option{wait.IgnoringTransient()}, opts...)...)
}

// One waits for the first element matching loc that satisfies ready.
func (a *Acquirer) One(ctx context.Context, loc Locator, ready Readiness, opts ...wait.Option) (session.Element, error) {
	if err := fault.RequireNonEmpty("locator", string(loc)); err != nil {
		return nil, err
	}
	el, err := wait.Until(ctx, a.engine, a.Spec(opts...), func(ctx context.Context) (session.Element, bool, error) {
		return firstReady(ctx, a.sess, loc, ready)
	})
	if err != nil {
		return nil, a.describe(loc, ready, err)
	}
	return el, nil
}

// All waits until at least one element matches loc and returns every match as of that
// instant. The slice is a snapshot: handles are not re-resolved when the document changes
// afterwards, so later use of an item may fail with session.ErrStaleElement. Use ForEach to
// re-resolve every item before it is used.
func (a *Acquirer) All(ctx context.Context, loc Locator, opts ...wait.Option) ([]session.Element, error) {
	if err := fault.RequireNonEmpty("locator", string(loc)); err != nil {
		return nil, err
	}
	els, err := wait.Until(ctx, a.engine, a.Spec(opts...), wait.Truthy(func(ctx context.Context) ([]session.Element, error) {
		return a.sess.FindElements(ctx, loc)
	}))
	if err != nil {
		return nil, a.describe(loc, Present, err)
	}
	return els, nil
}

// ForEach calls fn for every element matching loc. The number of items is fixed by the first
// resolution; item k is looked up again right before fn sees it, so fn never receives a handle
// acquired before an earlier item's action changed the document.
func (a *Acquirer) ForEach(ctx context.Context, loc Locator, fn func(ctx context.Context, i int, el session.Element) error, opts ...wait.Option) error {
	first, err := a.All(ctx, loc, opts...)
	if err != nil {
		return err
	}
	for i := range first {
		el := first[i]
		if i > 0 {
			if el, err = a.nth(ctx, loc, i, opts); err != nil {
				return err
			}
		}
		if err := fn(ctx, i, el); err != nil {
			return fmt.Errorf("%s item %d: %w", loc, i, err)
		}
	}
	return nil
}

func (a *Acquirer) nth(ctx context.Context, loc Locator, i int, opts []wait.Option) (session.Element, error) {
	el, err := wait.Until(ctx, a.engine, a.Spec(opts...), func(ctx context.Context) (session.Element, bool, error) {
		els, err := a.sess.FindElements(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		if len(els) <= i {
			return nil, false, fmt.Errorf("%w: %d matches, need item %d", session.ErrNoSuchElement, len(els), i)
		}
		return els[i], true, nil
	})
	if err != nil {
		return nil, a.describe(loc, Present, err)
	}
	return el, nil
}

// Child resolves parent (present, with parentOpts) and then the first descendant matching
// child that satisfies ready, with its own childOpts timeout.
func (a *Acquirer) Child(ctx context.Context, parent, child Locator, ready Readiness, parentOpts, childOpts []wait.Option) (session.Element, error) {
	if err := fault.RequireNonEmpty("child locator", string(child)); err != nil {
		return nil, err
	}
	p, err := a.One(ctx, parent, Present, parentOpts...)
	if err != nil {
		if fault.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ErrParentNotFound, err)
		}
		return nil, err
	}
	return a.Within(ctx, p, child, ready, childOpts...)
}

// Within resolves the first descendant of parent matching loc that satisfies ready.
func (a *Acquirer) Within(ctx context.Context, parent session.Element, loc Locator, ready Readiness, opts ...wait.Option) (session.Element, error) {
	if err := fault.RequireNonEmpty("locator", string(loc)); err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fault.Validation("parent element is required")
	}
	el, err := wait.Until(ctx, a.engine, a.Spec(opts...), func(ctx context.Context) (session.Element, bool, error) {
		return firstReady(ctx, parent, loc, ready)
	})
	if err != nil {
		if fault.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ErrNoDescendants, a.describe(loc, ready, err))
		}
		return nil, a.describe(loc, ready, err)
	}
	return el, nil
}

// Absent waits until no element matching loc is displayed. Matches that go stale while
// being checked count as gone.
func (a *Acquirer) Absent(ctx context.Context, loc Locator, opts ...wait.Option) error {
	if err := fault.RequireNonEmpty("locator", string(loc)); err != nil {
		return err
	}
	_, err := wait.Until(ctx, a.engine, a.Spec(opts...), wait.Predicate(func(ctx context.Context) (bool, error) {
		els, err := a.sess.FindElements(ctx, loc)
		if err != nil {
			return false, err
		}
		for _, el := range els {
			shown, err := el.IsDisplayed(ctx)
			if errors.Is(err, session.ErrStaleElement) {
				continue
			}
			if err != nil || shown {
				return false, err
			}
		}
		return true, nil
	}))
	if err != nil {
		return a.describe(loc, Is("absent", nil), err)
	}
	return nil
}

// Count returns the number of current matches without waiting.
func (a *Acquirer) Count(ctx context.Context, loc Locator) (int, error) {
	if err := fault.RequireNonEmpty("locator", string(loc)); err != nil {
		return 0, err
	}
	els, err := a.sess.FindElements(ctx, loc)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", loc, err)
	}
	return len(els), nil
}

func firstReady(ctx context.Context, root session.Finder, loc Locator, ready Readiness) (session.Element, bool, error) {
	els, err := root.FindElements(ctx, loc)
	if err != nil {
		return nil, false, err
	}
	if len(els) == 0 {
		return nil, false, fmt.Errorf("%w: %s", session.ErrNoSuchElement, loc)
	}
	var lastErr error
	for _, el := range els {
		ok, err := ready.Check(ctx, el)
		switch {
		case err != nil && fault.IsTransient(err):
			lastErr = err
		case err != nil:
			return nil, false, err
		case ok:
			return el, true, nil
		}
	}
	if lastErr != nil {
		return nil, false, lastErr
	}
	return nil, false, fmt.Errorf("%w: %d matches, none %s", ErrNotReady, len(els), ready)
}

// describe adds the locator to err. Timeouts also name the execution context the lookup ran
// in, since searching the wrong frame looks exactly like a missing element.
func (a *Acquirer) describe(loc Locator, ready Readiness, err error) error {
	if fault.IsValidation(err) {
		return err
	}
	if fault.IsTimeout(err) {
		ec := a.sess.Context()
		a.logger.Debug("Element lookup timed out.",
			zap.String("locator", loc.String()),
			zap.Stringer("readiness", ready),
			zap.Stringer("context", ec),
			zap.Error(err))
		return fmt.Errorf("element %s not %s (searched in %s): %w", loc, ready, ec, err)
	}
	return fmt.Errorf("element %s: %w", loc, err)
}

// internal/session/cdpsession/session.go
// Package cdpsession implements session.Session on top of the Chrome DevTools Protocol with
// chromedp. Elements are JavaScript object handles; frames are entered through the
// contentDocument of same-origin iframes.
package cdpsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/session"
)

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type frame struct {
	id   runtime.RemoteObjectID
	name string
}

// Session drives one Chrome instance. It is used by one goroutine at a time; only the dialog
// bookkeeping is shared with chromedp's event goroutine.
type Session struct {
	logger      *zap.Logger
	opts        Options
	allocCancel context.CancelFunc

	// first owns the browser; cancelling it shuts Chrome down.
	first   string
	tabs    map[string]*tab
	current string
	frames  []frame
	closed  bool

	mu      sync.Mutex
	dialogs map[string]string
}

var _ session.Session = (*Session)(nil)

// New launches Chrome and attaches to its first tab. The browser outlives ctx; call Close.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(session.Detach(ctx), opts.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)
	// The first Run allocates the browser; a deadline here would bound the browser's lifetime.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fault.Wrap(fault.KindFatal, err, "start chrome")
	}

	handle := string(chromedp.FromContext(browserCtx).Target.TargetID)
	s := &Session{
		logger:      logger,
		opts:        opts,
		allocCancel: allocCancel,
		first:       handle,
		tabs:        map[string]*tab{handle: {ctx: browserCtx, cancel: browserCancel}},
		current:     handle,
		dialogs:     make(map[string]string),
	}
	s.listen(handle, browserCtx)
	logger.Debug("Chrome session started.", zap.String("target", handle), zap.Bool("headless", opts.Headless))
	return s, nil
}

// Factory adapts New to the runner's session factory signature.
func Factory(opts Options, logger *zap.Logger) func(ctx context.Context) (session.Session, error) {
	return func(ctx context.Context) (session.Session, error) {
		return New(ctx, opts, logger)
	}
}

func (s *Session) listen(handle string, ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			s.mu.Lock()
			s.dialogs[handle] = ev.Message
			s.mu.Unlock()
		case *page.EventJavascriptDialogClosed:
			s.mu.Lock()
			delete(s.dialogs, handle)
			s.mu.Unlock()
		}
	})
}

// runOn executes fn against the tab named handle, bounded by ctx.
func (s *Session) runOn(ctx context.Context, handle string, fn func(ctx context.Context) error) error {
	if s.closed {
		return session.ErrClosed
	}
	t, ok := s.tabs[handle]
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrNoSuchWindow, handle)
	}
	opCtx, cancel := session.CombineContext(t.ctx, ctx)
	defer cancel()

	err := chromedp.Run(opCtx, chromedp.ActionFunc(fn))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return mapError(err)
}

func (s *Session) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.runOn(ctx, s.current, fn)
}

// call invokes fn with receiver this in tab handle.
func (s *Session) call(ctx context.Context, handle string, this runtime.RemoteObjectID, fn string, byValue bool) (*runtime.RemoteObject, error) {
	var obj *runtime.RemoteObject
	err := s.runOn(ctx, handle, func(ctx context.Context) error {
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(this).
			WithReturnByValue(byValue).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return scriptError(exc)
		}
		obj = res
		return nil
	})
	return obj, err
}

func (s *Session) release(handle string, id runtime.RemoteObjectID) {
	if id == "" {
		return
	}
	// Best effort; handles die with the page anyway.
	_ = s.runOn(context.Background(), handle, func(ctx context.Context) error {
		return runtime.ReleaseObject(id).Do(ctx)
	})
}

func (s *Session) FindElements(ctx context.Context, loc session.Locator) ([]session.Element, error) {
	if len(s.frames) > 0 {
		return s.findFrom(ctx, s.frames[len(s.frames)-1].id, loc, true)
	}
	var array runtime.RemoteObjectID
	err := s.run(ctx, func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate(fmt.Sprintf("(%s).call(document)", findScript(loc, false))).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return locatorError(loc, exc)
		}
		array = res.ObjectID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, array)
}

// findFrom searches below the element or frame with handle id.
func (s *Session) findFrom(ctx context.Context, id runtime.RemoteObjectID, loc session.Locator, inFrame bool) ([]session.Element, error) {
	obj, err := s.call(ctx, s.current, id, findScript(loc, inFrame), false)
	if err != nil {
		var se *scriptErr
		if errors.As(err, &se) {
			return nil, locatorError(loc, se.details)
		}
		return nil, err
	}
	return s.collect(ctx, obj.ObjectID)
}

// collect turns a JavaScript array of elements into element handles and releases the array.
func (s *Session) collect(ctx context.Context, array runtime.RemoteObjectID) ([]session.Element, error) {
	handle := s.current
	defer s.release(handle, array)

	obj, err := s.call(ctx, handle, array, "function() { return this.length; }", true)
	if err != nil {
		return nil, err
	}
	var n int
	if err := decodeValue(obj, &n); err != nil {
		return nil, err
	}
	out := make([]session.Element, 0, n)
	for i := 0; i < n; i++ {
		item, err := s.call(ctx, handle, array, fmt.Sprintf("function() { return this[%d]; }", i), false)
		if err != nil {
			return nil, err
		}
		out = append(out, &element{s: s, tab: handle, id: item.ObjectID})
	}
	return out, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.NavigationTimeout)
		defer cancel()
	}
	s.frames = nil
	return s.run(ctx, chromedp.Navigate(url).Do)
}

func (s *Session) Back(ctx context.Context) error {
	s.frames = nil
	return s.run(ctx, chromedp.NavigateBack().Do)
}

func (s *Session) Refresh(ctx context.Context) error {
	s.frames = nil
	return s.run(ctx, chromedp.Reload().Do)
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url).Do)
	return url, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title).Do)
	return title, err
}

func (s *Session) ExecuteScript(ctx context.Context, script string, res any) error {
	var obj *runtime.RemoteObject
	if len(s.frames) > 0 {
		var err error
		obj, err = s.call(ctx, s.current, s.frames[len(s.frames)-1].id, frameUserScript(script), true)
		if err != nil {
			return err
		}
	} else {
		err := s.run(ctx, func(ctx context.Context) error {
			r, exc, err := runtime.Evaluate(userScript(script)).
				WithReturnByValue(true).
				WithAwaitPromise(true).
				Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return scriptError(exc)
			}
			obj = r
			return nil
		})
		if err != nil {
			return err
		}
	}
	if res == nil {
		return nil
	}
	return decodeValue(obj, res)
}

func (s *Session) SwitchToFrame(ctx context.Context, f session.Element) error {
	el, ok := f.(*element)
	if !ok || el.s != s || el.tab != s.current {
		return fmt.Errorf("%w: element does not belong to the current window", session.ErrNoSuchFrame)
	}
	var name *string
	if err := el.eval(ctx, frameNameBody, &name); err != nil {
		return err
	}
	if name == nil {
		return fmt.Errorf("%w: element is not a frame", session.ErrNoSuchFrame)
	}
	s.frames = append(s.frames, frame{id: el.id, name: *name})
	return nil
}

func (s *Session) SwitchToParentFrame(ctx context.Context) error {
	if s.closed {
		return session.ErrClosed
	}
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
	return nil
}

func (s *Session) SwitchToDefaultContent(ctx context.Context) error {
	if s.closed {
		return session.ErrClosed
	}
	s.frames = nil
	return nil
}

func (s *Session) Windows(ctx context.Context) ([]session.Window, error) {
	var infos []*target.Info
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		infos, err = chromedp.Targets(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pageWindows(infos), nil
}

func pageWindows(infos []*target.Info) []session.Window {
	out := make([]session.Window, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		out = append(out, session.Window{Handle: string(info.TargetID), Title: info.Title, URL: info.URL})
	}
	return out
}

func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	if _, ok := s.tabs[handle]; !ok {
		windows, err := s.Windows(ctx)
		if err != nil {
			return err
		}
		if !hasWindow(windows, handle) {
			return fmt.Errorf("%w: %q", session.ErrNoSuchWindow, handle)
		}
		tabCtx, cancel := chromedp.NewContext(s.tabs[s.first].ctx, chromedp.WithTargetID(target.ID(handle)))
		if err := chromedp.Run(tabCtx); err != nil {
			cancel()
			return fmt.Errorf("attach to window %q: %w", handle, mapError(err))
		}
		s.tabs[handle] = &tab{ctx: tabCtx, cancel: cancel}
		s.listen(handle, tabCtx)
	}
	s.current = handle
	s.frames = nil
	return nil
}

func hasWindow(windows []session.Window, handle string) bool {
	for _, w := range windows {
		if w.Handle == handle {
			return true
		}
	}
	return false
}

func (s *Session) AlertText(ctx context.Context) (string, error) {
	if s.closed {
		return "", session.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.dialogs[s.current]
	if !ok {
		return "", session.ErrNoAlertOpen
	}
	return msg, nil
}

func (s *Session) AcceptAlert(ctx context.Context) error { return s.closeDialog(ctx, true) }

func (s *Session) DismissAlert(ctx context.Context) error { return s.closeDialog(ctx, false) }

func (s *Session) closeDialog(ctx context.Context, accept bool) error {
	if _, err := s.AlertText(ctx); err != nil {
		return err
	}
	if err := s.run(ctx, page.HandleJavaScriptDialog(accept).Do); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.dialogs, s.current)
	s.mu.Unlock()
	return nil
}

func (s *Session) Context() session.ExecutionContext {
	ec := session.ExecutionContext{Window: s.current}
	for _, f := range s.frames {
		ec = ec.Enter(f.name)
	}
	return ec
}

// Close detaches from every tab and shuts Chrome down. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	for handle, t := range s.tabs {
		if handle != s.first {
			t.cancel()
		}
	}
	err := chromedp.Cancel(s.tabs[s.first].ctx)
	s.allocCancel()
	if err != nil {
		s.logger.Debug("Chrome did not shut down cleanly.", zap.Error(err))
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

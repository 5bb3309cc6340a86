// internal/session/pwsession/pwsession.go
// Package pwsession implements session.Session with playwright-go. Elements are Playwright
// element handles, so they keep pointing at the node they were resolved to.
package pwsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/session"
)

const (
	installTimeout = 5 * time.Minute
	launchTimeout  = 60 * time.Second
	// defaultActionTimeout bounds a single Playwright call when the caller's context has no
	// deadline. Playwright's own auto-waiting is not relied on.
	defaultActionTimeout = 5 * time.Second
)

// Options configure the Chromium instance.
type Options struct {
	Headless          bool
	Args              []string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	// Install downloads the Playwright driver and Chromium before launching.
	Install bool
}

// OptionsFrom converts the browser configuration section.
func OptionsFrom(cfg config.BrowserConfig) Options {
	return Options{
		Headless:          cfg.Headless,
		Args:              cfg.Args,
		WindowWidth:       cfg.WindowWidth,
		WindowHeight:      cfg.WindowHeight,
		NavigationTimeout: cfg.NavigationTimeout,
		ActionTimeout:     cfg.ActionTimeout,
	}
}

func (o Options) launchOptions() playwright.BrowserTypeLaunchOptions {
	// Defaults often necessary for stability, especially in containers.
	args := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(o.Headless),
		Args:     append(args, o.Args...),
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
	}
}

func (o Options) contextOptions() playwright.BrowserNewContextOptions {
	var opts playwright.BrowserNewContextOptions
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		opts.Viewport = &playwright.Size{Width: o.WindowWidth, Height: o.WindowHeight}
	}
	return opts
}

type frame struct {
	f    playwright.Frame
	name string
}

// Session drives one Playwright browser context. Dialog bookkeeping is shared with
// Playwright's event goroutine; everything else belongs to the driving goroutine.
type Session struct {
	logger  *zap.Logger
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext

	current playwright.Page
	frames  []frame
	closed  bool

	mu      sync.Mutex
	handles map[playwright.Page]string
	dialogs map[playwright.Page]playwright.Dialog
}

var _ session.Session = (*Session)(nil)

// New starts the Playwright driver, launches Chromium and opens one page.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("playwright")

	if opts.Install {
		if err := install(ctx); err != nil {
			return nil, err
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fault.Wrap(fault.KindFatal, err, "start playwright driver")
	}
	browser, err := pw.Chromium.Launch(opts.launchOptions())
	if err != nil {
		_ = pw.Stop()
		return nil, fault.Wrap(fault.KindFatal, err, "launch chromium")
	}
	bctx, err := browser.NewContext(opts.contextOptions())
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fault.Wrap(fault.KindFatal, err, "create browser context")
	}
	s := &Session{
		logger:  logger,
		opts:    opts,
		pw:      pw,
		browser: browser,
		bctx:    bctx,
		handles: make(map[playwright.Page]string),
		dialogs: make(map[playwright.Page]playwright.Dialog),
	}
	bctx.OnPage(func(p playwright.Page) { s.track(p) })

	page, err := bctx.NewPage()
	if err != nil {
		_ = s.Close(ctx)
		return nil, fault.Wrap(fault.KindFatal, err, "open page")
	}
	s.track(page)
	s.current = page
	logger.Debug("Playwright session started.", zap.String("browser_version", browser.Version()))
	return s, nil
}

// Factory adapts New to the runner's session factory signature.
func Factory(opts Options, logger *zap.Logger) func(ctx context.Context) (session.Session, error) {
	return func(ctx context.Context) (session.Session, error) {
		return New(ctx, opts, logger)
	}
}

func install(ctx context.Context) error {
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	// Install blocks without a context, so it runs on its own goroutine.
	errc := make(chan error, 1)
	go func() {
		errc <- playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fault.Wrap(fault.KindFatal, err, "install playwright browsers")
		}
		return nil
	case <-installCtx.Done():
		return fault.Wrap(fault.KindFatal, installCtx.Err(), "waiting for playwright installation")
	}
}

// track assigns p a stable handle and records its dialogs.
func (s *Session) track(p playwright.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[p]; ok {
		return
	}
	s.handles[p] = uuid.NewString()
	p.OnDialog(func(d playwright.Dialog) {
		s.mu.Lock()
		s.dialogs[p] = d
		s.mu.Unlock()
	})
}

func (s *Session) handle(p playwright.Page) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[p]
}

// check rejects calls on a closed session or an ended context.
func (s *Session) check(ctx context.Context) error {
	if s.closed {
		return session.ErrClosed
	}
	return ctx.Err()
}

// timeout converts the caller's deadline into a Playwright timeout in milliseconds.
func (s *Session) timeout(ctx context.Context, fallback time.Duration) *float64 {
	if fallback <= 0 {
		fallback = s.opts.ActionTimeout
	}
	if fallback <= 0 {
		fallback = defaultActionTimeout
	}
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// selector translates a locator into Playwright selector syntax.
func selector(loc session.Locator) string {
	if loc.IsXPath() {
		return "xpath=" + string(loc)
	}
	return "css=" + string(loc)
}

func (s *Session) FindElements(ctx context.Context, loc session.Locator) ([]session.Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var (
		found []playwright.ElementHandle
		err   error
	)
	if len(s.frames) > 0 {
		found, err = s.frames[len(s.frames)-1].f.QuerySelectorAll(selector(loc))
	} else {
		found, err = s.current.QuerySelectorAll(selector(loc))
	}
	if err != nil {
		return nil, mapError(err, loc)
	}
	return s.wrap(found), nil
}

func (s *Session) wrap(found []playwright.ElementHandle) []session.Element {
	out := make([]session.Element, 0, len(found))
	for _, h := range found {
		out = append(out, &element{s: s, h: h})
	}
	return out
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.frames = nil
	_, err := s.current.Goto(url, playwright.PageGotoOptions{Timeout: s.timeout(ctx, s.opts.NavigationTimeout)})
	return mapError(err, "")
}

func (s *Session) Back(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.frames = nil
	_, err := s.current.GoBack(playwright.PageGoBackOptions{Timeout: s.timeout(ctx, s.opts.NavigationTimeout)})
	return mapError(err, "")
}

func (s *Session) Refresh(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.frames = nil
	_, err := s.current.Reload(playwright.PageReloadOptions{Timeout: s.timeout(ctx, s.opts.NavigationTimeout)})
	return mapError(err, "")
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return s.current.URL(), nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	title, err := s.current.Title()
	return title, mapError(err, "")
}

func (s *Session) ExecuteScript(ctx context.Context, script string, res any) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	expr := userScript(script)
	var (
		v   interface{}
		err error
	)
	if len(s.frames) > 0 {
		v, err = s.frames[len(s.frames)-1].f.Evaluate(expr)
	} else {
		v, err = s.current.Evaluate(expr)
	}
	if err != nil {
		return mapError(err, "")
	}
	if res == nil || v == nil {
		return nil
	}
	return decodeInto(v, res)
}

func (s *Session) SwitchToFrame(ctx context.Context, f session.Element) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	el, ok := f.(*element)
	if !ok || el.s != s {
		return fmt.Errorf("%w: element does not belong to this session", session.ErrNoSuchFrame)
	}
	if err := el.connected(); err != nil {
		return err
	}
	content, err := el.h.ContentFrame()
	if err != nil || content == nil {
		return fmt.Errorf("%w: element is not a frame", session.ErrNoSuchFrame)
	}
	name := content.Name()
	if name == "" {
		name = content.URL()
	}
	s.frames = append(s.frames, frame{f: content, name: name})
	return nil
}

func (s *Session) SwitchToParentFrame(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
	return nil
}

func (s *Session) SwitchToDefaultContent(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.frames = nil
	return nil
}

func (s *Session) Windows(ctx context.Context) ([]session.Window, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	pages := s.bctx.Pages()
	out := make([]session.Window, 0, len(pages))
	for _, p := range pages {
		s.track(p)
		title, err := p.Title()
		if err != nil {
			// Pages closing while listed are skipped.
			continue
		}
		out = append(out, session.Window{Handle: s.handle(p), Title: title, URL: p.URL()})
	}
	return out, nil
}

func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, p := range s.bctx.Pages() {
		s.track(p)
		if s.handle(p) == handle {
			s.current = p
			s.frames = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %q", session.ErrNoSuchWindow, handle)
}

func (s *Session) dialog() (playwright.Dialog, error) {
	if s.closed {
		return nil, session.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dialogs[s.current]
	if !ok {
		return nil, session.ErrNoAlertOpen
	}
	return d, nil
}

func (s *Session) AlertText(ctx context.Context) (string, error) {
	d, err := s.dialog()
	if err != nil {
		return "", err
	}
	return d.Message(), nil
}

func (s *Session) AcceptAlert(ctx context.Context) error {
	return s.closeDialog(func(d playwright.Dialog) error { return d.Accept() })
}

func (s *Session) DismissAlert(ctx context.Context) error {
	return s.closeDialog(playwright.Dialog.Dismiss)
}

func (s *Session) closeDialog(act func(playwright.Dialog) error) error {
	d, err := s.dialog()
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.dialogs, s.current)
	s.mu.Unlock()
	return mapError(act(d), "")
}

func (s *Session) Context() session.ExecutionContext {
	ec := session.ExecutionContext{Window: s.handle(s.current)}
	for _, f := range s.frames {
		ec = ec.Enter(f.name)
	}
	return ec
}

// Close shuts down the browser and the Playwright driver. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	if err := s.bctx.Close(); err != nil {
		firstErr = fmt.Errorf("close browser context: %w", err)
	}
	if err := s.browser.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close browser: %w", err)
	}
	if err := s.pw.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	return firstErr
}

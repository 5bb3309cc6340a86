// internal/session/sessiontest/session.go
// Package sessiontest provides an in-memory session.Session whose documents are scripted
// up front: elements can appear, become visible, go stale or disappear at fixed offsets
// from the moment the session was created.
package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type window struct {
	handle  string
	history []*Document
}

func (w *window) doc() *Document { return w.history[len(w.history)-1] }

// Session is the fake. The zero value is not usable; call New.
type Session struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time

	windows []*window
	current int
	frames  []*Node

	pages  map[string]*Document
	alert  *string
	closed bool

	finds   int
	scripts []string
	alerts  []string

	// FindErr, when set, is returned by every FindElements call on the session.
	FindErr error
	// Script answers ExecuteScript. A nil Script returns nil.
	Script func(script string) (any, error)
}

var _ session.Session = (*Session)(nil)

// New creates a session showing doc in a window named "main".
func New(doc *Document) *Session {
	return &Session{
		start:   time.Now(),
		now:     time.Now,
		windows: []*window{{handle: "main", history: []*Document{doc}}},
		pages:   make(map[string]*Document),
	}
}

func (s *Session) elapsed() time.Duration { return s.now().Sub(s.start) }

// AddWindow opens an additional window showing doc.
func (s *Session) AddWindow(handle string, doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, &window{handle: handle, history: []*Document{doc}})
}

// AddPage registers the document Navigate loads for url.
func (s *Session) AddPage(url string, doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = doc
}

// OpenAlert opens a dialog with the given message.
func (s *Session) OpenAlert(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = &text
}

// Remove detaches n from the document. Existing handles to it become stale.
func (s *Session) Remove(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.removed = true
	n.generation++
}

// Rerender keeps n in the document but invalidates every handle acquired so far.
func (s *Session) Rerender(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.generation++
}

// FindCalls counts FindElements calls made on the session and its elements.
func (s *Session) FindCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

// Scripts returns the scripts executed so far.
func (s *Session) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

// AlertActions returns "accept" or "dismiss" for every dialog closed so far.
func (s *Session) AlertActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.alerts...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) win() *window { return s.windows[s.current] }

func (s *Session) checkOpen() error {
	if s.closed {
		return session.ErrClosed
	}
	return nil
}

func (s *Session) FindElements(ctx context.Context, loc session.Locator) ([]session.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.finds++
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	index := s.win().doc().Elements
	if len(s.frames) > 0 {
		index = s.frames[len(s.frames)-1].Frame.Elements
	}
	return s.handles(resolve(index, loc, s.elapsed())), nil
}

func (s *Session) handles(nodes []*Node) []session.Element {
	out := make([]session.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{s: s, n: n, generation: n.generation})
	}
	return out
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	doc, ok := s.pages[url]
	if !ok {
		doc = NewDocument("", url)
	}
	w := s.win()
	w.history = append(w.history, doc)
	s.frames = nil
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if w := s.win(); len(w.history) > 1 {
		w.history = w.history[:len(w.history)-1]
	}
	s.frames = nil
	return nil
}

func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.win().doc().walk(func(n *Node) { n.generation++ })
	s.frames = nil
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.win().doc().URL, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.win().doc().Title, nil
}

func (s *Session) ExecuteScript(ctx context.Context, script string, res any) error {
	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.scripts = append(s.scripts, script)
	answer := s.Script
	s.mu.Unlock()

	if answer == nil {
		return nil
	}
	v, err := answer(script)
	if err != nil || res == nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode script result: %w", err)
	}
	return json.Unmarshal(raw, res)
}

func (s *Session) SwitchToFrame(ctx context.Context, frame session.Element) error {
	el, ok := frame.(*element)
	if !ok || el.s != s {
		return fmt.Errorf("%w: element does not belong to this session", session.ErrNoSuchFrame)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := el.check(); err != nil {
		return err
	}
	if el.n.Frame == nil {
		return fmt.Errorf("%w: %s is not a frame", session.ErrNoSuchFrame, el.n.Name)
	}
	s.frames = append(s.frames, el.n)
	return nil
}

func (s *Session) SwitchToParentFrame(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
	return nil
}

func (s *Session) SwitchToDefaultContent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.frames = nil
	return nil
}

func (s *Session) Windows(ctx context.Context) ([]session.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]session.Window, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, session.Window{Handle: w.handle, Title: w.doc().Title, URL: w.doc().URL})
	}
	return out, nil
}

func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for i, w := range s.windows {
		if w.handle == handle {
			s.current = i
			s.frames = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %q", session.ErrNoSuchWindow, handle)
}

func (s *Session) AlertText(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if s.alert == nil {
		return "", session.ErrNoAlertOpen
	}
	return *s.alert, nil
}

func (s *Session) AcceptAlert(ctx context.Context) error { return s.closeAlert("accept") }

func (s *Session) DismissAlert(ctx context.Context) error { return s.closeAlert("dismiss") }

func (s *Session) closeAlert(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.alert == nil {
		return session.ErrNoAlertOpen
	}
	s.alert = nil
	s.alerts = append(s.alerts, action)
	return nil
}

func (s *Session) Context() session.ExecutionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec := session.ExecutionContext{Window: s.win().handle}
	for _, f := range s.frames {
		ec = ec.Enter(f.Name)
	}
	return ec
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

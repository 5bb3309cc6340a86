// internal/session/sessiontest/document.go
package sessiontest

import (
	"time"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

// Node is one scripted element. Timing fields are measured from the moment the fake
// session was created, so a test can say "this button shows up after 2s".
type Node struct {
	Name     string
	Text     string
	Value    string
	Attrs    map[string]string
	Hidden   bool
	Disabled bool
	Selected bool

	// AppearsAfter delays the node becoming findable.
	AppearsAfter time.Duration
	// ShowsAfter keeps a present node invisible until it has elapsed.
	ShowsAfter time.Duration
	// GoneAfter removes the node once elapsed. Zero keeps it forever.
	GoneAfter time.Duration

	// Children are resolved by Element.FindElements on this node.
	Children map[session.Locator][]*Node
	// Frame makes the node an iframe whose content is the given document.
	Frame *Document

	// ClickErr is returned by every click on the node.
	ClickErr error
	// OnClick runs after a successful click.
	OnClick func(s *Session)

	generation int
	removed    bool
}

// Add registers child nodes under loc and returns n for chaining.
func (n *Node) Add(loc session.Locator, nodes ...*Node) *Node {
	if n.Children == nil {
		n.Children = make(map[session.Locator][]*Node)
	}
	n.Children[loc] = append(n.Children[loc], nodes...)
	return n
}

func (n *Node) present(elapsed time.Duration) bool {
	if n.removed || elapsed < n.AppearsAfter {
		return false
	}
	return n.GoneAfter == 0 || elapsed < n.GoneAfter
}

func (n *Node) displayed(elapsed time.Duration) bool {
	return n.present(elapsed) && !n.Hidden && elapsed >= n.ShowsAfter
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, children := range n.Children {
		for _, c := range children {
			c.walk(fn)
		}
	}
	if n.Frame != nil {
		n.Frame.walk(fn)
	}
}

// Document is a scripted page: a title, a URL and the nodes each locator resolves to.
type Document struct {
	Title    string
	URL      string
	Elements map[session.Locator][]*Node
}

// NewDocument creates an empty document.
func NewDocument(title, url string) *Document {
	return &Document{Title: title, URL: url, Elements: make(map[session.Locator][]*Node)}
}

// Add registers nodes under loc and returns d for chaining.
func (d *Document) Add(loc session.Locator, nodes ...*Node) *Document {
	if d.Elements == nil {
		d.Elements = make(map[session.Locator][]*Node)
	}
	d.Elements[loc] = append(d.Elements[loc], nodes...)
	return d
}

func (d *Document) walk(fn func(*Node)) {
	for _, nodes := range d.Elements {
		for _, n := range nodes {
			n.walk(fn)
		}
	}
}

func resolve(index map[session.Locator][]*Node, loc session.Locator, elapsed time.Duration) []*Node {
	var out []*Node
	for _, n := range index[loc] {
		if n.present(elapsed) {
			out = append(out, n)
		}
	}
	return out
}

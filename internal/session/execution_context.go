// internal/session/execution_context.go
package session

import (
	"fmt"
	"strings"
)

// ExecutionContext describes the current focus of a session: the active window and the path
// of frames entered from its top-level document. Adapters own and mutate it; callers only
// read it for diagnostics.
type ExecutionContext struct {
	Window string
	Frames []string
}

// IsTopLevel reports whether no frame has been entered.
func (c ExecutionContext) IsTopLevel() bool { return len(c.Frames) == 0 }

// Enter returns a copy with frame appended.
func (c ExecutionContext) Enter(frame string) ExecutionContext {
	frames := make([]string, 0, len(c.Frames)+1)
	frames = append(frames, c.Frames...)
	return ExecutionContext{Window: c.Window, Frames: append(frames, frame)}
}

// Parent returns a copy with the innermost frame removed. The top level is its own parent.
func (c ExecutionContext) Parent() ExecutionContext {
	if c.IsTopLevel() {
		return c
	}
	return ExecutionContext{Window: c.Window, Frames: append([]string(nil), c.Frames[:len(c.Frames)-1]...)}
}

// Top returns the top-level document of the same window.
func (c ExecutionContext) Top() ExecutionContext {
	return ExecutionContext{Window: c.Window}
}

func (c ExecutionContext) String() string {
	window := c.Window
	if window == "" {
		window = "current"
	}
	if c.IsTopLevel() {
		return fmt.Sprintf("window %q, top-level document", window)
	}
	return fmt.Sprintf("window %q, frame %s", window, strings.Join(c.Frames, " > "))
}

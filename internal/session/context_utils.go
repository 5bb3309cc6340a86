// internal/session/context_utils.go
package session

import "context"

// CombineContext derives a context from primary that is also canceled when secondary is done.
// Values and the deadline come from primary. Adapters use it to run an operation bounded by
// the caller's context on top of the long-lived context that carries the browser connection.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context that keeps the values of ctx but is never canceled by it. Cleanup
// that must outlive the operation, such as closing a tab, runs on a detached context.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// internal/execution/event.go
package execution

import (
	"sync"
	"time"
)

// Phase is the lifecycle point an Event reports.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseSuccess Phase = "success"
	PhaseFailure Phase = "failure"
)

// Diagnostics describe an action for reporting: what it does and what it acts on.
type Diagnostics struct {
	Description string
	Target      string
}

// Event is one structured report about an action. Negative marks a success-shaped event
// that reports a failed Soft action.
type Event struct {
	ActionID    string        `json:"action_id"`
	Phase       Phase         `json:"phase"`
	Channel     Channel       `json:"channel"`
	Description string        `json:"description"`
	Target      string        `json:"target,omitempty"`
	Negative    bool          `json:"negative,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns,omitempty"`
	Time        time.Time     `json:"time"`
}

// Reporter receives events synchronously, inline with the action.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// MultiReporter fans every event out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// Recorder keeps every event it receives. It is safe for concurrent use so several scripts
// can share one.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

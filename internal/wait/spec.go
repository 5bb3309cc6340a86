// internal/wait/spec.go
package wait

import (
	"errors"
	"time"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/fault"
)

// DefaultInterval is used when a Spec leaves Interval at zero.
const DefaultInterval = 500 * time.Millisecond

// Spec describes one wait. It is built per call and never mutated while the wait runs.
type Spec struct {
	// Timeout bounds the whole wait. It must be positive.
	Timeout time.Duration
	// Interval is the pause between polls. Zero means DefaultInterval.
	Interval time.Duration
	// Ignored lists errors (matched with errors.Is) that count as an unsuccessful poll
	// instead of aborting the wait.
	Ignored []error
	// IgnoreTransient additionally absorbs any error of kind fault.KindTransient.
	IgnoreTransient bool
}

// Validate rejects specs that cannot be waited on.
func (s Spec) Validate() error {
	if s.Timeout <= 0 {
		return fault.Validation("wait timeout must be positive, got %v", s.Timeout)
	}
	if s.Interval < 0 {
		return fault.Validation("wait interval must not be negative, got %v", s.Interval)
	}
	return nil
}

func (s Spec) interval() time.Duration {
	if s.Interval == 0 {
		return DefaultInterval
	}
	return s.Interval
}

func (s Spec) ignores(err error) bool {
	if s.IgnoreTransient && fault.IsTransient(err) {
		return true
	}
	for _, target := range s.Ignored {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Option adjusts a Spec built from Defaults.
type Option func(*Spec)

// Timeout overrides the wait timeout.
func Timeout(d time.Duration) Option { return func(s *Spec) { s.Timeout = d } }

// Interval overrides the polling interval.
func Interval(d time.Duration) Option { return func(s *Spec) { s.Interval = d } }

// Ignoring adds errors that are absorbed while polling.
func Ignoring(errs ...error) Option {
	return func(s *Spec) { s.Ignored = append(s.Ignored, errs...) }
}

// IgnoringTransient absorbs every transient error.
func IgnoringTransient() Option { return func(s *Spec) { s.IgnoreTransient = true } }

// Defaults are the configured starting point for every Spec.
type Defaults struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultsFrom converts the wait configuration section.
func DefaultsFrom(cfg config.WaitConfig) Defaults {
	return Defaults{Timeout: cfg.Timeout(), Interval: cfg.Interval()}
}

// Spec builds a fresh Spec from the defaults and applies opts in order.
func (d Defaults) Spec(opts ...Option) Spec {
	s := Spec{Timeout: d.Timeout, Interval: d.Interval}
	for _, opt := range opts {
		opt(&s)
	}
	// Copy so later appends by a caller cannot alias this spec's slice.
	s.Ignored = append([]error(nil), s.Ignored...)
	return s
}

// File: internal/observability/reporter.go
package observability

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/execution"
)

// EventReporter writes action events to a zap logger. Failures are logged at warn level,
// everything else at info.
type EventReporter struct {
	logger *zap.Logger
}

// NewEventReporter creates a reporter that logs under the "report" name.
func NewEventReporter(logger *zap.Logger) *EventReporter {
	if logger == nil {
		logger = GetLogger()
	}
	return &EventReporter{logger: logger.Named("report")}
}

func (r *EventReporter) Report(e execution.Event) {
	fields := []zap.Field{
		zap.String("action_id", e.ActionID),
		zap.Stringer("channel", e.Channel),
		zap.String("target", e.Target),
	}
	if e.Phase != execution.PhaseStart {
		fields = append(fields, zap.Duration("elapsed", e.Elapsed))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}

	switch {
	case e.Phase == execution.PhaseFailure:
		r.logger.Warn(e.Description+" failed", fields...)
	case e.Negative:
		r.logger.Info(e.Description+" returned a negative result", fields...)
	case e.Phase == execution.PhaseSuccess:
		r.logger.Info(e.Description+" succeeded", fields...)
	default:
		r.logger.Info(e.Description+" started", fields...)
	}
}

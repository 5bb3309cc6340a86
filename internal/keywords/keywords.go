// internal/keywords/keywords.go
// Package keywords holds the domain keywords. Each one is a thin call-through: acquire what it
// needs through locate, act on the session, and let execution decide how the outcome is
// reported. The failure channel is always the caller's choice.
package keywords

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/locate"
	"github.com/xkilldash9x/kwdriver/internal/retry"
	"github.com/xkilldash9x/kwdriver/internal/session"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

// Deps are the collaborators one Keywords instance drives. Session is required; every other
// field has a usable zero value.
type Deps struct {
	Session  session.Session
	Engine   *wait.Engine
	Defaults wait.Defaults
	Executor *execution.Executor
	Retrier  *retry.Retrier
	Policy   retry.Policy
	Logger   *zap.Logger
}

// Keywords binds the keyword set to one session. Like the session, it is driven by one
// goroutine at a time.
type Keywords struct {
	sess    session.Session
	acq     *locate.Acquirer
	engine  *wait.Engine
	ex      *execution.Executor
	retrier *retry.Retrier
	policy  retry.Policy
	logger  *zap.Logger
}

// New creates the keyword set for d.Session.
func New(d Deps) *Keywords {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keywords{
		sess:    d.Session,
		acq:     locate.New(d.Session, d.Engine, d.Defaults, logger),
		engine:  d.Engine,
		ex:      d.Executor,
		retrier: d.Retrier,
		policy:  d.Policy,
		logger:  logger.Named("keywords"),
	}
}

// Acquirer exposes element acquisition for callers composing their own keywords.
func (k *Keywords) Acquirer() *locate.Acquirer { return k.acq }

// Session returns the driven session.
func (k *Keywords) Session() session.Session { return k.sess }

func diag(description, target string) execution.Diagnostics {
	return execution.Diagnostics{Description: description, Target: target}
}

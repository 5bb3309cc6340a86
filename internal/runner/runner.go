// internal/runner/runner.go
// Package runner executes keyword scripts. Every script gets its own session and runs on its
// own goroutine; several scripts run at once up to the configured concurrency.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/kwdriver/internal/datasource"
	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/keywords"
	"github.com/xkilldash9x/kwdriver/internal/reporting"
	"github.com/xkilldash9x/kwdriver/internal/retry"
	"github.com/xkilldash9x/kwdriver/internal/session"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

// SessionFactory opens a new session for one script.
type SessionFactory func(ctx context.Context) (session.Session, error)

const closeTimeout = 10 * time.Second

// Config wires a Runner. NewSession and Registry are required.
type Config struct {
	Registry    *keywords.Registry
	NewSession  SessionFactory
	Resolver    *datasource.Resolver
	Engine      *wait.Engine
	Defaults    wait.Defaults
	Executor    *execution.Executor
	Retrier     *retry.Retrier
	Policy      retry.Policy
	Concurrency int
	Logger      *zap.Logger
}

// Runner executes scripts.
type Runner struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Runner. A nil Resolver treats every external arg as missing data.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = keywords.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = datasource.NewResolver(nil, logger)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{cfg: cfg, logger: logger.Named("runner"), now: time.Now}
}

// Run executes scripts in parallel and returns their results in input order. Script failures
// are recorded in the results, not returned; the error is non-nil only when ctx ends the run.
func (r *Runner) Run(ctx context.Context, scripts []Script) ([]reporting.ScriptResult, error) {
	results := make([]reporting.ScriptResult, len(scripts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	r.logger.Info("Starting run.", zap.Int("scripts", len(scripts)), zap.Int("concurrency", r.cfg.Concurrency))
	for i, s := range scripts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.RunScript(gctx, s)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, fault.Wrap(fault.KindFatal, err, "run interrupted")
	}
	return results, nil
}

// RunScript executes one script on a fresh session. A Hard or Silent failure stops the script;
// Soft steps that report a negative result fail the script but let it continue.
func (r *Runner) RunScript(ctx context.Context, s Script) reporting.ScriptResult {
	res := reporting.ScriptResult{Name: s.Name, TestCase: s.TestCase, Passed: true, Started: r.now()}
	logger := r.logger.With(zap.String("script", s.Name), zap.String("test_case", s.TestCase))
	defer func() {
		res.Finished = r.now()
		logger.Info("Script finished.", zap.Bool("passed", res.Passed), zap.Duration("elapsed", res.Finished.Sub(res.Started)))
	}()

	fail := func(err error) {
		res.Passed = false
		res.Error = err.Error()
	}

	if err := s.Validate(r.cfg.Registry); err != nil {
		fail(err)
		return res
	}

	sess, err := r.cfg.NewSession(ctx)
	if err != nil {
		fail(fault.Normalize(err, "open session"))
		return res
	}
	defer func() {
		// The run context may already be cancelled; the browser still needs closing.
		closeCtx, cancel := context.WithTimeout(session.Detach(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("Failed to close session.", zap.Error(err))
		}
	}()

	kw := keywords.New(keywords.Deps{
		Session:  sess,
		Engine:   r.cfg.Engine,
		Defaults: r.cfg.Defaults,
		Executor: r.cfg.Executor,
		Retrier:  r.cfg.Retrier,
		Policy:   r.cfg.Policy,
		Logger:   logger,
	})

	for i, st := range s.Steps {
		step, err := r.runStep(ctx, kw, s.TestCase, i, st)
		res.Steps = append(res.Steps, step)
		if err != nil {
			fail(err)
			return res
		}
		if !step.Succeeded {
			res.Passed = false
		}
	}
	return res
}

func (r *Runner) runStep(ctx context.Context, kw *keywords.Keywords, testCase string, i int, st Step) (reporting.StepResult, error) {
	ch, _ := execution.ParseChannel(st.Channel)
	out := reporting.StepResult{Index: i, Keyword: st.Keyword, Channel: ch}
	start := r.now()

	args, err := r.resolveArgs(testCase, st)
	if err != nil {
		out.Error, out.Kind = err.Error(), fault.KindOf(err).String()
		out.Elapsed = r.now().Sub(start)
		return out, err
	}

	res, err := r.cfg.Registry.Run(ctx, kw, st.Keyword, ch, args)
	out.Succeeded, out.Value = res.Succeeded, res.Value
	out.Elapsed = r.now().Sub(start)
	if err != nil {
		out.Error, out.Kind = err.Error(), fault.KindOf(err).String()
		return out, err
	}
	return out, nil
}

func (r *Runner) resolveArgs(testCase string, st Step) (keywords.Args, error) {
	if len(st.External) == 0 {
		return st.Args, nil
	}
	args := make(keywords.Args, len(st.Args))
	for k, v := range st.Args {
		args[k] = v
	}
	for _, name := range st.External {
		v, err := r.cfg.Resolver.Resolve(testCase, args[name], true)
		if err != nil {
			return nil, fault.Normalize(err, "resolve %s", name)
		}
		args[name] = v
	}
	return args, nil
}

// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/datasource"
	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/keywords"
	"github.com/xkilldash9x/kwdriver/internal/metrics"
	"github.com/xkilldash9x/kwdriver/internal/observability"
	"github.com/xkilldash9x/kwdriver/internal/reporting"
	"github.com/xkilldash9x/kwdriver/internal/retry"
	"github.com/xkilldash9x/kwdriver/internal/runner"
	"github.com/xkilldash9x/kwdriver/internal/session/cdpsession"
	"github.com/xkilldash9x/kwdriver/internal/session/pwsession"
	"github.com/xkilldash9x/kwdriver/internal/store"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

const (
	traceShutdownTimeout = 5 * time.Second
	saveTimeout          = 30 * time.Second
)

// newSessionFactory picks the browser adapter. Tests replace it with an in-memory session.
var newSessionFactory = func(cfg config.BrowserConfig, logger *zap.Logger) (runner.SessionFactory, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverChromedp:
		return cdpsession.Factory(cdpsession.OptionsFrom(cfg), logger), nil
	case config.DriverPlaywright:
		opts := pwsession.OptionsFrom(cfg)
		opts.Install = os.Getenv("KWDRIVER_PLAYWRIGHT_INSTALL") != ""
		return pwsession.Factory(opts, logger), nil
	default:
		return nil, fmt.Errorf("unsupported browser driver %q", cfg.Driver)
	}
}

// openStore connects to the report database. Tests replace it with a mock pool.
var openStore = func(ctx context.Context, url string, logger *zap.Logger) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// ErrScriptsFailed is returned by run when at least one script did not pass.
var ErrScriptsFailed = errors.New("scripts failed")

type runOptions struct {
	format    string
	tracePath string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run [scripts...]",
		Short: "Run one or more keyword scripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return runScripts(cmd.Context(), cfg, args, opts, observability.GetLogger())
		},
	}

	runCmd.Flags().StringP("report", "o", "", "Write the run report to this file (default stdout)")
	runCmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Report format: 'text' or 'json'")
	runCmd.Flags().String("metrics-file", "", "Write Prometheus metrics in text format to this file after the run")
	runCmd.Flags().StringVar(&opts.tracePath, "trace", "", "Export action spans as JSON to this file")
	runCmd.Flags().String("driver", "", "Browser driver: 'chromedp' or 'playwright' (overrides config/env)")
	runCmd.Flags().Bool("headless", false, "Run the browser headless (overrides config/env)")
	runCmd.Flags().IntP("concurrency", "j", 0, "Number of scripts to run at once (overrides config/env)")
	runCmd.Flags().String("data", "", "External data file (.xlsx or .csv) for external step args")
	runCmd.Flags().String("sheet", "", "Worksheet to read from an .xlsx data file")
	runCmd.Flags().String("store-url", "", "PostgreSQL URL to save the run report to (overrides config/env)")
	return runCmd
}

func runScripts(ctx context.Context, cfg *config.Config, paths []string, opts runOptions, logger *zap.Logger) error {
	scripts := make([]runner.Script, 0, len(paths))
	for _, p := range paths {
		s, err := runner.LoadScript(p)
		if err != nil {
			return err
		}
		scripts = append(scripts, s)
	}

	resolver, err := openResolver(cfg.Data(), logger)
	if err != nil {
		return err
	}

	if opts.tracePath != "" {
		shutdown, err := startTracing(opts.tracePath)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceShutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("Failed to flush traces.", zap.Error(err))
			}
		}()
	}

	factory, err := newSessionFactory(cfg.Browser(), logger)
	if err != nil {
		return err
	}

	var db *store.Store
	if url := cfg.Store().URL; url != "" {
		s, closeDB, err := openStore(ctx, url, logger)
		if err != nil {
			return err
		}
		defer closeDB()
		db = s
	}

	rep, err := reporting.New(opts.format, cfg.Runner().ReportPath)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ex := execution.NewExecutor(
		execution.MultiReporter{observability.NewEventReporter(logger), rep},
		logger,
		execution.WithMetrics(m),
	)

	r := runner.New(runner.Config{
		Registry:    keywords.Default(),
		NewSession:  factory,
		Resolver:    resolver,
		Engine:      wait.NewEngine(logger, m),
		Defaults:    wait.DefaultsFrom(cfg.Wait()),
		Executor:    ex,
		Retrier:     retry.New(logger, m),
		Policy:      retry.PolicyFrom(cfg.Retry()),
		Concurrency: cfg.Runner().Concurrency,
		Logger:      logger,
	})

	results, runErr := r.Run(ctx, scripts)
	failed := 0
	for _, res := range results {
		if res.Name == "" && res.Started.IsZero() {
			// Never started because the run was interrupted.
			continue
		}
		rep.AddScript(res)
		if !res.Passed {
			failed++
		}
	}

	if db != nil {
		// Saved even when interrupted; the results so far are still useful.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		if err := db.SaveRun(saveCtx, rep.Snapshot()); err != nil {
			logger.Error("Failed to save run to database.", zap.Error(err))
		}
		cancel()
	}
	if err := rep.Close(); err != nil {
		logger.Error("Failed to write run report.", zap.Error(err))
	}
	if path := cfg.Runner().MetricsFile; path != "" {
		if err := writeMetrics(path, reg); err != nil {
			logger.Error("Failed to write metrics file.", zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScriptsFailed, failed, len(scripts))
	}
	logger.Info("All scripts passed.", zap.Int("scripts", len(scripts)))
	return nil
}

// openResolver loads the configured data file. Without one, external args resolve to "".
func openResolver(cfg config.DataConfig, logger *zap.Logger) (*datasource.Resolver, error) {
	if cfg.Path == "" {
		return datasource.NewResolver(nil, logger), nil
	}
	table, err := datasource.Open(cfg.Path, cfg.Sheet)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "load data file %q", cfg.Path)
	}
	logger.Info("Loaded external data.", zap.String("path", cfg.Path), zap.Int("rows", table.Len()))
	return datasource.NewResolver(table, logger), nil
}

func startTracing(path string) (func(context.Context) error, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	shutdown, err := observability.InitTracing(f, "kwdriver", Version)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(shutdown(ctx), f.Close())
	}, nil
}

func writeMetrics(path string, g prometheus.Gatherer) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(expanded, g)
}

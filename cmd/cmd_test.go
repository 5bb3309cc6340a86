// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/observability"
	"github.com/xkilldash9x/kwdriver/internal/reporting"
	"github.com/xkilldash9x/kwdriver/internal/runner"
	"github.com/xkilldash9x/kwdriver/internal/session"
	"github.com/xkilldash9x/kwdriver/internal/session/sessiontest"
	"github.com/xkilldash9x/kwdriver/internal/store"
)

const testConfig = `
logger:
  level: fatal
wait:
  timeout_seconds: 1
  polling_millis: 20
retry:
  max_attempts: 2
  base_delay_millis: 10
`

const passingScript = `
name: home
steps:
  - keyword: navigate
    args: {url: "https://app.test/"}
  - keyword: verify-title
    args: {title: "Home"}
  - keyword: click
    args: {locator: "#go"}
`

const softFailingScript = `
name: wrong-title
steps:
  - keyword: navigate
    args: {url: "https://app.test/"}
  - keyword: verify-title
    channel: soft
    args: {title: "Elsewhere", timeout: "0.05"}
`

// resetForTest restores package state and silences the global logger.
func resetForTest(t *testing.T) {
	t.Helper()
	cfgFile = ""
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})

	original := newSessionFactory
	newSessionFactory = func(config.BrowserConfig, *zap.Logger) (runner.SessionFactory, error) {
		return func(context.Context) (session.Session, error) {
			home := sessiontest.NewDocument("Home", "https://app.test/").
				Add("#go", &sessiontest.Node{Name: "go"})
			s := sessiontest.New(sessiontest.NewDocument("", "about:blank"))
			s.AddPage("https://app.test/", home)
			return s, nil
		}, nil
	}
	t.Cleanup(func() {
		newSessionFactory = original
		observability.ResetForTest()
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "kwdriver version "+Version)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "kwdriver "+Version+"\n", out)
}

func TestKeywordsCmd(t *testing.T) {
	resetForTest(t)
	out, err := execute(t, "keywords")
	require.NoError(t, err)
	assert.Contains(t, out, "KEYWORD")
	assert.Contains(t, out, "click-with-retry")
	assert.Contains(t, out, "verify-visible")
}

func TestRunCmd_RequiresScripts(t *testing.T) {
	resetForTest(t)
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestRunCmd_WritesReportAndMetrics(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "kwdriver.yaml", testConfig)
	script := writeFile(t, dir, "home.yaml", passingScript)
	report := filepath.Join(dir, "report.json")
	metricsPath := filepath.Join(dir, "kwdriver.prom")

	_, err := execute(t, "run", "-c", cfgPath, "--format", "json", "--report", report, "--metrics-file", metricsPath, script)
	require.NoError(t, err)

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	var run reporting.Run
	require.NoError(t, jsoniter.Unmarshal(raw, &run))
	assert.Equal(t, 1, run.Passed)
	assert.Zero(t, run.Failed)
	require.Len(t, run.Scripts, 1)
	assert.Equal(t, "home", run.Scripts[0].Name)
	assert.Len(t, run.Scripts[0].Steps, 3)
	assert.NotEmpty(t, run.Events)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "kwdriver_action_total")
	assert.Contains(t, string(prom), "kwdriver_wait_duration_seconds")
}

func TestRunCmd_FailedScriptReturnsError(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "kwdriver.yaml", testConfig)
	good := writeFile(t, dir, "home.yaml", passingScript)
	bad := writeFile(t, dir, "wrong.yaml", softFailingScript)
	report := filepath.Join(dir, "report.txt")

	_, err := execute(t, "run", "-c", cfgPath, "-j", "2", "--report", report, good, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScriptsFailed)
	assert.Contains(t, err.Error(), "1 of 2")

	text, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(text), "PASS")
	assert.Contains(t, string(text), "FAIL")
}

func TestRunCmd_TraceFile(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "kwdriver.yaml", testConfig)
	script := writeFile(t, dir, "home.yaml", passingScript)
	tracePath := filepath.Join(dir, "trace.json")

	_, err := execute(t, "run", "-c", cfgPath, "--report", filepath.Join(dir, "r.txt"), "--trace", tracePath, script)
	require.NoError(t, err)

	raw, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "action navigate")
}

func TestRunCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		args    func(dir string) []string
		wantErr string
	}{
		{
			name:    "missing script",
			config:  testConfig,
			args:    func(dir string) []string { return []string{filepath.Join(dir, "nope.yaml")} },
			wantErr: "nope.yaml",
		},
		{
			name:    "unknown driver",
			config:  testConfig + "browser:\n  driver: selenium\n",
			args:    func(dir string) []string { return []string{writeFile(t, dir, "s.yaml", passingScript)} },
			wantErr: "browser.driver",
		},
		{
			name:    "bad report format",
			config:  testConfig,
			args:    func(dir string) []string { return []string{"--format", "sarif", writeFile(t, dir, "s.yaml", passingScript)} },
			wantErr: "unsupported output format",
		},
		{
			name:    "missing data file",
			config:  testConfig,
			args:    func(dir string) []string { return []string{"--data", filepath.Join(dir, "none.csv"), writeFile(t, dir, "s.yaml", passingScript)} },
			wantErr: "load data file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTest(t)
			dir := t.TempDir()
			cfgPath := writeFile(t, dir, "kwdriver.yaml", tt.config)
			args := append([]string{"run", "-c", cfgPath}, tt.args(dir)...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitializeConfig_FlagOverrides(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "kwdriver.yaml", testConfig+"runner:\n  concurrency: 4\n")

	root := NewRootCommand()
	// Registering the persistent flag resets cfgFile, so it is set afterwards.
	cfgFile = path
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, runCmd.ParseFlags([]string{"--driver", "playwright"}))

	v := newViper()
	require.NoError(t, initializeConfig(runCmd, v))
	cfg, err := config.NewConfigFromViper(v, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, config.DriverPlaywright, cfg.Browser().Driver, "flag wins over the default")
	assert.Equal(t, 4, cfg.Runner().Concurrency, "file value kept when the flag is unset")
	assert.Equal(t, 1, cfg.Wait().TimeoutSeconds)
	assert.True(t, cfg.Browser().Headless, "an unset bool flag does not override the default")
}

func TestRunCmd_SavesRunToStore(t *testing.T) {
	resetForTest(t)
	// Re-initialize the global logger so save failures are visible to the test.
	observability.ResetForTest()
	var logs bytes.Buffer
	observability.Initialize(config.LoggerConfig{Level: "error", Format: "json", ServiceName: "test"},
		zapcore.Lock(zapcore.AddSync(&logs)))

	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	anyArgs := func(n int) []interface{} {
		args := make([]interface{}, n)
		for i := range args {
			args[i] = pgxmock.AnyArg()
		}
		return args
	}
	mockPool.ExpectPing()
	mockPool.ExpectBegin()
	mockPool.ExpectExec("INSERT INTO kw_runs").WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO kw_scripts").WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for i := 0; i < 3; i++ {
		mockPool.ExpectExec("INSERT INTO kw_steps").WithArgs(anyArgs(10)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mockPool.ExpectCommit()

	var gotURL string
	original := openStore
	openStore = func(ctx context.Context, url string, logger *zap.Logger) (*store.Store, func(), error) {
		gotURL = url
		s, err := store.New(ctx, mockPool, logger)
		return s, func() {}, err
	}
	t.Cleanup(func() { openStore = original })

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "kwdriver.yaml", testConfig)
	script := writeFile(t, dir, "home.yaml", passingScript)

	_, err = execute(t, "run", "-c", cfgPath, "--report", filepath.Join(dir, "r.txt"),
		"--store-url", "postgres://kw@localhost/kw", script)
	require.NoError(t, err)
	assert.Equal(t, "postgres://kw@localhost/kw", gotURL)
	assert.NoError(t, mockPool.ExpectationsWereMet())
	assert.NotContains(t, logs.String(), "Failed to save run")
}

// internal/reporting/reporter.go
// Package reporting collects the outcome of a run: every action event and every scripted step,
// written out once the run is over.
package reporting

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/kwdriver/internal/execution"
)

// Reporter receives action events while scripts run and script results as they finish.
type Reporter interface {
	execution.Reporter
	// AddScript records the result of one finished script.
	AddScript(ScriptResult)
	// Snapshot returns the run collected so far.
	Snapshot() Run
	// Close writes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// StepResult is the outcome of one scripted step.
type StepResult struct {
	Index     int               `json:"index"`
	Keyword   string            `json:"keyword"`
	Channel   execution.Channel `json:"channel"`
	Succeeded bool              `json:"succeeded"`
	Value     string            `json:"value,omitempty"`
	Error     string            `json:"error,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Elapsed   time.Duration     `json:"elapsed_ns"`
}

// ScriptResult is the outcome of one script. Passed is false if any step failed, including
// Soft steps that reported a negative result.
type ScriptResult struct {
	Name     string       `json:"name"`
	TestCase string       `json:"test_case,omitempty"`
	Passed   bool         `json:"passed"`
	Error    string       `json:"error,omitempty"`
	Steps    []StepResult `json:"steps"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

// Run is the complete report.
type Run struct {
	ID       string            `json:"id"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Scripts  []ScriptResult    `json:"scripts"`
	Events   []execution.Event `json:"events"`
}

// Collector accumulates a Run. It is safe for concurrent use.
type Collector struct {
	mu  sync.Mutex
	run Run
	now func() time.Time
}

// NewCollector starts a run with a fresh id.
func NewCollector() *Collector {
	c := &Collector{now: time.Now}
	c.run = Run{ID: uuid.NewString(), Started: c.now()}
	return c
}

// Report implements execution.Reporter.
func (c *Collector) Report(e execution.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Events = append(c.run.Events, e)
}

// AddScript records a finished script.
func (c *Collector) AddScript(r ScriptResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Scripts = append(c.run.Scripts, r)
	if r.Passed {
		c.run.Passed++
	} else {
		c.run.Failed++
	}
}

// Snapshot returns a copy of the run so far, stamped with the current time.
func (c *Collector) Snapshot() Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := c.run
	run.Finished = c.now()
	run.Scripts = append([]ScriptResult(nil), c.run.Scripts...)
	run.Events = append([]execution.Event(nil), c.run.Events...)
	return run
}

// Encoder renders a finished run.
type Encoder func(w io.Writer, run Run) error

// fileReporter collects a run and encodes it on Close.
type fileReporter struct {
	*Collector
	writer io.WriteCloser
	encode Encoder
	once   sync.Once
	err    error
}

func (r *fileReporter) Close() error {
	r.once.Do(func() {
		err := r.encode(r.writer, r.Snapshot())
		if cerr := r.writer.Close(); err == nil {
			err = cerr
		}
		r.err = err
	})
	return r.err
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("json" or "text") writing to outputPath. An empty path
// or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	encode, err := encoderFor(format)
	if err != nil {
		return nil, err
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWriter(writer, encode), nil
}

// NewWriter creates a reporter that encodes to w on Close. The reporter takes ownership of w.
func NewWriter(w io.WriteCloser, encode Encoder) Reporter {
	return &fileReporter{Collector: NewCollector(), writer: w, encode: encode}
}

func encoderFor(format string) (Encoder, error) {
	switch format {
	case "", "json":
		return WriteJSON, nil
	case "text":
		return WriteText, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

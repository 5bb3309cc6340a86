// internal/reporting/encode.go
package reporting

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON writes run as indented JSON.
func WriteJSON(w io.Writer, run Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	return nil
}

// WriteText writes a human readable summary of run, one line per step.
func WriteText(w io.Writer, run Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s: %d passed, %d failed (%v)\n", run.ID, run.Passed, run.Failed, run.Finished.Sub(run.Started).Round(time.Millisecond))
	for _, s := range run.Scripts {
		status := "PASS"
		if !s.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(tw, "\n%s\t%s\t%s\n", status, s.Name, s.TestCase)
		for _, st := range s.Steps {
			outcome := "ok"
			switch {
			case st.Error != "":
				outcome = "error: " + st.Error
			case !st.Succeeded:
				outcome = "negative"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", st.Index+1, st.Keyword, st.Channel, outcome)
		}
		if s.Error != "" && len(s.Steps) == 0 {
			fmt.Fprintf(tw, "  \t%s\n", s.Error)
		}
	}
	return tw.Flush()
}

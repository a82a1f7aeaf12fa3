package probe

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	probetls "github.com/polisai/polis-probe/internal/tls"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Reporter renders probe results to an output stream.
type Reporter struct {
	out    io.Writer
	format string
}

// NewReporter creates a Reporter. Unknown formats fall back to text.
func NewReporter(out io.Writer, format string) *Reporter {
	if format != FormatJSON {
		format = FormatText
	}
	return &Reporter{out: out, format: format}
}

// Write renders the summary.
func (r *Reporter) Write(summary *Summary) error {
	if r.format == FormatJSON {
		return r.writeJSON(summary)
	}
	return r.writeText(summary)
}

// writeText prints a status or an error line per target. A single target
// produces exactly the plain lines; multiple targets are prefixed by name and
// followed by a totals line.
func (r *Reporter) writeText(summary *Summary) error {
	multi := len(summary.Results) > 1

	var b strings.Builder
	for _, res := range summary.Results {
		prefix := ""
		if multi {
			prefix = fmt.Sprintf("[%s] ", res.Target)
		}

		if res.OK() {
			fmt.Fprintf(&b, "%sStatus: %d\n", prefix, res.StatusCode)
			fmt.Fprintf(&b, "%s%s endpoint is responding\n", prefix, strings.ToUpper(res.Scheme()))
		} else {
			fmt.Fprintf(&b, "%sError: %s\n", prefix, res.Err.Error())
		}
	}

	if multi {
		fmt.Fprintf(&b, "Total: %d, Passed: %d, Failed: %d\n", summary.Total, summary.Passed, summary.Failed)
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

type jsonSummary struct {
	RunID   string       `json:"run_id"`
	Total   int          `json:"total"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []jsonResult `json:"results"`
}

type jsonResult struct {
	Target      string                   `json:"target"`
	URL         string                   `json:"url"`
	OK          bool                     `json:"ok"`
	StatusCode  int                      `json:"status_code,omitempty"`
	Error       string                   `json:"error,omitempty"`
	FailureKind probetls.FailureKind     `json:"failure_kind"`
	Attempts    int                      `json:"attempts"`
	DurationMS  float64                  `json:"duration_ms"`
	StartedAt   time.Time                `json:"started_at"`
	TLS         *probetls.ConnectionInfo `json:"tls,omitempty"`
}

func (r *Reporter) writeJSON(summary *Summary) error {
	doc := jsonSummary{
		RunID:   summary.RunID,
		Total:   summary.Total,
		Passed:  summary.Passed,
		Failed:  summary.Failed,
		Results: make([]jsonResult, 0, len(summary.Results)),
	}

	for _, res := range summary.Results {
		entry := jsonResult{
			Target:      res.Target,
			URL:         res.URL,
			OK:          res.OK(),
			StatusCode:  res.StatusCode,
			FailureKind: res.FailureKind,
			Attempts:    res.Attempts,
			DurationMS:  float64(res.Duration) / float64(time.Millisecond),
			StartedAt:   res.StartedAt,
			TLS:         res.TLS,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		doc.Results = append(doc.Results, entry)
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

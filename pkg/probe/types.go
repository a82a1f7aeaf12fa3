package probe

import (
	"net/url"
	"strings"
	"time"

	probetls "github.com/polisai/polis-probe/internal/tls"
)

// Target describes one endpoint to probe.
type Target struct {
	Name     string
	URL      string
	Timeout  time.Duration
	Insecure bool
	Headers  map[string]string
}

// Result is the outcome of probing one target. Exactly one of StatusCode and
// Err is meaningful: a response of any status is a success.
type Result struct {
	RunID       string
	Target      string
	URL         string
	StatusCode  int
	Err         *ProbeError
	FailureKind probetls.FailureKind
	Attempts    int
	Duration    time.Duration
	StartedAt   time.Time
	TLS         *probetls.ConnectionInfo
}

// OK reports whether the target produced a response.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Scheme returns the lower-cased URL scheme of the target.
func (r *Result) Scheme() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Summary aggregates the results of one invocation.
type Summary struct {
	RunID   string
	Total   int
	Passed  int
	Failed  int
	Results []*Result
}

func (s *Summary) add(res *Result) {
	s.Results = append(s.Results, res)
	s.Total++
	if res.OK() {
		s.Passed++
	} else {
		s.Failed++
	}
}

// ProbeError is a failed probe request. Its message is the message of the
// underlying error so it can be printed verbatim.
type ProbeError struct {
	Kind   probetls.FailureKind
	Target string
	URL    string
	Cause  error
}

// NewProbeError classifies cause and wraps it.
func NewProbeError(target, rawURL string, cause error) *ProbeError {
	return &ProbeError{
		Kind:   probetls.ClassifyError(cause),
		Target: target,
		URL:    rawURL,
		Cause:  cause,
	}
}

// Error implements the error interface
func (e *ProbeError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return e.Cause.Error()
}

// Unwrap returns the underlying error for error unwrapping
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

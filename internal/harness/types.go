package harness

// TraceEvent is one delivery attempted on a network, whatever its fate.
type TraceEvent struct {
	Network   string `json:"network"`
	From      string `json:"from"`
	To        string `json:"to"`
	Action    string `json:"action"`
	Session   string `json:"session,omitempty"`
	Broadcast string `json:"broadcast,omitempty"`
	Sequence  int64  `json:"sequence,omitempty"`
	Fault     string `json:"fault"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Pass bool `json:"pass"`
	// SessionID is the session the open step created.
	SessionID string       `json:"session_id"`
	Trace     []TraceEvent `json:"trace"`
	Errors    []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

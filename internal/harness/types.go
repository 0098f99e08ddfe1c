package harness

// Trace event types.
const (
	EventCall    = "call"
	EventRequest = "request"
	EventNotify  = "notify"
	EventResult  = "result"
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Type    string `json:"type"`
	Method  string `json:"method,omitempty"`
	Params  []any  `json:"params,omitempty"`
	Request string `json:"request,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Seq     int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace holds calls, backend requests, notifications and responses in
	// the order they were observed.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// FinalState is the lifecycle state when the flow ended.
	FinalState string `json:"final_state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

package refresh

// State enumerates where the executor is in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StatePending
	StateSucceeded
	StateFailed
)

// Status is the three-valued projection exposed to callers.
type Status string

const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

// Outcome tracks the latest executor completion. Result holds the last known
// good refresh and survives later failures, so callers can tell "never
// succeeded" apart from "lost connectivity after a success". Outcomes are
// values; transitions return a new Outcome and are driven only by the
// executor's own lifecycle.
type Outcome struct {
	State  State
	Err    error
	Result *Result
}

// Begin marks an execution in flight, keeping any prior result.
func (o Outcome) Begin() Outcome {
	return Outcome{State: StatePending, Result: o.Result}
}

// Succeed records a completed refresh. The latest completion wins.
func (o Outcome) Succeed(r *Result) Outcome {
	return Outcome{State: StateSucceeded, Result: r}
}

// Fail records a failed refresh, preserving the last known good result.
func (o Outcome) Fail(err error) Outcome {
	return Outcome{State: StateFailed, Err: err, Result: o.Result}
}

// HadSuccess reports whether any execution has ever succeeded.
func (o Outcome) HadSuccess() bool {
	return o.Result != nil
}

// Status projects the outcome onto the caller-visible status. NotStarted and
// Pending both read as loading, whether it is the first run or a re-refresh
// in flight.
func (o Outcome) Status() Status {
	switch o.State {
	case StateSucceeded:
		return StatusSuccess
	case StateFailed:
		return StatusError
	default:
		return StatusLoading
	}
}

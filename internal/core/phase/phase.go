// Package phase tracks the observable lifecycle of asynchronous store
// operations. Every operation moves through pending -> fulfilled|rejected;
// Idle is the distinct "never dispatched" state so callers can tell
// "no error and no data yet" apart from an error.
package phase

// State is one phase of an asynchronous operation.
type State int

const (
	Idle State = iota
	Pending
	Fulfilled
	Rejected
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "idle"
	}
}

// Result is the three-state outcome of one operation. Err is set only
// when State is Rejected.
type Result struct {
	State State
	Err   string
}

// Tracker records per-operation results plus the store's most recent
// terminal error. It is not safe for concurrent use on its own; owning
// stores mutate it under their own lock so phase transitions are atomic
// with respect to the rest of the store state.
type Tracker struct {
	ops     map[string]Result
	lastErr string
}

// NewTracker creates an empty tracker; every operation starts Idle.
func NewTracker() *Tracker {
	return &Tracker{ops: make(map[string]Result)}
}

// Begin marks an operation pending and clears its previous error.
func (t *Tracker) Begin(op string) {
	t.ops[op] = Result{State: Pending}
}

// Fulfill marks an operation fulfilled and clears the store-level error.
func (t *Tracker) Fulfill(op string) {
	t.ops[op] = Result{State: Fulfilled}
	t.lastErr = ""
}

// Reject marks an operation rejected with a human-readable message and
// records it as the store-level error.
func (t *Tracker) Reject(op, msg string) {
	t.ops[op] = Result{State: Rejected, Err: msg}
	t.lastErr = msg
}

// Settle marks an operation fulfilled without touching the store-level
// error. Used for expected-failure outcomes that must stay silent.
func (t *Tracker) Settle(op string) {
	t.ops[op] = Result{State: Fulfilled}
}

// Op returns the current result for one operation.
func (t *Tracker) Op(op string) Result {
	return t.ops[op]
}

// Busy reports whether any operation is pending.
func (t *Tracker) Busy() bool {
	for _, r := range t.ops {
		if r.State == Pending {
			return true
		}
	}
	return false
}

// LastError returns the most recent terminal error message, empty when
// the latest settled operation succeeded.
func (t *Tracker) LastError() string {
	return t.lastErr
}

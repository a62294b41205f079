// internal/poller/types.go
package poller

import "time"

// Outcome classifies one source read within a tick.
type Outcome int

const (
	OutcomeOK        Outcome = iota
	OutcomeTransient         // timeout or IO, retried next tick
	OutcomeRejected          // remote exception response
	OutcomeFailed            // connect retries exhausted or client Failed
	OutcomeCancelled         // ctx done while connecting
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SourceResult is the result of reading one source.
type SourceResult struct {
	SourceID uint8
	Outcome  Outcome
	Samples  int // samples appended
	Err      error
}

// TickResult is a snapshot produced by one tick.
type TickResult struct {
	At      time.Time
	Skipped bool // polling disabled
	Sources []SourceResult
}

// Appended returns the number of samples appended by the tick.
func (r TickResult) Appended() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Samples
	}
	return n
}

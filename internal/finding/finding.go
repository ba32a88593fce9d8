// Package finding captures distinct target failures observed while fuzzing
// and applies the keep-going policy that decides when a run must stop.
package finding

import (
	"sync"
	"sync/atomic"
)

// Outcome is the result of one target invocation: success, or failure with a
// cause. Findings are signaled as values, not panics, across the
// target-invocation boundary.
type Outcome struct {
	cause error
}

// Success is the outcome of an invocation that completed normally.
func Success() Outcome { return Outcome{} }

// Failure is the outcome of an invocation that failed with cause.
func Failure(cause error) Outcome { return Outcome{cause: cause} }

// Failed reports whether the invocation failed.
func (o Outcome) Failed() bool { return o.cause != nil }

// Cause returns the failure cause, nil on success.
func (o Outcome) Cause() error { return o.cause }

// Finding is one captured failure: its cause, the 1-based order in which it
// was observed, and whether it terminated the run.
type Finding struct {
	Cause       error
	Ordinal     int
	Terminating bool
}

// Aggregator counts failures across the iterations of a run and marks the
// one that trips the keep-going threshold as terminating. Observe may be
// called from whatever threads the mutation engine uses per iteration; the
// count and the terminating slot are updated atomically so two failures
// cannot race past the threshold.
type Aggregator struct {
	threshold int64

	count       atomic.Int64
	terminating atomic.Pointer[Finding]

	mu       sync.Mutex
	findings []Finding
}

// NewAggregator returns an Aggregator with the given keep-going threshold:
// 0 records every failure but never stops the run, N>0 stops at the Nth.
func NewAggregator(keepGoing int) *Aggregator {
	return &Aggregator{threshold: int64(keepGoing)}
}

// Observe records one failure and reports whether the run must stop. Exactly
// the call whose ordinal equals the threshold produces the terminating
// finding; later calls still report stop=true but never displace it.
func (a *Aggregator) Observe(cause error) (stop bool) {
	n := a.count.Add(1)
	f := Finding{Cause: cause, Ordinal: int(n)}
	if a.threshold > 0 && n == a.threshold {
		f.Terminating = true
		a.terminating.CompareAndSwap(nil, &f)
	}

	a.mu.Lock()
	a.findings = append(a.findings, f)
	a.mu.Unlock()

	return a.threshold != 0 && n >= a.threshold
}

// Terminating returns the finding that stopped the run, nil if the run was
// never stopped by a finding.
func (a *Aggregator) Terminating() *Finding {
	return a.terminating.Load()
}

// Count returns the number of failures observed so far.
func (a *Aggregator) Count() int {
	return int(a.count.Load())
}

// Findings returns a copy of every recorded finding in observation order.
func (a *Aggregator) Findings() []Finding {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Finding, len(a.findings))
	copy(out, a.findings)
	return out
}

package model

import "time"

// Failure is one symbol's final error after all retry rounds.
type Failure struct {
	Symbol string
	Reason string
}

// RunResult is the per-invocation summary. It drives the retry loop while
// the run is live and the human-facing report when it ends.
type RunResult struct {
	RunID     string
	Tier      UpdateTier
	StartedAt time.Time
	Duration  time.Duration

	Success int
	Created int
	Skipped int

	Errors []Failure

	// Aborted marks a run cut short by a fatal condition; the counts above
	// then reflect partial progress, not a completed pass.
	Aborted     bool
	AbortReason string
}

// RecordFailure appends a failure, replacing an earlier entry for the same
// symbol so the list carries only the last reason seen.
func (r *RunResult) RecordFailure(symbol, reason string) {
	for i := range r.Errors {
		if r.Errors[i].Symbol == symbol {
			r.Errors[i].Reason = reason
			return
		}
	}
	r.Errors = append(r.Errors, Failure{Symbol: symbol, Reason: reason})
}

// ClearFailure drops a symbol from the error list after a successful retry.
func (r *RunResult) ClearFailure(symbol string) {
	for i := range r.Errors {
		if r.Errors[i].Symbol == symbol {
			r.Errors = append(r.Errors[:i], r.Errors[i+1:]...)
			return
		}
	}
}

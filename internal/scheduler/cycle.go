package scheduler

import (
	"time"

	"terminal-core/internal/registry"
)

// Outcome classifies one account's result within a cycle.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeFailed  Outcome = "FAILED"
)

// PassResult is one account's outcome in one cycle.
type PassResult struct {
	Account  registry.AccountRef `json:"account"`
	Outcome  Outcome             `json:"outcome"`
	Reason   string              `json:"reason,omitempty"`
	Duration time.Duration       `json:"duration_ns"`
}

// CycleRecord describes one scheduler tick. Ephemeral: kept only in the
// in-memory history ring for the API, never persisted.
type CycleRecord struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	SessionIDs []string      `json:"session_ids"`
	WorkerIDs  []string      `json:"worker_ids"`
	Results    []PassResult  `json:"results"`
}

// Counts returns successes, skips and failures in the record.
func (c CycleRecord) Counts() (success, skipped, failed int) {
	for _, r := range c.Results {
		switch r.Outcome {
		case OutcomeSuccess:
			success++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return
}

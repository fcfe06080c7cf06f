package events

import "time"

// Topic enumerates high-level topics inside the orchestration core.
type Topic string

const (
	TopicCycleCompleted Topic = "cycle.completed"
	TopicPassFailed     Topic = "pass.failed"
	TopicPassSkipped    Topic = "pass.skipped"
	TopicOrderSubmitted Topic = "order.submitted"
	TopicWorkerStarted  Topic = "worker.started"
	TopicWorkerStopped  Topic = "worker.stopped"
)

// WorkerEvent accompanies worker.started / worker.stopped.
type WorkerEvent struct {
	AccountID string    `json:"account_id"`
	Forced    bool      `json:"forced,omitempty"` // stop timed out, connection force-closed
	At        time.Time `json:"at"`
}

// PassEvent accompanies pass.failed / pass.skipped.
type PassEvent struct {
	Namespace string    `json:"namespace"`
	AccountID string    `json:"account_id"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// OrderEvent accompanies order.submitted.
type OrderEvent struct {
	Namespace string    `json:"namespace"`
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Volume    float64   `json:"volume"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

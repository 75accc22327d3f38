package domain

import "time"

// RunStatus represents the lifecycle of one processing run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Run summarizes one batch processing cycle for audit and operations.
type Run struct {
	ID         string
	Trigger    string
	Status     RunStatus
	Fetched    int
	Processed  int
	Retried    int
	DeadLetter int
	Skipped    int
	StartedAt  time.Time
	FinishedAt *time.Time
}

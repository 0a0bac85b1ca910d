package core

import "time"

// Store defines the interface for the generation run ledger.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	RecordRun(run *Run) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	RunsWithParams(paramsDigest string) ([]*Run, error)
}

// RunStatus represents the outcome of a protocol generation.
type RunStatus string

// Run status constants.
const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded protocol generation.
type Run struct {
	ID       string
	Protocol string
	// ParamsDigest hashes the canonical parameter set; equal digests must yield equal plans.
	ParamsDigest string
	PlanDigest   string
	Instructions int
	Status       RunStatus
	Error        string
	CreatedAt    time.Time
}

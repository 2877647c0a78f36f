package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the execution archive.
//
// Driver values:
//   - "file": dependency-free file backend (append-only jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the archive is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ExecutionEntry records one handler execution (or skip/drop).
// Keep it compact and schema-stable.
type ExecutionEntry struct {
	At          time.Time
	Source      string // recurring job name or ad-hoc job type
	ExecutionID string
	JobID       string // empty for recurring firings
	Outcome     string // success | failure | skipped | dropped
	Attempts    int
	TookMS      int64
	Error       string
}

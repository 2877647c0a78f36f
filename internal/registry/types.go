package registry

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Handler is the work executed at each firing. It receives no payload;
// recurring jobs carry their own state.
type Handler func(ctx context.Context) error

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Kolkata"; empty means local
}

// JobInfo is the per-job view returned by List.
type JobInfo struct {
	Name string

	// Active reports whether the job is armed on a running trigger loop.
	// A registered job is deliberately inactive before Start and after
	// Stop: registration alone does not fire anything, and reporting it
	// as active would claim a next run that cannot happen.
	Active bool

	Next time.Time // best-effort; zero when not armed
}

type jobDef struct {
	name    string
	spec    string
	handler Handler
	entryID cron.EntryID
	state   *runState
}

// runState gates same-name overlap. A firing that cannot acquire it is
// skipped.
type runState struct {
	mu       sync.Mutex
	inflight bool
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *runState) release() {
	s.mu.Lock()
	s.inflight = false
	s.mu.Unlock()
}

// Snapshot is a lightweight diagnostics view.
type Snapshot struct {
	Started  bool
	Timezone string
	Jobs     []JobInfo
}

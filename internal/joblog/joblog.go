package joblog

import (
	"context"
	"sync"
	"time"

	"jobcore/internal/eventbus"
	"jobcore/internal/storage"
	logx "jobcore/pkg/logx"
)

// Outcome classifies one execution record.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDropped Outcome = "dropped"
)

// Execution is one record in the execution log.
//
// Source is the recurring job name or the ad-hoc job type; JobID is set
// only for ad-hoc jobs.
type Execution struct {
	Source      string
	ExecutionID string
	JobID       string
	Outcome     Outcome
	Started     time.Time
	Duration    time.Duration
	Attempts    int
	Error       string
}

type Config struct {
	// HistorySize caps the in-memory log; oldest entries are dropped.
	HistorySize int
}

// Service is the execution log sink shared by the recurring registry and
// the ad-hoc queue. It keeps a capped in-memory ring, writes a structured
// log line per record, publishes a lifecycle event, and optionally appends
// to the archive store.
type Service struct {
	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	mu      sync.Mutex
	history []Execution
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, bus: bus, store: store}
}

// LogExecution records one execution outcome. It never blocks on the
// archive and never returns an error to the caller: the core treats the
// sink as fire-and-forget.
func (s *Service) LogExecution(e Execution) {
	if e.Started.IsZero() {
		e.Started = time.Now()
	}

	fields := []logx.Field{
		logx.String("source", e.Source),
		logx.String("exec_id", e.ExecutionID),
		logx.Duration("dur", e.Duration),
	}
	if e.JobID != "" {
		fields = append(fields, logx.String("job_id", e.JobID))
	}
	if e.Attempts > 0 {
		fields = append(fields, logx.Int("attempts", e.Attempts))
	}

	switch e.Outcome {
	case OutcomeFailure:
		s.log.Warn("execution failed", append(fields, logx.String("err", e.Error))...)
	case OutcomeSkipped:
		s.log.Info("execution skipped", append(fields, logx.String("reason", e.Error))...)
	case OutcomeDropped:
		s.log.Warn("job dropped", append(fields, logx.String("reason", e.Error))...)
	default:
		if e.Duration >= 750*time.Millisecond {
			s.log.Info("execution completed", fields...)
		} else {
			s.log.Debug("execution completed", fields...)
		}
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventType(e.Outcome), Time: time.Now(), Data: e})
	}

	s.mu.Lock()
	s.history = append(s.history, e)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.mu.Unlock()

	if s.store != nil {
		// Short deadline so a wedged archive cannot stall the worker loop.
		actx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		err := s.store.AppendExecution(actx, storage.ExecutionEntry{
			At:          e.Started,
			Source:      e.Source,
			ExecutionID: e.ExecutionID,
			JobID:       e.JobID,
			Outcome:     string(e.Outcome),
			Attempts:    e.Attempts,
			TookMS:      e.Duration.Milliseconds(),
			Error:       e.Error,
		})
		cancel()
		if err != nil {
			s.log.Debug("execution archive append failed", logx.Any("err", err))
		}
	}
}

// Recent returns up to n most recent records, oldest first.
func (s *Service) Recent(n int) []Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]Execution, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

func eventType(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return eventbus.TypeJobCompleted
	case OutcomeFailure:
		return eventbus.TypeJobFailed
	case OutcomeSkipped:
		return eventbus.TypeJobSkipped
	case OutcomeDropped:
		return eventbus.TypeJobDropped
	default:
		return eventbus.TypeJobCompleted
	}
}

package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jobcore/internal/eventbus"
	"jobcore/internal/joblog"
	logx "jobcore/pkg/logx"
)

// run is the single worker loop. It exits when the queue drains or the
// service is parked; the next Enqueue (or Start) launches a fresh loop.
// "Pop and mark processing" happens atomically under s.mu so status reads
// never see a job in two places.
func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		s.mu.Lock()
		if s.parked || len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		j := s.pending[0]
		s.pending = s.pending[1:]
		j.Status = StatusProcessing
		j.StartedAt = time.Now()
		s.processing = j
		h := s.handlers[j.Type]
		s.mu.Unlock()

		s.execOne(ctx, j, h)
	}
}

func (s *Service) execOne(ctx context.Context, j *Job, h Handler) {
	execID := uuid.NewString()

	if h == nil {
		s.mu.Lock()
		j.Status = StatusFailed
		j.CompletedAt = time.Now()
		j.LastError = "unknown job type"
		delete(s.live, j.ID)
		s.processing = nil
		s.mu.Unlock()
		atomic.AddUint64(&s.droppedUnknown, 1)

		s.log.Warn("job dropped: unknown type", logx.String("type", j.Type), logx.String("id", j.ID))
		s.sink.LogExecution(joblog.Execution{
			Source:      j.Type,
			ExecutionID: execID,
			JobID:       j.ID,
			Outcome:     joblog.OutcomeDropped,
			Started:     j.StartedAt,
			Error:       "unknown job type",
		})
		return
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeJobStarted, Data: *j})
	}

	err := s.invoke(ctx, h, j.Payload)
	dur := time.Since(j.StartedAt)

	s.mu.Lock()
	if err == nil {
		j.Status = StatusCompleted
		j.CompletedAt = time.Now()
		attempts := j.Attempts + 1
		delete(s.live, j.ID)
		s.processing = nil
		s.mu.Unlock()
		atomic.AddUint64(&s.completed, 1)

		s.sink.LogExecution(joblog.Execution{
			Source:      j.Type,
			ExecutionID: execID,
			JobID:       j.ID,
			Outcome:     joblog.OutcomeSuccess,
			Started:     j.StartedAt,
			Duration:    dur,
			Attempts:    attempts,
		})
		return
	}

	j.Attempts++
	j.LastError = err.Error()

	if j.Attempts < j.MaxAttempts {
		// Retry: back to pending at the tail of its priority tier, so it
		// gets another turn before lower-priority newcomers but after
		// already-waiting peers.
		j.Status = StatusPending
		s.insertLocked(j)
		s.processing = nil
		s.mu.Unlock()
		atomic.AddUint64(&s.retries, 1)

		s.log.Debug("job retry scheduled",
			logx.String("type", j.Type), logx.String("id", j.ID),
			logx.Int("attempt", j.Attempts), logx.Int("max_attempts", j.MaxAttempts),
			logx.Any("err", err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeJobRetried, Data: *j})
		}
		return
	}

	// Retry budget exhausted: terminal failure.
	j.Status = StatusFailed
	j.CompletedAt = time.Now()
	attempts := j.Attempts
	delete(s.live, j.ID)
	s.processing = nil
	s.mu.Unlock()
	atomic.AddUint64(&s.failed, 1)

	s.sink.LogExecution(joblog.Execution{
		Source:      j.Type,
		ExecutionID: execID,
		JobID:       j.ID,
		Outcome:     joblog.OutcomeFailure,
		Started:     j.StartedAt,
		Duration:    dur,
		Attempts:    attempts,
		Error:       err.Error(),
	})
	if s.alerts != nil {
		s.alerts.NotifyFailure(j.Type, err)
	}
}

// invoke runs the handler with panic recovery so one bad job can't kill
// the worker loop.
func (s *Service) invoke(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return h(ctx, payload)
}

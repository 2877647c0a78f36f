package queue

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jobcore/internal/alert"
	"jobcore/internal/eventbus"
	"jobcore/internal/joblog"
	logx "jobcore/pkg/logx"
)

type Service struct {
	cfg    Config
	log    logx.Logger
	sink   *joblog.Service
	alerts *alert.Service
	bus    eventbus.Bus

	mu         sync.Mutex
	handlers   map[string]Handler
	pending    []*Job          // ordered: priority desc, FIFO within a tier
	live       map[string]*Job // pending + processing
	processing *Job
	running    bool
	parked     bool
	runDone    chan struct{}
	baseCtx    context.Context
	cancel     context.CancelFunc

	enqueued       uint64
	completed      uint64
	failed         uint64
	retries        uint64
	droppedUnknown uint64
}

// New builds the queue around a fixed handler table. The table maps a job
// type to its handler; jobs with an unrecognized type are dropped without
// retry (unknown type is not a transient failure).
func New(cfg Config, handlers map[string]Handler, log logx.Logger, sink *joblog.Service, alerts *alert.Service, bus eventbus.Bus) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = joblog.New(joblog.Config{}, logx.Nop(), nil, nil)
	}
	h := make(map[string]Handler, len(handlers))
	for k, v := range handlers {
		h[k] = v
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		log:      log,
		sink:     sink,
		alerts:   alerts,
		bus:      bus,
		handlers: h,
		live:     map[string]*Job{},
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Start binds the worker loop to ctx and resumes processing if jobs were
// enqueued while the service was parked. The service also accepts work
// before Start; Start is mainly the restart half of Stop.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parked = false
	if s.cancel != nil {
		s.cancel()
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	if len(s.pending) > 0 && !s.running {
		s.startWorkerLocked()
	}
}

// Stop parks the worker loop and cancels the context handed to handlers.
// Pending jobs stay pending; there is no cross-restart persistence. Stop
// waits for the in-flight handler until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.parked = true
	cancel := s.cancel
	done := s.runDone
	running := s.running
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if running && done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			s.log.Warn("queue stop timed out waiting for worker", logx.Any("err", ctx.Err()))
		}
	}
	s.log.Info("queue stopped")
}

// Enqueue accepts a job and returns its ID immediately. It never blocks
// on execution and never fails; results are observable only through the
// log sink and status counts.
func (s *Service) Enqueue(jobType string, payload any, priority int) string {
	return s.EnqueueOpt(jobType, payload, priority, Options{})
}

// EnqueueOpt is Enqueue with per-job options.
func (s *Service) EnqueueOpt(jobType string, payload any, priority int, opt Options) string {
	maxAttempts := opt.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAttempts
	}
	j := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.insertLocked(j)
	s.live[j.ID] = j
	atomic.AddUint64(&s.enqueued, 1)
	if !s.parked && !s.running {
		s.startWorkerLocked()
	}
	s.mu.Unlock()

	s.log.Debug("job enqueued", logx.String("type", jobType), logx.String("id", j.ID), logx.Int("priority", priority))
	return j.ID
}

// insertLocked places j after every pending job of equal or higher
// priority. First enqueues land in FIFO order within their tier; retries
// re-enter at the tail of their tier the same way. Call with s.mu held.
func (s *Service) insertLocked(j *Job) {
	i := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].Priority < j.Priority
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = j
}

// startWorkerLocked launches the single worker loop. Call with s.mu held.
func (s *Service) startWorkerLocked() {
	s.running = true
	s.runDone = make(chan struct{})
	go s.run(s.baseCtx, s.runDone)
}

// Status reports counts over the live job set. Every tracked job is in
// exactly one bucket, so Pending + Processing always equals the number
// of jobs not yet terminal.
func (s *Service) Status() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st QueueStatus
	for _, j := range s.live {
		if j.Status == StatusProcessing {
			st.Processing++
		} else {
			st.Pending++
		}
	}
	return st
}

func (s *Service) Snapshot() Snapshot {
	st := s.Status()
	return Snapshot{
		Pending:        st.Pending,
		Processing:     st.Processing,
		Enqueued:       atomic.LoadUint64(&s.enqueued),
		Completed:      atomic.LoadUint64(&s.completed),
		Failed:         atomic.LoadUint64(&s.failed),
		Retries:        atomic.LoadUint64(&s.retries),
		DroppedUnknown: atomic.LoadUint64(&s.droppedUnknown),
	}
}

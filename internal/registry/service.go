package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"jobcore/internal/alert"
	"jobcore/internal/joblog"
	logx "jobcore/pkg/logx"
)

type Service struct {
	log    logx.Logger
	cfg    Config
	sink   *joblog.Service
	alerts *alert.Service

	mu      sync.Mutex
	parser  cron.Parser
	c       *cron.Cron
	defs    map[string]*jobDef
	loc     *time.Location
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, log logx.Logger, sink *joblog.Service, alerts *alert.Service) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = joblog.New(joblog.Config{}, logx.Nop(), nil, nil)
	}
	return &Service{
		log:    log,
		cfg:    cfg,
		sink:   sink,
		alerts: alerts,
		// Standard 5-field crontab expressions plus @descriptors.
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:    map[string]*jobDef{},
		baseCtx: context.Background(),
	}
}

// Register validates schedule and installs a periodic trigger for name.
// Registering an existing name is an idempotent no-op: the original
// schedule and handler stay in place (deliberate policy, not an
// overwrite). Registrations made before Start are armed at Start.
func (s *Service) Register(name, schedule string, handler Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("job name required")
	}
	if handler == nil {
		return fmt.Errorf("job %q: handler required", name)
	}
	if _, err := s.parser.Parse(schedule); err != nil {
		return fmt.Errorf("job %q: %w: %q: %v", name, ErrInvalidSchedule, schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[name]; exists {
		s.log.Info("recurring job already registered; keeping existing definition", logx.String("name", name))
		return nil
	}

	d := &jobDef{name: name, spec: schedule, handler: handler, state: &runState{}}
	s.defs[name] = d
	if s.c != nil {
		s.armLocked(d)
	}
	s.log.Debug("recurring job registered", logx.String("name", name), logx.String("spec", schedule))
	return nil
}

// Unregister stops the trigger for name and forgets the definition.
// It does not cancel an execution already in flight. No-op on unknown
// names.
func (s *Service) Unregister(name string) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok {
		return
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	s.log.Debug("recurring job unregistered", logx.String("name", name))
}

// List returns every registered job, sorted by name.
func (s *Service) List() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := JobInfo{Name: d.name, Active: s.c != nil && d.entryID != 0}
		if info.Active {
			info.Next = s.c.Entry(d.entryID).Next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start arms all registered definitions and starts the trigger loop.
// Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		s.armLocked(d)
	}
	s.c.Start()
	s.log.Info("registry started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.defs)))
}

// Stop cancels all periodic triggers. Definitions are kept so a later
// Start re-arms them; in-flight handlers are not interrupted beyond
// context cancellation.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.cancel
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("registry stopped")
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	started := s.c != nil
	tz := ""
	if s.loc != nil {
		tz = s.loc.String()
	}
	s.mu.Unlock()
	return Snapshot{Started: started, Timezone: tz, Jobs: s.List()}
}

// armLocked installs the cron entry for d. Call with s.mu held; the spec
// was validated at Register so AddFunc cannot reasonably fail.
func (s *Service) armLocked(d *jobDef) {
	eid, err := s.c.AddFunc(d.spec, func() { s.fire(d) })
	if err != nil {
		s.log.Error("trigger install failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Any("err", err))
		return
	}
	d.entryID = eid
}

// fire runs one firing of d. Each firing arrives on its own goroutine
// (cron's dispatch), so different jobs overlap freely; the run state
// serializes firings of the same job.
func (s *Service) fire(d *jobDef) {
	if !d.state.tryAcquire() {
		s.log.Info("firing skipped: previous run still active", logx.String("name", d.name))
		s.sink.LogExecution(joblog.Execution{
			Source:      d.name,
			ExecutionID: uuid.NewString(),
			Outcome:     joblog.OutcomeSkipped,
			Error:       "previous run still active",
		})
		return
	}
	defer d.state.release()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	execID := uuid.NewString()
	start := time.Now()
	err := s.invoke(ctx, d)
	dur := time.Since(start)

	e := joblog.Execution{
		Source:      d.name,
		ExecutionID: execID,
		Started:     start,
		Duration:    dur,
	}
	if err != nil {
		e.Outcome = joblog.OutcomeFailure
		e.Error = err.Error()
		s.sink.LogExecution(e)
		if s.alerts != nil {
			s.alerts.NotifyFailure(d.name, err)
		}
		return
	}
	e.Outcome = joblog.OutcomeSuccess
	s.sink.LogExecution(e)
}

// invoke runs the handler with panic recovery so a bad handler can never
// take down the trigger loop; the job stays scheduled for its next
// instant regardless of outcome.
func (s *Service) invoke(ctx context.Context, d *jobDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("recurring job panic", logx.String("name", d.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return d.handler(ctx)
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}

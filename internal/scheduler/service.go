package scheduler

import (
	"context"

	"jobcore/internal/alert"
	"jobcore/internal/eventbus"
	"jobcore/internal/joblog"
	"jobcore/internal/queue"
	"jobcore/internal/registry"
	"jobcore/internal/storage"
	logx "jobcore/pkg/logx"
)

type Config struct {
	Registry registry.Config
	Queue    queue.Config
	Log      joblog.Config
	Alerts   alert.Config
}

// Service owns the job core. Construct one explicitly and inject it where
// needed; there is no package-level instance.
type Service struct {
	log logx.Logger

	sink     *joblog.Service
	alerts   *alert.Service
	registry *registry.Service
	queue    *queue.Service
}

// New wires the core. handlers is the fixed ad-hoc dispatch table
// (type -> handler); store is the optional execution archive (nil to
// disable); notifiers receive terminal-failure alerts (a log-backed
// notifier is always present).
func New(cfg Config, handlers map[string]queue.Handler, log logx.Logger, bus eventbus.Bus, store storage.Store, notifiers ...alert.Notifier) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}

	ns := append([]alert.Notifier{alert.LogNotifier{Log: log}}, notifiers...)
	alerts := alert.New(cfg.Alerts, log.With(logx.String("comp", "alert")), ns...)
	sink := joblog.New(cfg.Log, log.With(logx.String("comp", "joblog")), bus, store)

	return &Service{
		log:      log,
		sink:     sink,
		alerts:   alerts,
		registry: registry.New(cfg.Registry, log.With(logx.String("comp", "registry")), sink, alerts),
		queue:    queue.New(cfg.Queue, handlers, log.With(logx.String("comp", "queue")), sink, alerts, bus),
	}
}

// Start arms recurring triggers and resumes the worker loop.
func (s *Service) Start(ctx context.Context) {
	s.registry.Start(ctx)
	s.queue.Start(ctx)
	s.log.Info("scheduler started")
}

// Stop cancels all periodic triggers and parks the worker loop so the
// process can shut down cleanly. In-flight handlers get context
// cancellation but are otherwise not interrupted.
func (s *Service) Stop(ctx context.Context) {
	s.registry.Stop(ctx)
	s.queue.Stop(ctx)
	s.log.Info("scheduler stopped")
}

// RegisterJob installs a named recurring job. Fails fast on a malformed
// cron schedule (errors.Is(err, registry.ErrInvalidSchedule)); duplicate
// names are an idempotent no-op.
func (s *Service) RegisterJob(name, schedule string, handler registry.Handler) error {
	return s.registry.Register(name, schedule, handler)
}

// UnregisterJob stops future firings of name. No-op on unknown names;
// an execution already in flight is not cancelled.
func (s *Service) UnregisterJob(name string) {
	s.registry.Unregister(name)
}

// ListJobs returns every registered recurring job.
func (s *Service) ListJobs() []registry.JobInfo {
	return s.registry.List()
}

// Enqueue submits an ad-hoc job and returns its ID immediately.
// Fire-and-forget: terminal outcomes surface only through the execution
// log and GetQueueStatus.
func (s *Service) Enqueue(jobType string, payload any, priority int) string {
	return s.queue.Enqueue(jobType, payload, priority)
}

// EnqueueOpt is Enqueue with per-job options (e.g. a retry budget
// override).
func (s *Service) EnqueueOpt(jobType string, payload any, priority int, opt queue.Options) string {
	return s.queue.EnqueueOpt(jobType, payload, priority, opt)
}

// GetQueueStatus reports live pending/processing counts.
func (s *Service) GetQueueStatus() queue.QueueStatus {
	return s.queue.Status()
}

// RecentExecutions returns up to n recent execution records, oldest
// first.
func (s *Service) RecentExecutions(n int) []joblog.Execution {
	return s.sink.Recent(n)
}

// RecentAlerts returns up to n recent failure alerts, oldest first.
func (s *Service) RecentAlerts(n int) []alert.Alert {
	return s.alerts.Recent(n)
}

// Apply re-applies runtime-tunable settings (alert throttling). Execution
// semantics are fixed at construction.
func (s *Service) Apply(cfg Config) {
	s.alerts.Apply(cfg.Alerts)
}

// Snapshot aggregates diagnostics from both halves of the core.
type Snapshot struct {
	Registry registry.Snapshot
	Queue    queue.Snapshot
}

func (s *Service) SnapshotAll() Snapshot {
	return Snapshot{
		Registry: s.registry.Snapshot(),
		Queue:    s.queue.Snapshot(),
	}
}

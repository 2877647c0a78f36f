package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	logx "jobcore/pkg/logx"

	"golang.org/x/time/rate"
)

// Alert describes a terminal job failure worth surfacing to operators.
type Alert struct {
	Source string // recurring job name or ad-hoc job type
	Error  string
	At     time.Time
}

// Notifier delivers an alert to some channel (chat, pager, email relay).
// Implementations are supplied by the surrounding application.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

type Config struct {
	// RatePerSec bounds alert delivery so a failure storm cannot flood
	// downstream channels. Alerts over the budget are dropped (the log
	// sink still has the full record).
	RatePerSec  int
	HistorySize int
}

// Service fans alerts out to the registered notifiers.
type Service struct {
	log logx.Logger

	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	notifiers []Notifier
	history   []Alert

	throttled uint64
}

func New(cfg Config, log logx.Logger, notifiers ...Notifier) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:       log,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		notifiers: notifiers,
	}
}

// Apply updates throttle settings at runtime.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// NotifyFailure raises an alert for a terminal failure. Fire-and-forget:
// delivery errors are logged, never returned to the job core.
func (s *Service) NotifyFailure(source string, err error) {
	a := Alert{Source: source, At: time.Now()}
	if err != nil {
		a.Error = err.Error()
	}

	s.mu.Lock()
	lim := s.limiter
	ns := s.notifiers
	s.history = append(s.history, a)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.mu.Unlock()

	if !lim.Allow() {
		atomic.AddUint64(&s.throttled, 1)
		s.log.Debug("alert throttled", logx.String("source", source), logx.Uint64("throttled", atomic.LoadUint64(&s.throttled)))
		return
	}

	for _, n := range ns {
		n := n
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.Notify(ctx, a); err != nil {
				s.log.Warn("alert delivery failed", logx.String("source", a.Source), logx.Any("err", err))
			}
		}()
	}
}

// Recent returns up to n most recent alerts, oldest first.
func (s *Service) Recent(n int) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]Alert, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// LogNotifier is the default notifier: it writes alerts to the structured
// log at error level so they stand out from regular execution records.
type LogNotifier struct {
	Log logx.Logger
}

func (l LogNotifier) Notify(_ context.Context, a Alert) error {
	l.Log.Error("job failure alert", logx.String("source", a.Source), logx.String("err", a.Error), logx.Time("at", a.At))
	return nil
}

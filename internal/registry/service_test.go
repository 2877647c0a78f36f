package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"jobcore/internal/joblog"
	logx "jobcore/pkg/logx"
)

func newTestRegistry(t *testing.T) (*Service, *joblog.Service) {
	t.Helper()
	sink := joblog.New(joblog.Config{}, logx.Nop(), nil, nil)
	return New(Config{}, logx.Nop(), sink, nil), sink
}

func TestRegisterInvalidSchedule(t *testing.T) {
	t.Parallel()

	s, _ := newTestRegistry(t)
	err := s.Register("bad", "not a cron line", func(context.Context) error { return nil })
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
	if got := len(s.List()); got != 0 {
		t.Fatalf("invalid registration left %d entries", got)
	}
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	t.Parallel()

	s, _ := newTestRegistry(t)
	if err := s.Register("  ", "* * * * *", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestRegistry(t)
	var first, second int32
	if err := s.Register("sync", "0 * * * *", func(context.Context) error {
		atomic.AddInt32(&first, 1)
		return nil
	}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := s.Register("sync", "*/5 * * * *", func(context.Context) error {
		atomic.AddInt32(&second, 1)
		return nil
	}); err != nil {
		t.Fatalf("duplicate register: %v", err)
	}

	jobs := s.List()
	if len(jobs) != 1 {
		t.Fatalf("List returned %d jobs, want 1", len(jobs))
	}

	s.mu.Lock()
	d := s.defs["sync"]
	s.mu.Unlock()
	if d.spec != "0 * * * *" {
		t.Fatalf("duplicate register replaced schedule: %q", d.spec)
	}
	s.fire(d)
	if atomic.LoadInt32(&first) != 1 || atomic.LoadInt32(&second) != 0 {
		t.Fatal("duplicate register replaced the original handler")
	}
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	t.Parallel()

	s, _ := newTestRegistry(t)
	s.Unregister("never-registered")
}

func TestUnregisterRemovesJob(t *testing.T) {
	t.Parallel()

	s, _ := newTestRegistry(t)
	if err := s.Register("cleanup", "30 2 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Unregister("cleanup")
	if got := len(s.List()); got != 0 {
		t.Fatalf("List returned %d jobs after unregister, want 0", got)
	}
}

func TestSameNameOverlapIsSkipped(t *testing.T) {
	t.Parallel()

	s, sink := newTestRegistry(t)
	started := make(chan struct{})
	release := make(chan struct{})
	if err := s.Register("reindex", "* * * * *", func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	s.mu.Lock()
	d := s.defs["reindex"]
	s.mu.Unlock()

	firstDone := make(chan struct{})
	go func() {
		s.fire(d)
		close(firstDone)
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first firing never started")
	}

	// Second firing while the first is still running: skipped, not queued.
	s.fire(d)
	recent := sink.Recent(1)
	if len(recent) != 1 || recent[0].Outcome != joblog.OutcomeSkipped {
		t.Fatalf("expected a skipped record, got %+v", recent)
	}

	close(release)
	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("first firing never finished")
	}
	recent = sink.Recent(2)
	if len(recent) != 2 || recent[1].Outcome != joblog.OutcomeSuccess {
		t.Fatalf("expected skip then success, got %+v", recent)
	}
}

func TestUnregisterDoesNotCancelInflightRun(t *testing.T) {
	t.Parallel()

	s, sink := newTestRegistry(t)
	started := make(chan struct{})
	release := make(chan struct{})
	if err := s.Register("export", "* * * * *", func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	s.mu.Lock()
	d := s.defs["export"]
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.fire(d)
		close(done)
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("firing never started")
	}

	// Unregister mid-run only prevents future firings.
	s.Unregister("export")
	if got := len(s.List()); got != 0 {
		t.Fatalf("List returned %d jobs after unregister, want 0", got)
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight run never completed")
	}
	recent := sink.Recent(1)
	if len(recent) != 1 || recent[0].Outcome != joblog.OutcomeSuccess {
		t.Fatalf("expected the in-flight run to finish with success, got %+v", recent)
	}
}

func TestFireRecordsFailureAndRecoversPanic(t *testing.T) {
	t.Parallel()

	s, sink := newTestRegistry(t)
	if err := s.Register("boom", "* * * * *", func(context.Context) error {
		panic("recurring handler exploded")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	s.mu.Lock()
	d := s.defs["boom"]
	s.mu.Unlock()
	s.fire(d)

	recent := sink.Recent(1)
	if len(recent) != 1 || recent[0].Outcome != joblog.OutcomeFailure {
		t.Fatalf("expected a failure record, got %+v", recent)
	}
	if recent[0].Error == "" {
		t.Fatal("failure record is missing the panic message")
	}
}

func TestListReflectsLifecycle(t *testing.T) {
	t.Parallel()

	s, _ := newTestRegistry(t)
	if err := s.Register("digest", "0 8 * * 1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}

	jobs := s.List()
	if len(jobs) != 1 || jobs[0].Active || !jobs[0].Next.IsZero() {
		t.Fatalf("before Start: %+v, want inactive with zero Next", jobs)
	}

	s.Start(context.Background())
	jobs = s.List()
	if len(jobs) != 1 || !jobs[0].Active || jobs[0].Next.IsZero() {
		t.Fatalf("after Start: %+v, want active with Next set", jobs)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	jobs = s.List()
	if len(jobs) != 1 || jobs[0].Active {
		t.Fatalf("after Stop: %+v, want inactive", jobs)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestRegistry(t)
	s.Start(context.Background())
	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}

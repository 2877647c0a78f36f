package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"jobcore/internal/joblog"
	"jobcore/internal/queue"
	"jobcore/internal/registry"
	logx "jobcore/pkg/logx"
)

func waitQueueIdle(t *testing.T, s *Service) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st := s.GetQueueStatus()
		if st.Pending == 0 && st.Processing == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("queue did not drain: %+v", s.GetQueueStatus())
}

func TestEndToEndAdhocFlow(t *testing.T) {
	t.Parallel()

	var emails int32
	handlers := map[string]queue.Handler{
		"email": func(_ context.Context, payload any) error {
			atomic.AddInt32(&emails, 1)
			return nil
		},
		"broken": func(context.Context, any) error {
			return errors.New("always fails")
		},
	}
	s := New(Config{}, handlers, logx.Nop(), nil, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	id := s.Enqueue("email", map[string]string{"to": "lead@x.com"}, 0)
	if id == "" {
		t.Fatal("Enqueue returned an empty job ID")
	}
	s.Enqueue("broken", nil, 5)
	waitQueueIdle(t, s)

	if got := atomic.LoadInt32(&emails); got != 1 {
		t.Fatalf("email handler ran %d times, want 1", got)
	}

	// One success record plus one terminal failure record (at the retry
	// budget); retries themselves do not produce sink records.
	execs := s.RecentExecutions(0)
	var success, failure int
	for _, e := range execs {
		switch e.Outcome {
		case joblog.OutcomeSuccess:
			success++
		case joblog.OutcomeFailure:
			failure++
		}
	}
	if success != 1 || failure != 1 {
		t.Fatalf("executions = %+v, want one success and one failure", execs)
	}

	alerts := s.RecentAlerts(0)
	if len(alerts) != 1 || alerts[0].Source != "broken" {
		t.Fatalf("alerts = %+v, want one for the broken job", alerts)
	}
}

func TestRecurringRegistrationThroughFacade(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop(), nil, nil)

	if err := s.RegisterJob("nightly", "garbage", func(context.Context) error { return nil }); !errors.Is(err, registry.ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
	if err := s.RegisterJob("nightly", "30 2 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if jobs := s.ListJobs(); len(jobs) != 1 || jobs[0].Name != "nightly" {
		t.Fatalf("jobs = %+v", jobs)
	}
	s.UnregisterJob("nightly")
	if jobs := s.ListJobs(); len(jobs) != 0 {
		t.Fatalf("jobs after unregister = %+v", jobs)
	}
}

func TestSnapshotAll(t *testing.T) {
	t.Parallel()

	handlers := map[string]queue.Handler{
		"ok": func(context.Context, any) error { return nil },
	}
	s := New(Config{Registry: registry.Config{Timezone: "UTC"}}, handlers, logx.Nop(), nil, nil)
	if err := s.RegisterJob("digest", "0 8 * * 1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.Enqueue("ok", nil, 0)
	waitQueueIdle(t, s)

	snap := s.SnapshotAll()
	if !snap.Registry.Started || snap.Registry.Timezone != "UTC" {
		t.Fatalf("registry snapshot = %+v", snap.Registry)
	}
	if snap.Queue.Completed != 1 || snap.Queue.Enqueued != 1 {
		t.Fatalf("queue snapshot = %+v", snap.Queue)
	}
}

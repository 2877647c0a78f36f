package main

import (
	"context"

	"jobcore/internal/queue"
	"jobcore/internal/scheduler"
	logx "jobcore/pkg/logx"
)

// handlerTable is the fixed ad-hoc dispatch table. The real platform
// plugs in its search-index, mail, report, image and sync integrations
// here; the daemon ships logging stand-ins so the wiring is runnable
// end to end.
func handlerTable(log logx.Logger) map[string]queue.Handler {
	stub := func(name string) queue.Handler {
		return func(ctx context.Context, payload any) error {
			log.Info("handler invoked", logx.String("handler", name), logx.Any("payload", payload))
			return nil
		}
	}
	return map[string]queue.Handler{
		"reindex": stub("reindex"),
		"email":   stub("email"),
		"report":  stub("report"),
		"image":   stub("image"),
		"sync":    stub("sync"),
	}
}

// registerRecurring installs the platform's standing maintenance jobs.
func registerRecurring(svc *scheduler.Service, log logx.Logger) error {
	jobs := []struct {
		name string
		spec string
	}{
		{"listing-reindex", "0 * * * *"},  // hourly full reindex
		{"lead-cleanup", "30 2 * * *"},    // nightly stale-lead sweep
		{"digest-email", "0 8 * * 1"},     // weekly digest, Monday morning
	}
	for _, j := range jobs {
		name := j.name
		err := svc.RegisterJob(name, j.spec, func(ctx context.Context) error {
			log.Info("recurring handler invoked", logx.String("name", name))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

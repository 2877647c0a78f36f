package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobcore/internal/config"
	"jobcore/internal/eventbus"
	"jobcore/internal/scheduler"
	"jobcore/internal/storage"
	logx "jobcore/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		mgr.Commit(cfg)
	} else if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}
	if store != nil {
		defer store.Close()
	}

	bus := eventbus.New()
	svc := scheduler.New(schedulerConfig(cfg), handlerTable(log), log, bus, store)

	// Hot-reload: logging and alert throttling re-apply live; execution
	// semantics are fixed at start.
	go func() { _ = mgr.Watch(ctx) }()
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	go func() {
		for next := range sub {
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
			})
			svc.Apply(schedulerConfig(next))
			log.Info("config reloaded")
		}
	}()

	if err := registerRecurring(svc, log); err != nil {
		return err
	}

	svc.Start(ctx)
	log.Info("jobd running", logx.String("config", cfgPath))

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)
	return nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Registry: registryConfig(cfg),
		Queue:    queueConfig(cfg),
		Log:      logConfig(cfg),
		Alerts:   alertsConfig(cfg),
	}
}

package main

import (
	"jobcore/internal/alert"
	"jobcore/internal/config"
	"jobcore/internal/joblog"
	"jobcore/internal/queue"
	"jobcore/internal/registry"
)

func registryConfig(cfg *config.Config) registry.Config {
	return registry.Config{Timezone: cfg.Registry.Timezone}
}

func queueConfig(cfg *config.Config) queue.Config {
	return queue.Config{MaxAttempts: cfg.Queue.MaxAttempts}
}

func logConfig(cfg *config.Config) joblog.Config {
	return joblog.Config{HistorySize: cfg.Log.HistorySize}
}

func alertsConfig(cfg *config.Config) alert.Config {
	return alert.Config{RatePerSec: cfg.Alerts.RatePerSec, HistorySize: cfg.Alerts.HistorySize}
}

// Package registry maps cron schedules to named handler invocations.
//
// Firings of different jobs run concurrently (each firing gets its own
// goroutine); firings of the same job never overlap — a trigger that
// arrives while the previous run is still active is skipped and logged,
// never queued. This guards against duplicate expensive work such as two
// concurrent full-reindex runs.
package registry

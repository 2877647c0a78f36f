// Package queue implements the ad-hoc job queue: one-off, prioritized,
// retryable units of work dispatched by a single worker loop.
//
// The loop awaits exactly one handler at a time. That is a deliberate
// throughput/safety trade-off (downstream systems like the search index
// and the mail provider do not tolerate unbounded concurrent load), and
// it means a hung handler blocks the whole loop. The core imposes no
// handler timeout.
package queue

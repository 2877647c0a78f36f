package storage

// Package storage provides an optional write-only archive for job
// execution records.
//
// The archive is observability output, not job state: the queue and the
// recurring registry stay purely in-memory, and nothing is ever read back
// to resume work after a restart.

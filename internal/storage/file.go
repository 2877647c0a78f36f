package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "jobcore/pkg/logx"
)

// fileStore is a dependency-free archive backend.
//
// It writes one JSON object per line to <prefix>.executions.jsonl.
// Appends are best-effort; a failed write is logged and does not bubble
// back into the job core.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
}

type executionRecord struct {
	At          string `json:"at"`
	Source      string `json:"source"`
	ExecutionID string `json:"execution_id"`
	JobID       string `json:"job_id,omitempty"`
	Outcome     string `json:"outcome"`
	Attempts    int    `json:"attempts,omitempty"`
	TookMS      int64  `json:"took_ms"`
	Error       string `json:"error,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(prefix+".executions.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, file: f}, nil
}

func (s *fileStore) AppendExecution(ctx context.Context, e ExecutionEntry) error {
	if s == nil || s.file == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	rec := executionRecord{
		At:          e.At.Format(time.RFC3339Nano),
		Source:      e.Source,
		ExecutionID: e.ExecutionID,
		JobID:       e.JobID,
		Outcome:     e.Outcome,
		Attempts:    e.Attempts,
		TookMS:      e.TookMS,
		Error:       e.Error,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(b)
	return err
}

func (s *fileStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

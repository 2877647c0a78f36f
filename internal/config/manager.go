package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	logx "jobcore/pkg/logx"
)

// Manager owns the daemon configuration: it loads the file, hands out the
// committed revision, and (via Watch) keeps it in sync with disk. A reload
// is transactional: parse, validate, then commit and fan out — a broken
// file never replaces a good config.
type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64 // fnv64a of the raw bytes behind the committed config

	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs a hook that can reject a reloaded config before it
// is committed. Load does not run it; the initial config is the caller's
// problem.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the file without committing it.
func (m *Manager) Parse() (*Config, error) {
	cfg, _, err := m.parseFile()
	return cfg, err
}

// Load parses the file and commits the result.
func (m *Manager) Load() (*Config, error) {
	cfg, hash, err := m.parseFile()
	if err != nil {
		return nil, err
	}
	m.commit(cfg, hash)
	return cfg, nil
}

// Commit installs cfg directly, bypassing the file. Used when the file is
// absent and the daemon falls back to defaults.
func (m *Manager) Commit(cfg *Config) { m.commit(cfg, 0) }

func (m *Manager) commit(cfg *Config, hash uint64) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hash
	m.mu.Unlock()
}

// Get returns the committed config (nil before the first Load/Commit).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) parseFile() (*Config, uint64, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, 0, err
	}
	cfg, err := decode(m.path, raw)
	if err != nil {
		return nil, 0, err
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return cfg, h.Sum64(), nil
}

// decode accepts JSON or YAML (by file extension). YAML is converted to
// JSON first so both formats pass through the same strict decoder and a
// typo'd key fails the same way in either.
func decode(path string, raw []byte) (*Config, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		b, err := json.Marshal(stringKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after config document")
	}
	return &cfg, nil
}

// stringKeys rewrites decoded YAML so every map key is a string, which is
// what encoding/json requires of the intermediate form.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	}
	return v
}

// Subscribe returns a channel that receives each config committed by
// Watch. Unsubscribe closes it.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// publish fans a committed config out without blocking. A subscriber that
// has not drained its buffer loses the older revision; only the newest
// one matters.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped", logx.Int("buffered", len(ch)))
		}
	}
}

// reload is one debounced pass of the watch loop.
func (m *Manager) reload(ctx context.Context) {
	cfg, hash, err := m.parseFile()
	if err != nil {
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Any("err", err))
		return
	}

	m.mu.RLock()
	unchanged := hash == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected", logx.String("path", m.path), logx.Any("err", err))
			return
		}
	}

	m.commit(cfg, hash)
	m.publish(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))
}

// Watch keeps the committed config in sync with the file until ctx is
// cancelled. Editor write bursts are debounced, byte-identical rewrites
// are skipped, and a broken watcher is rebuilt after a short pause.
func (m *Manager) Watch(ctx context.Context) error {
	const (
		debounceDelay = 250 * time.Millisecond
		rebuildDelay  = 2 * time.Second
	)

	// The timer is touched only by this goroutine; AfterFunc runs reload
	// on its own goroutine and reload locks internally.
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	kick := func() {
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(debounceDelay, func() { m.reload(ctx) })
	}

	for {
		err := m.watchOnce(ctx, kick)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher stopped; rebuilding", logx.String("path", m.path), logx.Any("err", err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rebuildDelay):
		}
	}
}

// watchOnce runs a single watcher until it breaks or ctx is cancelled.
// The parent directory is watched, not the file: editors and config
// management tools replace the file via rename, which would orphan a
// direct watch.
func (m *Manager) watchOnce(ctx context.Context, kick func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return err
	}
	m.log.Debug("config watcher started", logx.String("path", m.path))

	base := filepath.Base(m.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if filepath.Base(ev.Name) == base {
				kick()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return errors.New("error channel closed")
			}
			if werr != nil {
				m.log.Warn("config watch error", logx.Any("err", werr))
			}
		}
	}
}

// Package docstore reads and writes the JSON document collections the first
// version of the application kept on disk. Each collection is one file holding
// a top-level object of record lists, e.g. {"leases": [...]}.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"leasebook/internal/logger"
)

// Record is one stored object. Numbers decode as json.Number so amounts keep
// their exact text.
type Record = map[string]any

// Collection maps a list key ("leases", "messages") to its records.
type Collection map[string][]Record

// Collection names.
const (
	Leases       = "lease_data"
	Payments     = "payment_data"
	TenantAccess = "tenant_access"
	Threads      = "threads"
	Terminations = "termination_data"
)

// shapes lists the keys each collection always carries.
var shapes = map[string][]string{
	Leases:       {"leases"},
	Payments:     {"confirmations"},
	TenantAccess: {"tenant_tokens"},
	Threads:      {"threads", "messages"},
	Terminations: {"terminations"},
}

var ErrUnknownCollection = errors.New("unknown collection")

type Store struct {
	Dir string
	Log *logger.Logger
	Now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) lock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = map[string]*sync.Mutex{}
	}
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	return m
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

// Empty returns the default shape of a collection.
func Empty(name string) Collection {
	c := Collection{}
	for _, key := range shapes[name] {
		c[key] = []Record{}
	}
	return c
}

// Load reads a collection. A missing, empty or unreadable file yields the
// empty collection; unreadable files are logged and otherwise ignored.
// Records written by older versions are upgraded, and the upgrade is saved.
func (s *Store) Load(ctx context.Context, name string) (Collection, error) {
	if _, ok := shapes[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	m := s.lock(name)
	m.Lock()
	defer m.Unlock()
	return s.load(ctx, name)
}

// Save atomically replaces a collection on disk.
func (s *Store) Save(ctx context.Context, name string, c Collection) error {
	if _, ok := shapes[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	m := s.lock(name)
	m.Lock()
	defer m.Unlock()
	return s.save(ctx, name, c)
}

// Update runs fn on the loaded collection and saves the result. Concurrent
// updates of the same collection are serialized. Nothing is written when fn
// fails.
func (s *Store) Update(ctx context.Context, name string, fn func(Collection) error) error {
	if _, ok := shapes[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	m := s.lock(name)
	m.Lock()
	defer m.Unlock()

	c, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return s.save(ctx, name, c)
}

func (s *Store) load(ctx context.Context, name string) (Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return Empty(name), nil
	}
	if err != nil {
		s.Log.Warn(s.logCtx(ctx, name, err), "docstore.read_failed")
		return Empty(name), nil
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Empty(name), nil
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		s.Log.Warn(s.logCtx(ctx, name, err), "docstore.corrupt_file")
		return Empty(name), nil
	}

	upgraded := false
	if name == Leases {
		if _, ok := raw["leases"]; !ok {
			raw = map[string]any{"leases": []any{wrapSingleLease(raw, s.now())}}
			upgraded = true
		}
	}

	c := Empty(name)
	for key, v := range raw {
		list, ok := v.([]any)
		if !ok {
			c[key] = nil
			continue
		}
		records := make([]Record, 0, len(list))
		for _, item := range list {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		c[key] = records
	}
	for key := range c {
		if c[key] == nil {
			delete(c, key)
		}
	}
	for _, key := range shapes[name] {
		if _, ok := c[key]; !ok {
			c[key] = []Record{}
		}
	}

	if name == Leases {
		for _, rec := range c["leases"] {
			if UpgradeLease(rec) {
				upgraded = true
			}
		}
	}
	if upgraded {
		if err := s.save(ctx, name, c); err != nil {
			s.Log.Error(s.logCtx(ctx, name, nil), "docstore.upgrade_save_failed", err)
		} else {
			s.Log.Info(s.logCtx(ctx, name, nil), "docstore.upgraded")
		}
	}
	return c, nil
}

func (s *Store) save(ctx context.Context, name string, c Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.Dir, err)
	}

	tmp := filepath.Join(s.Dir, name+".tmp")
	if err := writeSynced(tmp, b); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func writeSynced(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) logCtx(ctx context.Context, name string, err error) context.Context {
	if s.Log == nil {
		return ctx
	}
	fields := map[string]any{"collection": name}
	if err != nil {
		fields["reason"] = err.Error()
	}
	return s.Log.WithFields(ctx, fields)
}

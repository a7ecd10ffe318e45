package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 2

type snapshotEntry struct {
	Key         string        `json:"key"`
	Value       []byte        `json:"value"`
	Compressed  bool          `json:"compressed"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl_ns"` // 0 means never expires
	AccessCount int64         `json:"access_count"`
	Priority    int           `json:"priority,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
}

type snapshot struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Entries []snapshotEntry `json:"entries"`
}

// SaveSnapshot writes the store contents to a JSON file so the dashboard
// starts with warm cache data. Failures are reported but never fatal.
func (s *Store) SaveSnapshot(path string) error {
	s.mu.Lock()
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now(),
		Entries: make([]snapshotEntry, 0, len(s.elements)),
	}
	// Walk from the LRU tail so reloading in order restores recency.
	for elem := s.lru.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*entry)
		se := snapshotEntry{
			Key:         e.key,
			Value:       e.value,
			Compressed:  e.compressed,
			CreatedAt:   e.createdAt,
			AccessCount: e.accessCount,
			Priority:    e.priority,
			Tags:        e.tags,
		}
		if !e.expiresAt.IsZero() {
			se.TTL = e.expiresAt.Sub(e.createdAt)
		}
		snap.Entries = append(snap.Entries, se)
	}
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cache snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache snapshot: %w", err)
	}

	slog.Debug("cache snapshot saved", "path", path, "entries", len(snap.Entries))
	return nil
}

// LoadSnapshot restores entries from a snapshot file. Entries that are past
// the staleness window are dropped. A missing or corrupt file leaves the
// store empty.
func (s *Store) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("cache snapshot corrupt, starting empty", "path", path, "error", err)
		return nil
	}
	if snap.Version != snapshotVersion {
		slog.Warn("cache snapshot version mismatch, starting empty",
			"path", path, "version", snap.Version, "expected", snapshotVersion)
		return nil
	}

	now := time.Now()
	loaded := 0

	s.mu.Lock()
	for _, se := range snap.Entries {
		expiresAt := time.Time{}
		if se.TTL > 0 {
			expiresAt = se.CreatedAt.Add(se.TTL)
		}

		expired := !expiresAt.IsZero() && now.After(expiresAt)
		if expired && now.Sub(se.CreatedAt) > s.opts.StaleAcceptable {
			continue
		}

		if elem, ok := s.elements[se.Key]; ok {
			s.removeLocked(elem)
		}

		e := &entry{
			key:         se.Key,
			value:       se.Value,
			compressed:  se.Compressed,
			createdAt:   se.CreatedAt,
			accessedAt:  se.CreatedAt,
			expiresAt:   expiresAt,
			accessCount: se.AccessCount,
			size:        int64(len(se.Value) + len(se.Key)),
			priority:    se.Priority,
			tags:        se.Tags,
		}
		s.makeRoomLocked(e.size)
		s.elements[se.Key] = s.lru.PushFront(e)
		s.totalBytes += e.size
		loaded++
	}
	s.mu.Unlock()

	slog.Info("cache snapshot loaded", "path", path, "entries", loaded, "saved_at", snap.SavedAt)
	return nil
}

// Persister periodically writes the store to its snapshot file.
type Persister struct {
	store    *Store
	path     string
	interval time.Duration
}

func NewPersister(store *Store, path string, interval time.Duration) *Persister {
	return &Persister{
		store:    store,
		path:     path,
		interval: interval,
	}
}

// Run flushes the store on every interval tick until ctx is canceled, then
// performs one final best-effort flush.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Flush()
		case <-ctx.Done():
			p.Flush()
			return
		}
	}
}

// Flush writes a snapshot now, logging failures instead of returning them.
func (p *Persister) Flush() {
	if err := p.store.SaveSnapshot(p.path); err != nil {
		slog.Warn("cache snapshot flush failed", "path", p.path, "error", err)
	}
}

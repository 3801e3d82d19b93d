package cache

import (
	"context"
	"sync"
	"time"

	"sensorwatch/internal/storage"
)

// DefaultWindow is the retention applied when none is configured.
const DefaultWindow = 360 * time.Second

// Store is the recent-reading window the pipeline writes to and averages from.
type Store interface {
	Put(ctx context.Context, rec storage.ReadingRecord, ttl time.Duration) error
	Recent(ctx context.Context, sensorName string) ([]storage.ReadingRecord, error)
}

type memEntry struct {
	rec       storage.ReadingRecord
	expiresAt time.Time
}

// Memory is an in-process window used when no Redis address is configured.
// Its contents do not survive a restart and are not shared between replicas.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string][]memEntry
	now     func() time.Time
}

// NewMemory returns an empty in-process window.
func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{window: window, entries: make(map[string][]memEntry), now: time.Now}
}

// Put stores rec until ttl elapses; a non-positive ttl uses the window.
func (m *Memory) Put(_ context.Context, rec storage.ReadingRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.window
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	live := m.prune(rec.SensorName, now)
	m.entries[rec.SensorName] = append(live, memEntry{rec: rec, expiresAt: now.Add(ttl)})
	return nil
}

// Recent returns the unexpired readings for sensorName, oldest first.
func (m *Memory) Recent(_ context.Context, sensorName string) ([]storage.ReadingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.prune(sensorName, m.now())
	out := make([]storage.ReadingRecord, 0, len(live))
	for _, e := range live {
		out = append(out, e.rec)
	}
	return out, nil
}

func (m *Memory) prune(sensorName string, now time.Time) []memEntry {
	entries := m.entries[sensorName]
	live := entries[:0]
	for _, e := range entries {
		if !now.After(e.expiresAt) {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		delete(m.entries, sensorName)
		return nil
	}
	m.entries[sensorName] = live
	return live
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)

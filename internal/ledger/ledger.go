package ledger

import (
	"sync"
)

// DefaultMaxPerSensor bounds how many averages are kept per sensor name.
const DefaultMaxPerSensor = 32

// Entry is one recorded rolling average.
type Entry struct {
	Seq        uint64
	SensorName string
	Average    float64
}

// Ledger is the process-wide, most-recent-first history of computed
// averages. It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	seq     uint64
	max     int
	entries map[string][]Entry
}

// New constructs a ledger retaining at most maxPerSensor entries per sensor.
func New(maxPerSensor int) *Ledger {
	if maxPerSensor <= 0 {
		maxPerSensor = DefaultMaxPerSensor
	}
	return &Ledger{
		max:     maxPerSensor,
		entries: make(map[string][]Entry),
	}
}

// Record pushes an average to the front of the sensor's history and returns
// the stored entry.
func (l *Ledger) Record(sensorName string, average float64) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry := Entry{Seq: l.seq, SensorName: sensorName, Average: average}

	history := l.entries[sensorName]
	if len(history) >= l.max {
		history = history[:l.max-1]
	}
	updated := make([]Entry, 0, len(history)+1)
	updated = append(updated, entry)
	updated = append(updated, history...)
	l.entries[sensorName] = updated

	return entry
}

// Previous returns the newest entry for sensorName recorded before seq.
// A seq of zero means "before anything still to come", i.e. the latest entry.
func (l *Ledger) Previous(sensorName string, seq uint64) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries[sensorName] {
		if seq == 0 || e.Seq < seq {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns a copy of the sensor's history, most recent first.
func (l *Ledger) Entries(sensorName string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.entries[sensorName]
	out := make([]Entry, len(history))
	copy(out, history)
	return out
}

// Len reports the total number of retained entries across all sensors.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, history := range l.entries {
		n += len(history)
	}
	return n
}

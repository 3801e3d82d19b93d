package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIsMostRecentFirst(t *testing.T) {
	l := New(0)
	a := l.Record("s1", 10)
	l.Record("s2", 99)
	b := l.Record("s1", 20)

	entries := l.Entries("s1")
	require.Len(t, entries, 2)
	assert.Equal(t, b, entries[0])
	assert.Equal(t, a, entries[1])
	assert.Greater(t, b.Seq, a.Seq)
	assert.Equal(t, 3, l.Len())
}

func TestPreviousSkipsOwnEntry(t *testing.T) {
	l := New(0)
	first := l.Record("s1", 10)
	second := l.Record("s1", 20)

	prev, ok := l.Previous("s1", second.Seq)
	require.True(t, ok)
	assert.Equal(t, first, prev)

	_, ok = l.Previous("s1", first.Seq)
	assert.False(t, ok, "nothing precedes the first entry")

	latest, ok := l.Previous("s1", 0)
	require.True(t, ok)
	assert.Equal(t, second, latest)

	_, ok = l.Previous("missing", 0)
	assert.False(t, ok)
}

func TestCapEvictsOldestPerSensor(t *testing.T) {
	l := New(3)
	for i := 0; i < 5; i++ {
		l.Record("s1", float64(i))
	}
	l.Record("s2", 100)

	entries := l.Entries("s1")
	require.Len(t, entries, 3)
	assert.Equal(t, []float64{4, 3, 2}, []float64{entries[0].Average, entries[1].Average, entries[2].Average})
	assert.Len(t, l.Entries("s2"), 1)
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := New(0)
	l.Record("s1", 1)

	entries := l.Entries("s1")
	entries[0].Average = 42

	assert.Equal(t, 1.0, l.Entries("s1")[0].Average)
}

func TestConcurrentRecordLosesNothing(t *testing.T) {
	l := New(1000)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("s%d", w%2)
			for i := 0; i < 50; i++ {
				e := l.Record(name, float64(i))
				_, _ = l.Previous(name, e.Seq)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 400, l.Len())
	seen := make(map[uint64]bool)
	for _, name := range []string{"s0", "s1"} {
		for _, e := range l.Entries(name) {
			assert.False(t, seen[e.Seq], "duplicate sequence %d", e.Seq)
			seen[e.Seq] = true
		}
	}
}

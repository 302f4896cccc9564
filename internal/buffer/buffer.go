// Package buffer holds the in-memory reading window the dashboard renders from.
//
// The buffer is single-writer: the sync controller (or an import) replaces the
// whole content at once, and readers always observe a complete snapshot. A
// snapshot is never mutated after it is published, so readers can hold on to
// it without copying or locking.
package buffer

import (
	"sync"

	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/window"
)

// Result summarizes one replacement.
type Result struct {
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// Snapshot is an immutable newest-first view of the buffer.
type Snapshot struct {
	readings []models.Reading
	version  uint64
}

// Len returns the number of readings.
func (s Snapshot) Len() int { return len(s.readings) }

// At returns the i-th newest reading.
func (s Snapshot) At(i int) models.Reading { return s.readings[i] }

// Newest returns the most recent reading.
func (s Snapshot) Newest() (models.Reading, bool) {
	if len(s.readings) == 0 {
		return models.Reading{}, false
	}
	return s.readings[0], true
}

// Version identifies the replacement that produced this snapshot.
func (s Snapshot) Version() uint64 { return s.version }

// Readings returns a newest-first copy of the snapshot.
func (s Snapshot) Readings() []models.Reading {
	out := make([]models.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Buffer stores the current snapshot.
type Buffer struct {
	mu       sync.RWMutex
	snap     Snapshot
	capacity int
}

// New creates an empty buffer. A positive capacity bounds Append; ReplaceAll
// always keeps the whole batch.
func New(capacity int) *Buffer {
	return &Buffer{
		snap:     Snapshot{readings: []models.Reading{}},
		capacity: capacity,
	}
}

// ReplaceAll validates raws and swaps them in as the new content.
// Malformed and duplicate records are dropped; an all-malformed batch
// empties the buffer.
func (b *Buffer) ReplaceAll(raws []models.RawReading) Result {
	readings, dropped := models.NormalizeBatch(raws)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.snap = Snapshot{readings: readings, version: b.snap.version + 1}
	return Result{Kept: len(readings), Dropped: dropped}
}

// Append merges raws into the current content. Readings whose timestamp is
// already buffered are dropped. When capacity is set, the oldest readings
// beyond it are evicted.
func (b *Buffer) Append(raws []models.RawReading) Result {
	incoming, dropped := models.NormalizeBatch(raws)

	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.snap.readings
	seen := make(map[int64]struct{}, len(current))
	for _, r := range current {
		seen[r.Timestamp.UnixNano()] = struct{}{}
	}

	fresh := make([]models.Reading, 0, len(incoming))
	for _, r := range incoming {
		if _, dup := seen[r.Timestamp.UnixNano()]; dup {
			dropped++
			continue
		}
		fresh = append(fresh, r)
	}

	merged := make([]models.Reading, 0, len(current)+len(fresh))
	i, j := 0, 0
	for i < len(current) || j < len(fresh) {
		switch {
		case j >= len(fresh):
			merged = append(merged, current[i])
			i++
		case i >= len(current) || fresh[j].Timestamp.After(current[i].Timestamp):
			merged = append(merged, fresh[j])
			j++
		default:
			merged = append(merged, current[i])
			i++
		}
	}
	if b.capacity > 0 && len(merged) > b.capacity {
		merged = merged[:b.capacity]
	}

	b.snap = Snapshot{readings: merged, version: b.snap.version + 1}
	return Result{Kept: len(fresh), Dropped: dropped}
}

// Latest returns the newest reading.
func (b *Buffer) Latest() (models.Reading, bool) {
	return b.Snapshot().Newest()
}

// Snapshot returns the current immutable snapshot.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// Window selects r ending at pos from the current snapshot.
func (b *Buffer) Window(r window.Range, pos window.Position) []models.Reading {
	return window.Select(b.Snapshot(), r, pos)
}

// Len returns the number of buffered readings.
func (b *Buffer) Len() int {
	return b.Snapshot().Len()
}

// Version returns the number of replacements so far.
func (b *Buffer) Version() uint64 {
	return b.Snapshot().Version()
}

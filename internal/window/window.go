// Package window selects the sub-sequence of readings shown by a chart or
// table. Storage is newest-first; charts want oldest-first, so Select does the
// reversal unless the range asks for newest-first output.
//
// A window is anchored at a cursor. In live mode the cursor is Latest; in
// playback it is a chronological position (0 is the oldest reading) that walks
// forward through a static dataset. The window is the trailing run of readings
// ending at the cursor, bounded by a sample count, a time span or both.
package window

import (
	"fmt"
	"time"

	"github.com/rewired-gh/comfortdash/internal/models"
)

// Sequence is a newest-first, index-addressable run of readings.
// At(0) is the newest reading.
type Sequence interface {
	Len() int
	At(i int) models.Reading
}

// Readings adapts a newest-first slice to Sequence.
type Readings []models.Reading

func (r Readings) Len() int                { return len(r) }
func (r Readings) At(i int) models.Reading { return r[i] }

// Position is a chronological cursor: 0 is the oldest reading.
// Any negative value means the newest reading.
type Position int

// Latest anchors the window at the newest reading.
const Latest Position = -1

// Range describes one selectable window.
type Range struct {
	Key         string        `json:"key"`
	Label       string        `json:"label"`
	Samples     int           `json:"samples,omitempty"` // 0 means no sample limit, negative selects nothing
	Span        time.Duration `json:"span,omitempty"`    // 0 means no time limit
	NewestFirst bool          `json:"newest_first"`
}

// Named ranges offered by the dashboard.
var (
	Range1h  = Range{Key: "1h", Label: "Last 1 hour", Samples: 20}
	Range6h  = Range{Key: "6h", Label: "Last 6 hours", Samples: 50}
	Range12h = Range{Key: "12h", Label: "Last 12 hours", Samples: 100}
	RangeLog = Range{Key: "log", Label: "Data log", Samples: 20, NewestFirst: true}
)

var named = []Range{Range1h, Range6h, Range12h, RangeLog}

// Ranges returns the named ranges in display order.
func Ranges() []Range {
	out := make([]Range, len(named))
	copy(out, named)
	return out
}

// Lookup returns the named range for key.
func Lookup(key string) (Range, bool) {
	for _, r := range named {
		if r.Key == key {
			return r, true
		}
	}
	return Range{}, false
}

// LastSamples builds an oldest-first range of the trailing n samples.
// A non-positive n selects nothing.
func LastSamples(n int) Range {
	if n <= 0 {
		return Range{Key: "last-0", Label: "Last 0 samples", Samples: -1}
	}
	return Range{Key: fmt.Sprintf("last-%d", n), Label: fmt.Sprintf("Last %d samples", n), Samples: n}
}

// LastSpan builds an oldest-first range covering d before the cursor.
func LastSpan(d time.Duration) Range {
	return Range{Key: "span-" + d.String(), Label: "Last " + d.String(), Span: d}
}

// Cursor resolves pos against a sequence of length n and returns the
// newest-first index of the anchor reading. It returns -1 for an empty
// sequence. Positions past the end clamp to the newest reading.
func Cursor(n int, pos Position) int {
	if n == 0 {
		return -1
	}
	if pos < 0 || int(pos) >= n {
		return 0
	}
	return n - 1 - int(pos)
}

// Select returns the readings of r ending at pos. Only the readings inside
// the window are visited. An empty sequence yields an empty slice.
func Select(seq Sequence, r Range, pos Position) []models.Reading {
	n := seq.Len()
	anchor := Cursor(n, pos)
	if anchor < 0 || r.Samples < 0 {
		return []models.Reading{}
	}

	limit := n - anchor
	if r.Samples > 0 && r.Samples < limit {
		limit = r.Samples
	}

	count := limit
	if r.Span > 0 {
		cutoff := seq.At(anchor).Timestamp.Add(-r.Span)
		count = 0
		for count < limit && !seq.At(anchor+count).Timestamp.Before(cutoff) {
			count++
		}
	}

	out := make([]models.Reading, count)
	for i := 0; i < count; i++ {
		if r.NewestFirst {
			out[i] = seq.At(anchor + i)
		} else {
			out[count-1-i] = seq.At(anchor + i)
		}
	}
	return out
}

package main

import (
	"time"

	"github.com/rewired-gh/comfortdash/internal/dashboard"
)

// overviewTracker reports when the headline reading actually moves. A poll
// that returns the same data bumps the buffer version but shows the same
// reading, so it is not a change.
type overviewTracker struct {
	seen     bool
	hasData  bool
	ts       time.Time
	position int
}

func (t *overviewTracker) changed(ov dashboard.Overview) bool {
	var ts time.Time
	if ov.HasData && ov.Reading != nil {
		ts = ov.Reading.Timestamp
	}
	if t.seen && t.hasData == ov.HasData && t.ts.Equal(ts) && t.position == ov.Position {
		return false
	}
	t.seen, t.hasData, t.ts, t.position = true, ov.HasData, ts, ov.Position
	return true
}

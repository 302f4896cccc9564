// Package playback replays a static dataset at a fixed cadence. The Player
// owns a chronological cursor that advances on its own ticker and wraps back
// to the oldest reading after the newest one. The cursor is clamped against
// the buffer length at read time, so it stays valid when the buffer changes
// underneath it.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rewired-gh/comfortdash/internal/buffer"
	"github.com/rewired-gh/comfortdash/internal/logger"
	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/source"
	"github.com/rewired-gh/comfortdash/internal/window"
)

// DefaultInterval is the cursor cadence when none is configured.
const DefaultInterval = 2 * time.Second

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("player already started")

// Target is the buffer the player loads datasets into.
type Target interface {
	ReplaceAll(raws []models.RawReading) buffer.Result
	Len() int
}

// Player advances a cursor over the buffer.
type Player struct {
	target   Target
	interval time.Duration

	mu      sync.Mutex
	pos     int
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a player over target.
func New(target Target, interval time.Duration) *Player {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Player{target: target, interval: interval}
}

// Interval returns the cursor cadence.
func (p *Player) Interval() time.Duration {
	return p.interval
}

// Load replaces the buffer with raws and rewinds the cursor.
func (p *Player) Load(raws []models.RawReading) buffer.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := p.target.ReplaceAll(raws)
	p.pos = 0
	logger.Info("Loaded playback dataset (kept: %d, dropped: %d)", result.Kept, result.Dropped)
	return result
}

// LoadFile loads an import file. A payload that does not parse leaves the
// buffer and the cursor untouched.
func (p *Player) LoadFile(path string) (buffer.Result, error) {
	raws, err := source.LoadImportFile(path)
	if err != nil {
		return buffer.Result{}, err
	}
	return p.Load(raws), nil
}

// Position returns the cursor clamped to the current buffer.
func (p *Player) Position() window.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return window.Position(clamp(p.pos, p.target.Len()))
}

// Seek moves the cursor. Out-of-range values are clamped.
func (p *Player) Seek(pos window.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	p.pos = clamp(int(pos), p.target.Len())
}

// Advance moves the cursor one reading forward, wrapping to the oldest
// reading after the newest.
func (p *Player) Advance() window.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.target.Len()
	if p.pos+1 >= n {
		p.pos = 0
	} else {
		p.pos++
	}
	return window.Position(p.pos)
}

// Start advances the cursor every interval until ctx is done or Stop is called.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.started = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if p.target.Len() > 0 {
					p.Advance()
				}
			}
		}
	}()
	return nil
}

// Stop halts the ticker and waits for it to exit. Safe to call repeatedly.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func clamp(pos, n int) int {
	if n == 0 || pos < 0 {
		return 0
	}
	if pos >= n {
		return n - 1
	}
	return pos
}

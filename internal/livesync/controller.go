// Package livesync keeps the reading buffer in step with the collaborator.
//
// A Controller runs one fetch per poll period. Fetches are single-flight: a
// tick that fires while the previous fetch is still running is skipped, not
// queued. Every fetch gets its own timeout derived from the run context.
//
// State machine:
//
//	idle -> fetching -> idle   (success or failure recorded in LastOutcome)
//	any  -> stopped            (terminal)
//
// A fetch still in flight when the controller stops is abandoned; its result
// is discarded and never touches the buffer or the state.
package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/comfortdash/internal/buffer"
	"github.com/rewired-gh/comfortdash/internal/logger"
	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/source"
)

// Defaults applied by New for zero config values.
const (
	DefaultPollInterval  = 2 * time.Second
	DefaultDegradedAfter = 1
)

var (
	// ErrFetchInFlight is returned by Refresh while another fetch runs.
	ErrFetchInFlight = errors.New("fetch already in flight")
	// ErrStopped is returned once the controller has stopped.
	ErrStopped = errors.New("controller stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("controller already started")
)

// Replacer receives each successful batch.
type Replacer interface {
	ReplaceAll(raws []models.RawReading) buffer.Result
	Append(raws []models.RawReading) buffer.Result
}

// Config controls the poll loop.
type Config struct {
	PollInterval  time.Duration
	FetchTimeout  time.Duration // defaults to PollInterval
	DegradedAfter int           // consecutive failures before IsDegraded
	// Merge appends each batch to the buffered history instead of replacing
	// it. The buffer's capacity then bounds how much history is kept.
	Merge         bool
}

// ChangeFunc observes state transitions. Calls are serialized, arrive in
// transition order and run outside the state lock. A ChangeFunc may call
// State but must not call Stop.
type ChangeFunc func(prev, next models.SyncState)

// Controller owns the sync state for one buffer.
type Controller struct {
	fetcher source.Fetcher
	buf     Replacer
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	state    models.SyncState
	inFlight bool
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}

	onChange ChangeFunc
	pending  []transition
	draining bool

	skipped atomic.Uint64
}

type transition struct {
	prev, next models.SyncState
}

// New creates a stopped-until-started controller.
func New(fetcher source.Fetcher, buf Replacer, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = cfg.PollInterval
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = DefaultDegradedAfter
	}
	return &Controller{
		fetcher: fetcher,
		buf:     buf,
		cfg:     cfg,
		now:     time.Now,
		state:   models.NewSyncState(),
	}
}

// OnChange installs the transition hook. Call it before Start.
func (c *Controller) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns a copy of the current state.
func (c *Controller) State() models.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Skipped returns how many ticks were skipped because a fetch was in flight.
func (c *Controller) Skipped() uint64 {
	return c.skipped.Load()
}

// Start launches the poll loop and makes the first attempt immediately.
// Cancelling ctx stops the controller like Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase == models.PhaseStopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.started = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	logger.Info("Starting live sync (interval: %v, fetch_timeout: %v, degraded_after: %d)",
		c.cfg.PollInterval, c.cfg.FetchTimeout, c.cfg.DegradedAfter)

	go c.loop(runCtx)
	return nil
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.halt()
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick starts an asynchronous fetch unless one is already running.
func (c *Controller) tick(ctx context.Context) {
	if err := c.begin(); err != nil {
		if errors.Is(err, ErrFetchInFlight) {
			n := c.skipped.Add(1)
			logger.Debug("Skipping tick, fetch still in flight (skipped: %d)", n)
		}
		return
	}
	go func() {
		_ = c.attempt(ctx)
	}()
}

// Refresh performs one synchronous fetch. It returns the fetch error, if any,
// after recording it in the state.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	return c.attempt(ctx)
}

// Stop cancels the loop and any in-flight fetch and waits for the loop to
// exit. It is safe to call more than once and from any state.
func (c *Controller) Stop() {
	c.halt()

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Controller) halt() {
	c.mu.Lock()
	if c.state.Phase == models.PhaseStopped {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state.Phase = models.PhaseStopped
	c.publish(prev)
	logger.Info("Live sync stopped")
}

func (c *Controller) begin() error {
	c.mu.Lock()
	if c.state.Phase == models.PhaseStopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrFetchInFlight
	}
	c.inFlight = true
	prev := c.state
	c.state.Phase = models.PhaseFetching
	c.state.LastAttemptAt = c.now()
	c.state.AttemptID = uuid.NewString()
	c.publish(prev)
	return nil
}

func (c *Controller) attempt(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	raws, err := c.fetcher.FetchReadings(fetchCtx)
	return c.finish(raws, err, time.Since(start))
}

func (c *Controller) finish(raws []models.RawReading, fetchErr error, took time.Duration) error {
	c.mu.Lock()
	c.inFlight = false
	if c.state.Phase == models.PhaseStopped {
		c.mu.Unlock()
		logger.Debug("Discarding fetch result after stop")
		return ErrStopped
	}

	prev := c.state
	c.state.Phase = models.PhaseIdle
	if fetchErr != nil {
		c.state.LastOutcome = models.OutcomeFailure
		c.state.ConsecutiveFailures++
		c.state.IsDegraded = c.state.ConsecutiveFailures >= c.cfg.DegradedAfter
		c.state.LastError = fetchErr.Error()
		failures, id := c.state.ConsecutiveFailures, c.state.AttemptID
		c.publish(prev)
		logger.Warn("Fetch %s failed (consecutive failures: %d): %v", id, failures, fetchErr)
		return fetchErr
	}

	var result buffer.Result
	if c.cfg.Merge {
		result = c.buf.Append(raws)
	} else {
		result = c.buf.ReplaceAll(raws)
	}
	c.state.LastOutcome = models.OutcomeSuccess
	c.state.LastSuccessfulFetchAt = c.now()
	c.state.ConsecutiveFailures = 0
	c.state.IsDegraded = false
	c.state.LastError = ""
	c.state.Kept = result.Kept
	c.state.Dropped = result.Dropped
	id := c.state.AttemptID
	c.publish(prev)

	logger.Debug("Fetch %s kept %d readings (%d dropped) in %v", id, result.Kept, result.Dropped, took)
	if prev.ConsecutiveFailures > 0 {
		logger.Info("Live sync recovered after %d failures", prev.ConsecutiveFailures)
	}
	return nil
}

// publish queues the transition from prev to the current state and releases
// c.mu. Whichever goroutine finds the queue idle drains it, so hooks never
// run concurrently or out of order.
func (c *Controller) publish(prev models.SyncState) {
	if c.onChange == nil {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, transition{prev: prev, next: c.state})
	if c.draining {
		c.mu.Unlock()
		return
	}

	c.draining = true
	for len(c.pending) > 0 {
		batch, fn := c.pending, c.onChange
		c.pending = nil
		c.mu.Unlock()
		for _, t := range batch {
			fn(t.prev, t.next)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

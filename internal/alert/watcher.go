// Package alert turns dashboard and sync transitions into operator
// notifications. It sends when the comfort tier escalates into an alerting
// tier, when the sync loop becomes degraded, and when it recovers.
//
// Observe* calls never block on delivery: notifications are queued and sent
// by Run, so a slow chat API cannot stall the sync loop.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/comfortdash/internal/dashboard"
	"github.com/rewired-gh/comfortdash/internal/logger"
	"github.com/rewired-gh/comfortdash/internal/models"
)

const queueSize = 32

// Sender delivers notifications.
type Sender interface {
	SendTierAlert(ov dashboard.Overview) error
	SendDegraded(state models.SyncState) error
	SendRecovery(failures int) error
}

// Watcher tracks the last observed tier and sync state.
type Watcher struct {
	sender   Sender
	cooldown time.Duration
	now      func() time.Time
	queue    chan func() error

	mu       sync.Mutex
	lastTier models.Tier
	hasTier  bool
	lastSent map[models.Tier]time.Time
}

// NewWatcher creates a watcher. Repeated alerts for the same tier within
// cooldown are suppressed.
func NewWatcher(sender Sender, cooldown time.Duration) *Watcher {
	return &Watcher{
		sender:   sender,
		cooldown: cooldown,
		now:      time.Now,
		queue:    make(chan func() error, queueSize),
		lastSent: make(map[models.Tier]time.Time),
	}
}

// Run delivers queued notifications until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			if err := job(); err != nil {
				logger.Warn("Failed to send notification: %v", err)
			}
		}
	}
}

// ObserveOverview queues a tier alert when ov escalates into an alerting tier.
// It reports whether an alert was queued.
func (w *Watcher) ObserveOverview(ov dashboard.Overview) bool {
	if !ov.HasData {
		return false
	}

	w.mu.Lock()
	tier := ov.Classification.Tier
	escalated := !w.hasTier || tier > w.lastTier
	w.lastTier, w.hasTier = tier, true

	if !escalated || !ov.Classification.IsAlerting() {
		w.mu.Unlock()
		return false
	}
	now := w.now()
	if last, ok := w.lastSent[tier]; ok && now.Sub(last) < w.cooldown {
		w.mu.Unlock()
		logger.Debug("Suppressing %s alert within cooldown", ov.Classification.Label)
		return false
	}
	w.lastSent[tier] = now
	w.mu.Unlock()

	logger.Info("Comfort escalated to %s (index: %.1f)", ov.Classification.Label, ov.Index)
	return w.enqueue(func() error { return w.sender.SendTierAlert(ov) })
}

// ObserveSync queues degraded and recovery notices. Its signature matches
// livesync.ChangeFunc.
func (w *Watcher) ObserveSync(prev, next models.SyncState) {
	switch {
	case !prev.IsDegraded && next.IsDegraded:
		w.enqueue(func() error { return w.sender.SendDegraded(next) })
	case prev.ConsecutiveFailures > 0 && next.LastOutcome == models.OutcomeSuccess && next.ConsecutiveFailures == 0:
		failures := prev.ConsecutiveFailures
		w.enqueue(func() error { return w.sender.SendRecovery(failures) })
	}
}

func (w *Watcher) enqueue(job func() error) bool {
	select {
	case w.queue <- job:
		return true
	default:
		logger.Warn("Notification queue full, dropping notification")
		return false
	}
}

// LogSender writes notifications to the log. It stands in for a chat
// client when none is configured.
type LogSender struct{}

// SendTierAlert logs the escalation.
func (LogSender) SendTierAlert(ov dashboard.Overview) error {
	logger.Warn("ALERT %s %s: index %.1f (%s)", ov.Classification.Emoji, ov.Classification.Title, ov.Index, ov.Classification.Advisory)
	return nil
}

// SendDegraded logs the loss of connectivity.
func (LogSender) SendDegraded(state models.SyncState) error {
	logger.Warn("ALERT readings source unreachable after %d failure(s): %s", state.ConsecutiveFailures, state.LastError)
	return nil
}

// SendRecovery logs the restored connectivity.
func (LogSender) SendRecovery(failures int) error {
	logger.Info("ALERT readings source recovered after %d failure(s)", failures)
	return nil
}

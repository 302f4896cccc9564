package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/comfortdash/internal/alert"
	"github.com/rewired-gh/comfortdash/internal/buffer"
	"github.com/rewired-gh/comfortdash/internal/config"
	"github.com/rewired-gh/comfortdash/internal/dashboard"
	"github.com/rewired-gh/comfortdash/internal/livesync"
	"github.com/rewired-gh/comfortdash/internal/logger"
	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/playback"
	"github.com/rewired-gh/comfortdash/internal/source"
	"github.com/rewired-gh/comfortdash/internal/storage"
	"github.com/rewired-gh/comfortdash/internal/telegram"
	"github.com/rewired-gh/comfortdash/internal/window"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Initialize notifications
	var sender alert.Sender = alert.LogSender{}
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		if cfg.Telegram.Timezone != "" {
			loc, _ := time.LoadLocation(cfg.Telegram.Timezone)
			telegramClient.SetLocation(loc)
		}
		sender = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled, alerts go to the log")
	}
	watcher := alert.NewWatcher(sender, cfg.Telegram.Cooldown)
	go watcher.Run(ctx)

	buf := buffer.New(cfg.Dashboard.BufferCapacity)

	var (
		dash    *dashboard.Service
		cadence time.Duration
		stop    func()
		status  func() string
	)

	switch cfg.Dashboard.Mode {
	case config.ModePlayback:
		player := playback.New(buf, cfg.Playback.Interval)
		res, err := player.LoadFile(cfg.Playback.ImportPath)
		if err != nil {
			logger.Fatal("Failed to load playback dataset: %v", err)
		}
		logger.Info("Loaded %d readings from %s (%d dropped)", res.Kept, cfg.Playback.ImportPath, res.Dropped)

		dash = dashboard.New(buf, player, nil, cfg.Dashboard.GaugeMax)
		if err := player.Start(ctx); err != nil {
			logger.Fatal("Failed to start playback: %v", err)
		}
		cadence = player.Interval()
		stop = player.Stop
		status = func() string { return "playback" }

	default:
		fetcher, origin, closeSource := liveSource(cfg)
		defer closeSource()
		controller := livesync.New(fetcher, buf, livesync.Config{
			PollInterval:  cfg.Sync.PollInterval,
			FetchTimeout:  cfg.Sync.FetchTimeout,
			DegradedAfter: cfg.Sync.DegradedAfter,
			Merge:         cfg.Sync.Merge,
		})
		controller.OnChange(func(prev, next models.SyncState) {
			if prev.IsDegraded != next.IsDegraded {
				logger.Warn("Sync degraded changed to %v (consecutive failures: %d)", next.IsDegraded, next.ConsecutiveFailures)
			}
			watcher.ObserveSync(prev, next)
		})

		dash = dashboard.New(buf, dashboard.Live{}, controller, cfg.Dashboard.GaugeMax)
		logger.Info("Starting live sync (source: %s, interval: %v, degraded_after: %d)",
			origin, controller.Config().PollInterval, controller.Config().DegradedAfter)
		if err := controller.Start(ctx); err != nil {
			logger.Fatal("Failed to start sync: %v", err)
		}
		cadence = controller.Config().PollInterval
		stop = controller.Stop
		status = func() string {
			state := controller.State()
			return string(state.Phase) + "/" + string(state.LastOutcome)
		}
		defer func() {
			if n := controller.Skipped(); n > 0 {
				logger.Info("Skipped %d poll ticks while a fetch was in flight", n)
			}
		}()
	}
	defer stop()

	observeTicker := time.NewTicker(cadence)
	defer observeTicker.Stop()
	reportTicker := time.NewTicker(cfg.Dashboard.ReportInterval)
	defer reportTicker.Stop()

	var tracker overviewTracker

	observe := func() {
		ov := dash.Overview()
		if !tracker.changed(ov) {
			return
		}
		if !ov.HasData {
			logger.Debug("Buffer empty, showing %s", ov.Classification.Label)
			return
		}
		logger.Info("%s %s: index %.1f (%s), %.1f°C %.0f%%RH, gauge %.0f%%",
			ov.Classification.Emoji, ov.Classification.Label, ov.Index, ov.IndexSource,
			ov.Reading.Temperature, ov.Reading.Humidity, ov.GaugePercent)
		watcher.ObserveOverview(ov)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return
		case <-observeTicker.C:
			observe()
		case <-reportTicker.C:
			ov := dash.Overview()
			logs := dash.Log()
			logger.Debug("Status %s: %d readings, position %d, staleness %v, log rows %d",
				status(), ov.Total, ov.Position, ov.Staleness.Round(time.Second), len(logs))
		}
	}
}

// liveSource picks the readings collaborator: the archive when a database
// path is configured, the HTTP API otherwise. The returned func releases it.
func liveSource(cfg *config.Config) (source.Fetcher, string, func()) {
	if cfg.Source.DBPath != "" {
		store, err := storage.New(0, cfg.Source.DBPath)
		if err != nil {
			logger.Fatal("Failed to open readings archive: %v", err)
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close readings archive: %v", err)
			}
		}
		return store.Source(window.Range12h.Samples), cfg.Source.DBPath, closeStore
	}
	client := source.NewClient(cfg.Source.URL, cfg.Source.Timeout, source.ClientConfig{
		MaxRetries:     cfg.Source.MaxRetries,
		RetryDelayBase: cfg.Source.RetryDelayBase,
	})
	return client, client.URL(), func() {}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/comfortdash/internal/api"
	"github.com/rewired-gh/comfortdash/internal/config"
	"github.com/rewired-gh/comfortdash/internal/ingest"
	"github.com/rewired-gh/comfortdash/internal/logger"
	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxReadings, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Optional sensor ingest
	if cfg.MQTT.Enabled {
		sub := ingest.NewSubscriber(ingest.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger.Slog())
		sub.SetMessageHandler(func(r models.Reading) error {
			_, err := store.AddReading(context.Background(), r)
			return err
		})
		go func() {
			if err := sub.Connect(ctx); err != nil && !errors.Is(err, ingest.ErrStopped) && !errors.Is(err, context.Canceled) {
				logger.Error("MQTT connect failed: %v", err)
			}
		}()
		defer sub.Disconnect()
	}

	go rotateLoop(ctx, store, cfg.Storage.RotateInterval)

	srv := api.NewServer(store, api.Config{
		DefaultLimit:   cfg.API.DefaultLimit,
		MaxLimit:       cfg.API.MaxLimit,
		MaxBodyBytes:   cfg.API.MaxBodyBytes,
		AllowedOrigins: cfg.API.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Readings API listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, cleaning up...")
	case err := <-errCh:
		logger.Error("HTTP server failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed: %v", err)
	}
	logger.Info("Service stopped")
}

// rotateLoop trims the archive to its configured size.
func rotateLoop(ctx context.Context, store *storage.Storage, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Rotate(ctx)
			if err != nil {
				logger.Error("Failed to rotate readings: %v", err)
				continue
			}
			if removed > 0 {
				logger.Debug("Rotated %d old readings", removed)
			}
		}
	}
}

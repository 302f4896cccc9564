// Package api serves the reading archive over HTTP. It is the collaborator
// the dashboard's sync loop polls: GET /api/readings returns the newest
// readings as a JSON array, POST /api/readings ingests one record or a batch.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/rewired-gh/comfortdash/internal/logger"
	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/source"
	"github.com/rewired-gh/comfortdash/internal/storage"
)

// Store is the archive behind the API.
type Store interface {
	LatestReadings(ctx context.Context, n int) ([]models.Reading, error)
	AddReadings(ctx context.Context, readings []models.Reading) (int, error)
	Count(ctx context.Context) (int, error)
	SetForecast(ctx context.Context, ts time.Time, value float64) error
}

// Config holds API limits.
type Config struct {
	DefaultLimit   int
	MaxLimit       int
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// IngestResult is the POST response body.
type IngestResult struct {
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// Server holds the HTTP handlers.
type Server struct {
	store Store
	cfg   Config
}

// NewServer creates the API over store.
func NewServer(store Store, cfg Config) *Server {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{store: store, cfg: cfg}
}

// Router returns the bare route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/api/readings", s.handleListReadings).Methods(http.MethodGet)
	r.HandleFunc("/api/readings", s.handleIngestReadings).Methods(http.MethodPost)
	r.HandleFunc("/api/readings/{ts}/forecast", s.handleSetForecast).Methods(http.MethodPut)
	return r
}

// Handler returns the router wrapped with CORS, panic recovery and request logging.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(false),
	)
	return requestLogger(recovery(cors(s.Router())))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "readings": count})
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, s.cfg.MaxLimit)
	}

	readings, err := s.store.LatestReadings(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to list readings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	out := make([]models.RawReading, len(readings))
	for i, reading := range readings {
		out[i] = reading.Raw()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIngestReadings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	raws, err := decodeIngest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, dropped := models.NormalizeBatch(raws)
	inserted, err := s.store.AddReadings(r.Context(), readings)
	if err != nil {
		logger.Error("Failed to store readings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store readings")
		return
	}

	result := IngestResult{Kept: inserted, Dropped: dropped + len(readings) - inserted}
	logger.Debug("Ingested readings over HTTP (kept: %d, dropped: %d)", result.Kept, result.Dropped)
	writeJSON(w, http.StatusOK, result)
}

// handleSetForecast attaches a precomputed forecast to the reading at {ts}.
// {ts} is anything a reading timestamp accepts: RFC 3339 or an epoch.
func (s *Server) handleSetForecast(w http.ResponseWriter, r *http.Request) {
	var ts models.Timestamp
	raw := mux.Vars(r)["ts"]
	if err := json.Unmarshal([]byte(strconv.Quote(raw)), &ts); err != nil || !ts.Valid {
		writeError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}

	var body struct {
		ForecastIndex *float64 `json:"forecastIndex"`
		THIForecast   *float64 `json:"thi_forecast"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value := body.ForecastIndex
	if value == nil {
		value = body.THIForecast
	}
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		writeError(w, http.StatusBadRequest, "forecastIndex must be a finite number")
		return
	}

	if err := s.store.SetForecast(r.Context(), ts.Time, *value); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("Failed to set forecast: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to set forecast")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeIngest accepts a single record object or an array of records.
func decodeIngest(body []byte) ([]models.RawReading, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var raw models.RawReading
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("invalid reading: %v", err)
		}
		return []models.RawReading{raw}, nil
	}
	raws, err := source.ParseImport(trimmed)
	if err != nil {
		return nil, err
	}
	return raws, nil
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	logger.Error("Recovered from panic in handler: %s", fmt.Sprint(v...))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		logger.Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, sr.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	})
}

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/comfortdash/internal/buffer"
	"github.com/rewired-gh/comfortdash/internal/models"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func mustStorage(t *testing.T, maxReadings int) *Storage {
	t.Helper()
	s, err := New(maxReadings, ":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func reading(minute int, temp float64) models.Reading {
	return models.Reading{
		Temperature: temp,
		Humidity:    60,
		Timestamp:   base.Add(time.Duration(minute) * time.Minute),
		Kind:        models.KindHistory,
	}
}

func TestStorage_AddAndLatest(t *testing.T) {
	s := mustStorage(t, 100)
	ctx := context.Background()

	thi := 24.2
	r := reading(0, 25)
	r.ComfortIndex = &thi
	inserted, err := s.AddReading(ctx, r)
	if err != nil || !inserted {
		t.Fatalf("AddReading = %v, %v", inserted, err)
	}

	n, err := s.AddReadings(ctx, []models.Reading{reading(2, 27), reading(1, 26), reading(0, 99)})
	if err != nil {
		t.Fatalf("AddReadings failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 new readings, got %d", n)
	}

	latest, err := s.LatestReadings(ctx, 2)
	if err != nil {
		t.Fatalf("LatestReadings failed: %v", err)
	}
	if len(latest) != 2 || latest[0].Temperature != 27 || latest[1].Temperature != 26 {
		t.Errorf("Unexpected latest readings: %+v", latest)
	}
	if latest[0].ID == "" {
		t.Error("Expected generated ID")
	}

	all, _ := s.LatestReadings(ctx, 10)
	oldest := all[len(all)-1]
	if oldest.Temperature != 25 || oldest.ComfortIndex == nil || *oldest.ComfortIndex != 24.2 {
		t.Errorf("Duplicate timestamp overwrote first insert: %+v", oldest)
	}
	if !oldest.Timestamp.Equal(base) || oldest.Timestamp.Location() != time.UTC {
		t.Errorf("Unexpected timestamp: %v", oldest.Timestamp)
	}

	count, err := s.Count(ctx)
	if err != nil || count != 3 {
		t.Errorf("Count = %d, %v; want 3", count, err)
	}
}

func TestStorage_SetForecast(t *testing.T) {
	s := mustStorage(t, 100)
	ctx := context.Background()
	if _, err := s.AddReading(ctx, reading(0, 25)); err != nil {
		t.Fatal(err)
	}

	if err := s.SetForecast(ctx, base, 23.7); err != nil {
		t.Fatalf("SetForecast failed: %v", err)
	}
	latest, _ := s.LatestReadings(ctx, 1)
	if latest[0].ForecastIndex == nil || *latest[0].ForecastIndex != 23.7 {
		t.Errorf("Expected forecast 23.7, got %v", latest[0].ForecastIndex)
	}

	if err := s.SetForecast(ctx, base.Add(time.Hour), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStorage_Rotate(t *testing.T) {
	s := mustStorage(t, 3)
	ctx := context.Background()

	readings := make([]models.Reading, 5)
	for i := range readings {
		readings[i] = reading(i, float64(20+i))
	}
	if _, err := s.AddReadings(ctx, readings); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Rotate(ctx)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	latest, _ := s.LatestReadings(ctx, 10)
	if len(latest) != 3 || latest[2].Temperature != 22 {
		t.Errorf("Rotation kept the wrong readings: %+v", latest)
	}
}

func TestStorage_SourceFeedsBuffer(t *testing.T) {
	s := mustStorage(t, 100)
	ctx := context.Background()
	forecast := 26.1
	r := reading(1, 26)
	r.ForecastIndex = &forecast
	if _, err := s.AddReadings(ctx, []models.Reading{reading(0, 25), r}); err != nil {
		t.Fatal(err)
	}

	raws, err := s.Source(20).FetchReadings(ctx)
	if err != nil {
		t.Fatalf("FetchReadings failed: %v", err)
	}

	buf := buffer.New(0)
	result := buf.ReplaceAll(raws)
	if result.Kept != 2 || result.Dropped != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
	latest, _ := buf.Latest()
	if latest.Temperature != 26 || latest.ForecastIndex == nil || *latest.ForecastIndex != 26.1 {
		t.Errorf("Unexpected latest reading: %+v", latest)
	}
}

func TestStorage_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "readings.db")
	ctx := context.Background()

	s, err := New(10, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.AddReading(ctx, reading(0, 25)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(10, path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()
	if count, _ := reopened.Count(ctx); count != 1 {
		t.Errorf("Expected 1 persisted reading, got %d", count)
	}
}

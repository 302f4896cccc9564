package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/rewired-gh/comfortdash/internal/buffer"
	"github.com/rewired-gh/comfortdash/internal/comfort"
	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/window"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func reading(minute int, temp, hum float64) models.RawReading {
	return models.RawReading{
		Temperature: f64(temp),
		Humidity:    f64(hum),
		Timestamp:   &models.Timestamp{Time: base.Add(time.Duration(minute) * time.Minute), Valid: true},
	}
}

type fixedCursor window.Position

func (c fixedCursor) Position() window.Position { return window.Position(c) }

type fixedState models.SyncState

func (s fixedState) State() models.SyncState { return models.SyncState(s) }

func TestOverview_NoData(t *testing.T) {
	s := New(buffer.New(0), nil, nil, 0)
	ov := s.Overview()

	if ov.HasData || ov.Reading != nil {
		t.Error("Empty buffer should report no data")
	}
	if ov.Classification.Label != "No Data" || ov.Classification.Emoji != "❓" {
		t.Errorf("Unexpected placeholder: %+v", ov.Classification)
	}
	if ov.Sync.Phase != models.PhaseIdle {
		t.Errorf("Expected initial sync state, got %s", ov.Sync.Phase)
	}
}

func TestOverview_LiveUsesLatest(t *testing.T) {
	buf := buffer.New(0)
	buf.ReplaceAll([]models.RawReading{reading(0, 22, 50), reading(1, 25, 60)})

	s := New(buf, Live{}, nil, 0)
	ov := s.Overview()

	if !ov.HasData || ov.Reading.Temperature != 25 {
		t.Fatalf("Expected latest reading, got %+v", ov.Reading)
	}
	if ov.Index != 23.0 || ov.IndexSource != SourceComputed {
		t.Errorf("Expected computed index 23.0, got %v (%s)", ov.Index, ov.IndexSource)
	}
	if ov.Classification.Tier != comfort.TierComfortable {
		t.Errorf("Expected comfortable, got %s", ov.Classification.Label)
	}
	if ov.Position != 1 || ov.Total != 2 {
		t.Errorf("Expected position 1 of 2, got %d of %d", ov.Position, ov.Total)
	}
	if ov.GaugePercent != 57.5 {
		t.Errorf("Expected gauge 57.5%%, got %v", ov.GaugePercent)
	}
}

func TestOverview_UpstreamAndForecast(t *testing.T) {
	r := reading(0, 30, 70)
	r.ComfortIndex = f64(27.2)
	r.ForecastIndex = f64(28.4)

	buf := buffer.New(0)
	buf.ReplaceAll([]models.RawReading{r})

	ov := New(buf, nil, nil, 0).Overview()
	if ov.Index != 27.2 || ov.IndexSource != SourceUpstream {
		t.Errorf("Expected upstream index 27.2, got %v (%s)", ov.Index, ov.IndexSource)
	}
	if ov.Forecast == nil || ov.Forecast.Classification.Tier != comfort.TierHeatStress {
		t.Errorf("Unexpected forecast: %+v", ov.Forecast)
	}
	if !ov.Classification.IsAlerting() {
		t.Error("Uncomfortable tier should be alerting")
	}
}

func TestOverview_PlaybackCursor(t *testing.T) {
	buf := buffer.New(0)
	buf.ReplaceAll([]models.RawReading{reading(0, 20, 50), reading(1, 21, 50), reading(2, 22, 50)})

	ov := New(buf, fixedCursor(1), nil, 0).Overview()
	if ov.Reading.Temperature != 21 || ov.Position != 1 {
		t.Errorf("Expected cursor reading 21 at position 1, got %v at %d", ov.Reading.Temperature, ov.Position)
	}
}

func TestOverview_SyncState(t *testing.T) {
	now := base.Add(time.Hour)
	state := models.NewSyncState()
	state.IsDegraded = true
	state.LastSuccessfulFetchAt = now.Add(-30 * time.Second)

	s := New(buffer.New(0), nil, fixedState(state), 0)
	s.now = func() time.Time { return now }

	ov := s.Overview()
	if !ov.Sync.IsDegraded {
		t.Error("Expected degraded flag to pass through")
	}
	if ov.Staleness != 30*time.Second {
		t.Errorf("Staleness = %v, want 30s", ov.Staleness)
	}
}

func TestGauge_Clamped(t *testing.T) {
	s := New(buffer.New(0), nil, nil, 40)
	tests := []struct {
		index, want float64
	}{
		{-5, 0},
		{10, 25},
		{40, 100},
		{55, 100},
	}
	for _, tt := range tests {
		if got := s.gauge(tt.index); got != tt.want {
			t.Errorf("gauge(%v) = %v, want %v", tt.index, got, tt.want)
		}
	}
}

func TestHistory(t *testing.T) {
	buf := buffer.New(0)
	raws := make([]models.RawReading, 30)
	for i := range raws {
		raws[i] = reading(i, 20+float64(i)/10, 50)
	}
	buf.ReplaceAll(raws)

	s := New(buf, nil, nil, 0)
	h, err := s.History("1h")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(h.Rows) != 20 {
		t.Fatalf("Expected 20 rows, got %d", len(h.Rows))
	}
	if !h.Rows[0].Timestamp.Before(h.Rows[19].Timestamp) {
		t.Error("History rows should be oldest-first")
	}
	if !h.Rows[19].Timestamp.Equal(base.Add(29 * time.Minute)) {
		t.Errorf("Last row should be the newest reading, got %v", h.Rows[19].Timestamp)
	}

	if _, err := s.History("24h"); !errors.Is(err, ErrUnknownRange) {
		t.Errorf("Expected ErrUnknownRange, got %v", err)
	}
}

func TestLog(t *testing.T) {
	prediction := reading(2, 26, 70)
	prediction.Kind = "prediction"

	buf := buffer.New(0)
	buf.ReplaceAll([]models.RawReading{reading(0, 24, 50), reading(1, 25, 60), prediction})

	rows := New(buf, nil, nil, 0).Log()
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0].Kind != KindForecast || rows[1].Kind != KindHistory {
		t.Errorf("Unexpected kinds: %s, %s", rows[0].Kind, rows[1].Kind)
	}
	if !rows[0].Timestamp.After(rows[1].Timestamp) {
		t.Error("Log should be newest-first")
	}
	if rows[1].Label != "Comfortable" {
		t.Errorf("Unexpected label: %s", rows[1].Label)
	}
}

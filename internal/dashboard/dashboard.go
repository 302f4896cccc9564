// Package dashboard assembles the presentation model: the current reading with
// its comfort classification, chart series per named range, and the data log.
//
// Every call derives its result from one buffer snapshot, so a single
// overview or chart never mixes data from two replacements.
package dashboard

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/comfortdash/internal/buffer"
	"github.com/rewired-gh/comfortdash/internal/comfort"
	"github.com/rewired-gh/comfortdash/internal/models"
	"github.com/rewired-gh/comfortdash/internal/window"
)

// DefaultGaugeMax is the index mapped to a full gauge.
const DefaultGaugeMax = 40.0

// ErrUnknownRange is returned for a range key that is not offered.
var ErrUnknownRange = errors.New("unknown range")

// Index sources.
const (
	SourceUpstream = "upstream"
	SourceComputed = "computed"
)

// Row kinds shown in the data log.
const (
	KindHistory  = "History"
	KindForecast = "AI Forecast"
)

// Cursor supplies the position the overview and charts are anchored at.
type Cursor interface {
	Position() window.Position
}

// Live always points at the newest reading.
type Live struct{}

// Position returns window.Latest.
func (Live) Position() window.Position { return window.Latest }

// StateSource supplies the sync state shown next to the data.
type StateSource interface {
	State() models.SyncState
}

// Forecast is the model forecast attached to the current reading.
type Forecast struct {
	Index          float64               `json:"index"`
	Classification models.Classification `json:"classification"`
}

// Overview is the headline card.
type Overview struct {
	HasData        bool                  `json:"has_data"`
	Reading        *models.Reading       `json:"reading,omitempty"`
	Index          float64               `json:"index"`
	IndexSource    string                `json:"index_source,omitempty"`
	Classification models.Classification `json:"classification"`
	Forecast       *Forecast             `json:"forecast,omitempty"`
	GaugePercent   float64               `json:"gauge_percent"`
	Position       int                   `json:"position"`
	Total          int                   `json:"total"`
	Version        uint64                `json:"version"`
	Sync           models.SyncState      `json:"sync"`
	Staleness      time.Duration         `json:"staleness"`
}

// Row is one chart point or log line.
type Row struct {
	Timestamp     time.Time `json:"timestamp"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Index         float64   `json:"index"`
	ForecastIndex *float64  `json:"forecast_index,omitempty"`
	Label         string    `json:"label"`
	Kind          string    `json:"kind"`
}

// History is the chart series for one range.
type History struct {
	Range window.Range `json:"range"`
	Rows  []Row        `json:"rows"`
}

// Service renders the presentation model from a buffer.
type Service struct {
	buf      *buffer.Buffer
	cursor   Cursor
	state    StateSource
	gaugeMax float64
	now      func() time.Time
}

// New creates a service. A nil cursor means live mode; a nil state source
// reports the initial sync state.
func New(buf *buffer.Buffer, cursor Cursor, state StateSource, gaugeMax float64) *Service {
	if cursor == nil {
		cursor = Live{}
	}
	if gaugeMax <= 0 {
		gaugeMax = DefaultGaugeMax
	}
	return &Service{
		buf:      buf,
		cursor:   cursor,
		state:    state,
		gaugeMax: gaugeMax,
		now:      time.Now,
	}
}

// Ranges lists the chart ranges.
func (s *Service) Ranges() []window.Range {
	return window.Ranges()
}

// Overview returns the headline card for the reading under the cursor.
func (s *Service) Overview() Overview {
	snap := s.buf.Snapshot()
	ov := Overview{
		Classification: comfort.NoData,
		Total:          snap.Len(),
		Version:        snap.Version(),
		Sync:           s.syncState(),
	}
	ov.Staleness = ov.Sync.Staleness(s.now())

	anchor := window.Cursor(snap.Len(), s.cursor.Position())
	if anchor < 0 {
		return ov
	}

	reading := snap.At(anchor)
	ov.HasData = true
	ov.Reading = &reading
	ov.Position = snap.Len() - 1 - anchor
	ov.Index = comfort.IndexOf(reading)
	ov.IndexSource = SourceComputed
	if comfort.IsUpstream(reading) {
		ov.IndexSource = SourceUpstream
	}
	ov.Classification = comfort.Classify(ov.Index)
	ov.GaugePercent = s.gauge(ov.Index)

	if reading.ForecastIndex != nil {
		ov.Forecast = &Forecast{
			Index:          *reading.ForecastIndex,
			Classification: comfort.Classify(*reading.ForecastIndex),
		}
	}
	return ov
}

// History returns the oldest-first chart rows for the named range.
func (s *Service) History(key string) (History, error) {
	r, ok := window.Lookup(key)
	if !ok {
		return History{}, fmt.Errorf("%w: %s", ErrUnknownRange, key)
	}
	return History{Range: r, Rows: s.rows(r)}, nil
}

// Log returns the newest-first data log ending at the cursor.
func (s *Service) Log() []Row {
	return s.rows(window.RangeLog)
}

func (s *Service) rows(r window.Range) []Row {
	readings := s.buf.Window(r, s.cursor.Position())
	rows := make([]Row, len(readings))
	for i, reading := range readings {
		index := comfort.IndexOf(reading)
		kind := KindHistory
		if reading.Kind == models.KindPrediction {
			kind = KindForecast
		}
		rows[i] = Row{
			Timestamp:     reading.Timestamp,
			Temperature:   reading.Temperature,
			Humidity:      reading.Humidity,
			Index:         index,
			ForecastIndex: reading.ForecastIndex,
			Label:         comfort.Classify(index).Label,
			Kind:          kind,
		}
	}
	return rows
}

func (s *Service) syncState() models.SyncState {
	if s.state == nil {
		return models.NewSyncState()
	}
	return s.state.State()
}

// gauge maps index onto 0–100 percent of the gauge.
func (s *Service) gauge(index float64) float64 {
	if math.IsNaN(index) {
		return 0
	}
	pct := index / s.gaugeMax * 100
	return comfort.Round(math.Max(0, math.Min(100, pct)))
}

// Package models defines the core domain entities for the comfort dashboard.
// These models represent sampled environmental readings, their derived comfort
// classification, and the connectivity state of the sync loop.
//
// Incoming records are decoded into RawReading, which tolerates the field
// names used by older back-ends, and validated exactly once into an immutable
// Reading. Everything downstream of ingestion works with Reading only.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord is wrapped by every per-record validation failure.
// Malformed records are dropped from a batch; they never fail the batch.
var ErrMalformedRecord = errors.New("malformed record")

// Physical domain accepted for a reading.
const (
	MinTemperature = -40.0
	MaxTemperature = 60.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e12 ms is September 2001; 1e12 s is far beyond any sensor lifetime.
const epochMillisThreshold = 1e12

// Kind distinguishes measured rows from rows written by the forecasting job.
type Kind string

const (
	KindHistory    Kind = "history"
	KindPrediction Kind = "prediction"
)

// Reading is one validated, immutable observation.
type Reading struct {
	ID            string    `json:"id,omitempty"`
	Temperature   float64   `json:"temperature"` // °C
	Humidity      float64   `json:"humidity"`    // % RH, 0–100
	Timestamp     time.Time `json:"timestamp"`   // UTC
	ComfortIndex  *float64  `json:"comfortIndex,omitempty"`
	ForecastIndex *float64  `json:"forecastIndex,omitempty"`
	Kind          Kind      `json:"type"`
}

// Raw converts a validated reading back into its wire shape.
func (r Reading) Raw() RawReading {
	temp := r.Temperature
	hum := r.Humidity
	ts := Timestamp{Time: r.Timestamp, Valid: !r.Timestamp.IsZero()}
	return RawReading{
		ID:            r.ID,
		Temperature:   &temp,
		Humidity:      &hum,
		Timestamp:     &ts,
		ComfortIndex:  copyFloat(r.ComfortIndex),
		ForecastIndex: copyFloat(r.ForecastIndex),
		Kind:          string(r.Kind),
	}
}

// RawReading is a decoded but unvalidated record, as delivered by the
// collaborator or a user-supplied import file.
type RawReading struct {
	ID            string
	Temperature   *float64
	Humidity      *float64
	Timestamp     *Timestamp
	ComfortIndex  *float64
	ForecastIndex *float64
	Kind          string
}

// rawWire lists every accepted field name. Short names come from the
// legacy Mongo documents (temp, hum, thi, thi_forecast, _id).
type rawWire struct {
	ID            json.RawMessage `json:"id"`
	MongoID       json.RawMessage `json:"_id"`
	Temperature   *float64        `json:"temperature"`
	Temp          *float64        `json:"temp"`
	Humidity      *float64        `json:"humidity"`
	Hum           *float64        `json:"hum"`
	Timestamp     *Timestamp      `json:"timestamp"`
	ComfortIndex  *float64        `json:"comfortIndex"`
	THI           *float64        `json:"thi"`
	ForecastIndex *float64        `json:"forecastIndex"`
	THIForecast   *float64        `json:"thi_forecast"`
	Type          string          `json:"type"`
}

// UnmarshalJSON accepts both canonical and legacy field names.
// Canonical names win when both are present.
func (r *RawReading) UnmarshalJSON(data []byte) error {
	var w rawWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = RawReading{
		ID:            firstID(w.ID, w.MongoID),
		Temperature:   firstFloat(w.Temperature, w.Temp),
		Humidity:      firstFloat(w.Humidity, w.Hum),
		Timestamp:     w.Timestamp,
		ComfortIndex:  firstFloat(w.ComfortIndex, w.THI),
		ForecastIndex: firstFloat(w.ForecastIndex, w.THIForecast),
		Kind:          w.Type,
	}
	return nil
}

// MarshalJSON writes the canonical wire shape.
func (r RawReading) MarshalJSON() ([]byte, error) {
	out := struct {
		ID            string     `json:"id,omitempty"`
		Temperature   *float64   `json:"temperature"`
		Humidity      *float64   `json:"humidity"`
		Timestamp     *Timestamp `json:"timestamp"`
		ComfortIndex  *float64   `json:"comfortIndex,omitempty"`
		ForecastIndex *float64   `json:"forecastIndex,omitempty"`
		Kind          string     `json:"type,omitempty"`
	}{r.ID, r.Temperature, r.Humidity, r.Timestamp, r.ComfortIndex, r.ForecastIndex, r.Kind}
	return json.Marshal(out)
}

// Validate checks the record and returns the immutable Reading.
// Every returned error wraps ErrMalformedRecord.
func (r RawReading) Validate() (Reading, error) {
	if r.Temperature == nil {
		return Reading{}, fmt.Errorf("%w: temperature is required", ErrMalformedRecord)
	}
	if r.Humidity == nil {
		return Reading{}, fmt.Errorf("%w: humidity is required", ErrMalformedRecord)
	}
	temp, hum := *r.Temperature, *r.Humidity
	if !isFinite(temp) || temp < MinTemperature || temp > MaxTemperature {
		return Reading{}, fmt.Errorf("%w: temperature out of range: %v", ErrMalformedRecord, temp)
	}
	if !isFinite(hum) || hum < MinHumidity || hum > MaxHumidity {
		return Reading{}, fmt.Errorf("%w: humidity out of range: %v (must be 0-100)", ErrMalformedRecord, hum)
	}
	if r.Timestamp == nil || !r.Timestamp.Valid {
		return Reading{}, fmt.Errorf("%w: timestamp is required", ErrMalformedRecord)
	}
	if r.ComfortIndex != nil && !isFinite(*r.ComfortIndex) {
		return Reading{}, fmt.Errorf("%w: comfort index is not finite", ErrMalformedRecord)
	}
	if r.ForecastIndex != nil && !isFinite(*r.ForecastIndex) {
		return Reading{}, fmt.Errorf("%w: forecast index is not finite", ErrMalformedRecord)
	}

	kind := KindHistory
	switch strings.ToLower(strings.TrimSpace(r.Kind)) {
	case "", string(KindHistory):
	case string(KindPrediction):
		kind = KindPrediction
	default:
		return Reading{}, fmt.Errorf("%w: unknown type %q", ErrMalformedRecord, r.Kind)
	}

	return Reading{
		ID:            r.ID,
		Temperature:   temp,
		Humidity:      hum,
		Timestamp:     r.Timestamp.Time.UTC(),
		ComfortIndex:  copyFloat(r.ComfortIndex),
		ForecastIndex: copyFloat(r.ForecastIndex),
		Kind:          kind,
	}, nil
}

// NormalizeBatch validates raws, drops malformed entries and duplicate
// timestamps (first occurrence in received order wins) and returns the
// survivors newest-first. An all-malformed batch yields an empty slice.
func NormalizeBatch(raws []RawReading) (readings []Reading, dropped int) {
	readings = make([]Reading, 0, len(raws))
	seen := make(map[int64]struct{}, len(raws))
	for _, raw := range raws {
		reading, err := raw.Validate()
		if err != nil {
			dropped++
			continue
		}
		key := reading.Timestamp.UnixNano()
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		readings = append(readings, reading)
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.After(readings[j].Timestamp)
	})
	return readings, dropped
}

// Timestamp decodes either an ISO-8601 string or a numeric epoch.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// UnmarshalJSON never fails on an unparseable value; it leaves Valid false
// so the record is rejected by Validate instead of breaking the whole batch.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if parsed, ok := parseTimeString(s); ok {
			t.Time, t.Valid = parsed, true
		}
		return nil
	}

	// Mongo extended JSON: {"$date": "..."} or {"$date": 1700000000000}
	if data[0] == '{' {
		var ext struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(data, &ext); err != nil || len(ext.Date) == 0 || ext.Date[0] == '{' {
			return nil
		}
		return t.UnmarshalJSON(ext.Date)
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil || !isFinite(n) {
		return nil
	}
	t.Time, t.Valid = fromEpoch(n), true
	return nil
}

// MarshalJSON writes RFC 3339 with millisecond precision, the format the
// Mongo-backed readings API emitted.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	// Numeric strings are treated like numeric epochs.
	if n, err := strconv.ParseFloat(s, 64); err == nil && isFinite(n) {
		return fromEpoch(n), true
	}
	return time.Time{}, false
}

func fromEpoch(n float64) time.Time {
	if math.Abs(n) >= epochMillisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func firstFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// firstID accepts string ids, numeric ids and Mongo extended JSON {"$oid": "..."}.
func firstID(values ...json.RawMessage) string {
	for _, raw := range values {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var oid struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(raw, &oid); err == nil && oid.OID != "" {
			return oid.OID
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

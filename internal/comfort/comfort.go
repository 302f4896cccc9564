// Package comfort derives the thermal comfort index (THI) from temperature and
// relative humidity and classifies it into discomfort tiers.
//
// The canonical formula is the Nieuwolt temperature–humidity index:
//
//	THI = 0.8 × T + (RH / 100) × T / 5
//
// where T is the dry-bulb temperature in °C and RH is relative humidity in
// percent. Humidity is consumed as a fraction. The result is rounded to one
// decimal digit so displayed and logged values stay stable across re-renders.
//
// Classification is a lookup over a fixed ascending table of inclusive lower
// bounds; the highest lower bound not exceeding the index wins. The first
// bound is -Inf, so every real index maps to exactly one tier.
package comfort

import (
	"math"

	"github.com/rewired-gh/comfortdash/internal/models"
)

// Precision is the number of decimal digits kept by Compute.
const Precision = 1

var precisionScale = math.Pow10(Precision)

// Compute returns the comfort index for temperature (°C) and humidity (% RH).
func Compute(temperature, humidity float64) float64 {
	rh := humidity / 100
	thi := 0.8*temperature + rh*temperature/5
	return Round(thi)
}

// Round rounds v half away from zero to Precision decimal digits.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*precisionScale) / precisionScale
}

// IndexOf returns the comfort index to display for r. An upstream index
// attached to the reading is authoritative; Compute is only the fallback.
func IndexOf(r models.Reading) float64 {
	if r.ComfortIndex != nil {
		return *r.ComfortIndex
	}
	return Compute(r.Temperature, r.Humidity)
}

// IsUpstream reports whether IndexOf(r) uses the upstream value.
func IsUpstream(r models.Reading) bool {
	return r.ComfortIndex != nil
}

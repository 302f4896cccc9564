package comfort

import (
	"math"

	"github.com/rewired-gh/comfortdash/internal/models"
)

// Tier ordinals, ordered by increasing discomfort.
const (
	TierComfortable models.Tier = iota
	TierSlightlyUncomfortable
	TierUncomfortable
	TierHeatStress
)

// tiers is evaluated in ascending order of Lower; last match wins.
// Bounds follow Nieuwolt: fully comfortable below 24, partly comfortable
// up to 26, uncomfortable above, with a heat-stress band from 28.
var tiers = []models.Classification{
	{
		Tier:       TierComfortable,
		Lower:      math.Inf(-1),
		Label:      "Comfortable",
		Title:      "Nyaman",
		AlertLevel: models.AlertNormal,
		Emoji:      "😌",
		Advisory:   "Room conditions are optimal. Keep the current ventilation.",
	},
	{
		Tier:       TierSlightlyUncomfortable,
		Lower:      24,
		Label:      "Slightly Uncomfortable",
		Title:      "Agak Hangat",
		AlertLevel: models.AlertWarning,
		Emoji:      "😐",
		Advisory:   "Temperature is rising. Consider switching on a fan.",
	},
	{
		Tier:       TierUncomfortable,
		Lower:      26,
		Label:      "Uncomfortable",
		Title:      "Tidak Nyaman",
		AlertLevel: models.AlertDanger,
		Emoji:      "🥵",
		Advisory:   "Heat warning! Turn on the air conditioning or open the windows now.",
	},
	{
		Tier:       TierHeatStress,
		Lower:      28,
		Label:      "Heat Stress",
		Title:      "Sangat Tidak Nyaman",
		AlertLevel: models.AlertDanger,
		Emoji:      "🔥",
		Advisory:   "Heat stress risk. Cool the room immediately and limit physical activity.",
	},
}

// NoData is shown before the first reading arrives.
var NoData = models.Classification{
	Tier:       -1,
	Lower:      math.NaN(),
	Label:      "No Data",
	Title:      "-",
	AlertLevel: models.AlertNormal,
	Emoji:      "❓",
	Advisory:   "No data available yet.",
}

// Classify maps a comfort index to its tier. NaN maps to the lowest tier.
func Classify(index float64) models.Classification {
	result := tiers[0]
	if math.IsNaN(index) {
		return result
	}
	for _, t := range tiers[1:] {
		if index >= t.Lower {
			result = t
		}
	}
	return result
}

// ClassifyReading classifies the display index of r.
func ClassifyReading(r models.Reading) models.Classification {
	return Classify(IndexOf(r))
}

// Tiers returns a copy of the classification table in ascending order.
func Tiers() []models.Classification {
	out := make([]models.Classification, len(tiers))
	copy(out, tiers)
	return out
}

// UpperBound returns the exclusive upper bound of tier: the next tier's lower
// bound, or +Inf for the last tier.
func UpperBound(tier models.Tier) float64 {
	for i, t := range tiers {
		if t.Tier == tier && i+1 < len(tiers) {
			return tiers[i+1].Lower
		}
	}
	return math.Inf(1)
}

package models

// AlertLevel is the coarse severity used for colouring and notifications.
type AlertLevel string

const (
	AlertNormal  AlertLevel = "normal"
	AlertWarning AlertLevel = "warning"
	AlertDanger  AlertLevel = "danger"
)

// Tier is the ordinal comfort bucket. Higher tiers mean more discomfort.
type Tier int

// Classification is derived on demand from a comfort index and never stored.
type Classification struct {
	Tier       Tier       `json:"tier"`
	Label      string     `json:"label"`
	Title      string     `json:"title"` // Indonesian headline
	AlertLevel AlertLevel `json:"alert_level"`
	Emoji      string     `json:"emoji"`
	Advisory   string     `json:"advisory"`
	Lower      float64    `json:"-"` // inclusive lower bound; -Inf for the first tier
}

// IsAlerting reports whether the classification requires operator attention.
func (c Classification) IsAlerting() bool {
	return c.AlertLevel == AlertDanger
}

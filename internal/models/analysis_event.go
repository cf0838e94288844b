package models

import "time"

// AnalysisEvent is published after every completed analysis for downstream claim processing.
type AnalysisEvent struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id,omitempty"`
	Fingerprint      string    `json:"fingerprint"`
	Filename         string    `json:"filename,omitempty"`
	IsDamaged        bool      `json:"is_damaged"`
	DamageConfidence float64   `json:"damage_confidence"`
	SeverityLabel    string    `json:"severity_label"`
	LocationCount    int       `json:"location_count"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

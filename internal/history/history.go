// Package history keeps the most recent crop analysis results in memory and
// derives the dashboard counts from them.
package history

import (
	"strings"
	"time"
)

// DefaultCapacity is how many records the store retains.
const DefaultCapacity = 50

// Record is one detected object from one analysis. Records are never
// modified after creation; Image must be treated as read-only.
type Record struct {
	ID                string    `json:"id"`
	UserID            int       `json:"user_id"`
	CapturedAt        time.Time `json:"captured_at"`
	CropType          string    `json:"crop_type"`
	DiseaseStatus     string    `json:"disease_status"`
	DiseaseConfidence float64   `json:"disease_confidence"`
	ModelConfidence   float64   `json:"model_confidence"`
	Label             string    `json:"label"`
	Image             []byte    `json:"-"`
}

// Healthy reports whether the record's disease status classifies as healthy.
func (r Record) Healthy() bool { return IsHealthy(r.DiseaseStatus) }

// IsHealthy is the only health classification: the status contains
// "healthy", ignoring case.
func IsHealthy(status string) bool {
	return strings.Contains(strings.ToLower(status), "healthy")
}

// Summary is the dashboard view of one user's records.
type Summary struct {
	Total     int  `json:"total"`
	Healthy   int  `json:"healthy"`
	Unhealthy int  `json:"unhealthy"`
	Attention bool `json:"attention"` // at least one unhealthy record
}

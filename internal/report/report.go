package report

import (
	"time"

	"github.com/wecanfarm/wecanfarm/internal/app"
	"github.com/wecanfarm/wecanfarm/internal/history"
	"github.com/wecanfarm/wecanfarm/internal/market"
)

// Report is a renderable snapshot of one user's detections and the
// marketplace at the time it was generated.
type Report struct {
	Meta       Meta            `json:"report"`
	Summary    history.Summary `json:"summary"`
	Detections []Entry         `json:"detections"`
	Listings   []ListingEntry  `json:"listings"`
}

// Meta identifies who the report was generated for and when.
type Meta struct {
	UserID      int       `json:"user_id"`
	User        string    `json:"user"`
	Role        string    `json:"role"`
	Server      string    `json:"server,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Entry is one detection record. Captured images are never included.
type Entry struct {
	ID                string    `json:"id"`
	CapturedAt        time.Time `json:"captured_at"`
	CropType          string    `json:"crop_type"`
	DiseaseStatus     string    `json:"disease_status"`
	DiseaseConfidence float64   `json:"disease_confidence"`
	ModelConfidence   float64   `json:"model_confidence"`
	Label             string    `json:"label"`
	Healthy           bool      `json:"healthy"`
}

// ListingEntry is one marketplace listing.
type ListingEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Seller         string `json:"seller"`
	Price          string `json:"price"`
	Unit           string `json:"unit"`
	Quantity       string `json:"quantity"`
	HarvestDate    string `json:"harvest_date,omitempty"`
	Organic        bool   `json:"organic"`
	PickupLocation string `json:"pickup_location,omitempty"`
}

// Build collects the signed-in user's history and the current listings.
func Build(a *app.App, now time.Time) (*Report, error) {
	snap, err := a.Session().Current()
	if err != nil {
		return nil, err
	}
	h := a.History()
	r := &Report{
		Meta: Meta{
			UserID:      snap.User.ID,
			User:        snap.User.DisplayName,
			Role:        string(snap.User.Role),
			Server:      a.Client().BaseURL(),
			GeneratedAt: now,
		},
		Summary:    h.Summarize(snap.User.ID),
		Detections: []Entry{},
		Listings:   []ListingEntry{},
	}
	for _, rec := range h.ByUser(snap.User.ID) {
		r.Detections = append(r.Detections, entryOf(rec))
	}
	for _, l := range a.Market().All() {
		r.Listings = append(r.Listings, listingOf(l))
	}
	return r, nil
}

func entryOf(r history.Record) Entry {
	return Entry{
		ID:                r.ID,
		CapturedAt:        r.CapturedAt,
		CropType:          r.CropType,
		DiseaseStatus:     r.DiseaseStatus,
		DiseaseConfidence: r.DiseaseConfidence,
		ModelConfidence:   r.ModelConfidence,
		Label:             r.Label,
		Healthy:           r.Healthy(),
	}
}

func listingOf(l market.Listing) ListingEntry {
	return ListingEntry{
		ID:             l.ID,
		Name:           l.DisplayName(),
		Seller:         l.Seller,
		Price:          l.Price,
		Unit:           string(l.Unit),
		Quantity:       l.Quantity,
		HarvestDate:    l.HarvestDate,
		Organic:        l.Organic,
		PickupLocation: l.PickupLocation,
	}
}

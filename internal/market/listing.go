// Package market holds the produce listings farmers register and the
// marketplace views derived from them.
package market

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the sale unit of a listing.
type Unit string

const (
	UnitKg     Unit = "kg"
	UnitPiece  Unit = "unit"
	UnitBundle Unit = "bundle"
	UnitBox    Unit = "box"
)

// Units lists the accepted units in display order.
var Units = []Unit{UnitKg, UnitPiece, UnitBundle, UnitBox}

// ParseUnit accepts the English names and the Korean labels used by the
// mobile app (개, 묶음, 박스).
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kg", "":
		return UnitKg, nil
	case "unit", "piece", "개":
		return UnitPiece, nil
	case "bundle", "묶음":
		return UnitBundle, nil
	case "box", "박스":
		return UnitBox, nil
	}
	return "", fmt.Errorf("unknown unit %q (want kg, unit, bundle or box)", s)
}

// Listing is a registered product. Listings are immutable once added.
type Listing struct {
	ID             string    `json:"id"`
	CropType       string    `json:"crop_type"`
	Seller         string    `json:"seller"`
	Price          string    `json:"price"`
	Unit           Unit      `json:"unit"`
	Quantity       string    `json:"quantity"`
	HarvestDate    string    `json:"harvest_date"`
	Organic        bool      `json:"organic"`
	PickupLocation string    `json:"pickup_location"`
	Description    string    `json:"description"`
	Images         []string  `json:"images,omitempty"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// DisplayName is the marketplace title: the crop, tagged when organic.
func (l Listing) DisplayName() string {
	if l.Organic {
		return l.CropType + " (organic)"
	}
	return l.CropType
}

// Registration is the product registration form.
type Registration struct {
	CropType       string
	Price          string
	Unit           Unit
	Quantity       string
	HarvestDate    string
	Organic        bool
	PickupLocation string
	Description    string
	Images         []string
}

// ValidationError lists the form fields that must be filled in.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing " + strings.Join(e.Fields, ", ")
}

// Validate checks the required fields.
func (r Registration) Validate() error {
	var missing []string
	if strings.TrimSpace(r.CropType) == "" {
		missing = append(missing, "crop type")
	}
	if strings.TrimSpace(r.Price) == "" {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(r.Quantity) == "" {
		missing = append(missing, "quantity")
	}
	if strings.TrimSpace(r.PickupLocation) == "" {
		missing = append(missing, "pickup location")
	}
	if strings.TrimSpace(r.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// SeedListings returns the sample listings a fresh marketplace starts with.
func SeedListings(now time.Time) []Listing {
	return []Listing{
		{
			CropType:       "Cherry tomato",
			Seller:         "Farmer Kim",
			Price:          "15000",
			Unit:           UnitKg,
			Quantity:       "10",
			HarvestDate:    "2024.07.20",
			Organic:        true,
			PickupLocation: "Gangnam-gu farm, Seoul",
			Description:    "Fresh cherry tomatoes, grown organically.",
			RegisteredAt:   now,
		},
		{
			CropType:       "Basil",
			Seller:         "Farmer Lee",
			Price:          "8000",
			Unit:           UnitBundle,
			Quantity:       "20",
			HarvestDate:    "2024.07.25",
			Organic:        false,
			PickupLocation: "Seocho-gu herb farm, Seoul",
			Description:    "Fragrant basil for your cooking.",
			RegisteredAt:   now,
		},
	}
}

package market

import (
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// FeaturedCount is how many of the newest listings are featured.
const FeaturedCount = 3

// DefaultSeller is used when a registration has no seller name.
const DefaultSeller = "My farm"

// Registry is the in-memory catalog, newest listing first. It has no
// capacity bound and no update or delete.
type Registry struct {
	mu       sync.RWMutex
	listings []Listing
	now      func() time.Time
}

// NewRegistry returns a registry holding seed, in the given order.
func NewRegistry(seed ...Listing) *Registry {
	r := &Registry{now: time.Now}
	for i := len(seed) - 1; i >= 0; i-- {
		r.Add(seed[i])
	}
	return r
}

// Add inserts l at the front. A missing ID is assigned.
func (r *Registry) Add(l Listing) Listing {
	if l.ID == "" {
		l.ID = ksuid.New().String()
	}
	if len(l.Images) > 0 {
		l.Images = append([]string(nil), l.Images...)
	}
	r.mu.Lock()
	r.listings = append([]Listing{l}, r.listings...)
	r.mu.Unlock()
	return l
}

// Register validates reg and adds it as a new listing sold by seller.
func (r *Registry) Register(reg Registration, seller string) (Listing, error) {
	if err := reg.Validate(); err != nil {
		return Listing{}, err
	}
	unit := reg.Unit
	if unit == "" {
		unit = UnitKg
	}
	if strings.TrimSpace(seller) == "" {
		seller = DefaultSeller
	}
	return r.Add(Listing{
		CropType:       strings.TrimSpace(reg.CropType),
		Seller:         seller,
		Price:          strings.TrimSpace(reg.Price),
		Unit:           unit,
		Quantity:       strings.TrimSpace(reg.Quantity),
		HarvestDate:    strings.TrimSpace(reg.HarvestDate),
		Organic:        reg.Organic,
		PickupLocation: strings.TrimSpace(reg.PickupLocation),
		Description:    strings.TrimSpace(reg.Description),
		Images:         reg.Images,
		RegisteredAt:   r.now(),
	}), nil
}

// All returns every listing, newest first.
func (r *Registry) All() []Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Listing, len(r.listings))
	copy(out, r.listings)
	return out
}

// Len returns the number of listings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listings)
}

// Featured returns the newest FeaturedCount listings.
func (r *Registry) Featured() []Listing {
	featured, _ := r.split()
	return featured
}

// Others returns every listing after the featured ones.
func (r *Registry) Others() []Listing {
	_, others := r.split()
	return others
}

// split cuts one snapshot so featured and others never overlap.
func (r *Registry) split() ([]Listing, []Listing) {
	all := r.All()
	n := min(FeaturedCount, len(all))
	return all[:n:n], all[n:]
}

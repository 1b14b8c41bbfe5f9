package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wecanfarm/wecanfarm/internal/api"
)

// ImageEncoder prepares a captured image for storage.
type ImageEncoder func([]byte) ([]byte, error)

// Store is a bounded, newest-first log of detection records shared by the
// whole process. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	records  []Record // newest first
	capacity int

	now    func() time.Time
	newID  func() string
	encode ImageEncoder
	log    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides DefaultCapacity. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock sets the time source for CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithImageEncoder sets the encoder applied to captured images.
func WithImageEncoder(enc ImageEncoder) Option {
	return func(s *Store) { s.encode = enc }
}

// WithLogger sets the logger used for image encoding failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the maximum number of retained records.
func (s *Store) Capacity() int { return s.capacity }

// Record adds one record per detection in resp, newest at the front, and
// drops the oldest records beyond capacity. The created records are
// returned in detection order. A missing image, or one that fails to
// encode, leaves Image empty; encoding errors are logged, not returned.
func (s *Store) Record(userID int, resp api.DetectionResponse, image []byte) []Record {
	if len(resp.Detections) == 0 {
		return nil
	}

	stored := s.prepareImage(image)
	capturedAt := s.now()

	created := make([]Record, len(resp.Detections))
	for i, d := range resp.Detections {
		created[i] = Record{
			ID:                s.newID(),
			UserID:            userID,
			CapturedAt:        capturedAt,
			CropType:          d.CropType,
			DiseaseStatus:     d.DiseaseStatus,
			DiseaseConfidence: d.DiseaseConfidence,
			ModelConfidence:   d.ModelConfidence,
			Label:             d.Label,
			Image:             stored,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Record, 0, min(len(created)+len(s.records), s.capacity))
	for i := len(created) - 1; i >= 0 && len(next) < s.capacity; i-- {
		next = append(next, created[i])
	}
	for _, r := range s.records {
		if len(next) == s.capacity {
			break
		}
		next = append(next, r)
	}
	evicted := len(s.records) + len(created) - len(next)
	s.records = next

	s.log.Debug().Int("user_id", userID).Int("added", len(created)).
		Int("evicted", evicted).Int("size", len(next)).Msg("detections recorded")
	return created
}

func (s *Store) prepareImage(image []byte) []byte {
	if len(image) == 0 {
		return nil
	}
	if s.encode == nil {
		out := make([]byte, len(image))
		copy(out, image)
		return out
	}
	out, err := s.encode(image)
	if err != nil {
		s.log.Warn().Err(err).Int("bytes", len(image)).Msg("captured image not stored")
		return nil
	}
	return out
}

// All returns every record, newest first.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ByUser returns the records of userID in store order (newest first).
func (s *Store) ByUser(userID int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// Recent returns at most n of userID's newest records.
func (s *Store) Recent(userID, n int) []Record {
	recs := s.ByUser(userID)
	if n >= 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs
}

// CountHealthy counts userID's records classified healthy.
func (s *Store) CountHealthy(userID int) int {
	return s.Summarize(userID).Healthy
}

// CountUnhealthy counts userID's records that need attention.
func (s *Store) CountUnhealthy(userID int) int {
	return s.Summarize(userID).Unhealthy
}

// Summarize computes the dashboard counts for userID from one snapshot.
func (s *Store) Summarize(userID int) Summary {
	var sum Summary
	for _, r := range s.ByUser(userID) {
		sum.Total++
		if r.Healthy() {
			sum.Healthy++
		} else {
			sum.Unhealthy++
		}
	}
	sum.Attention = sum.Unhealthy > 0
	return sum
}

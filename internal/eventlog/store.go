package eventlog

import (
	"sync"
	"time"

	"homeguard/internal/domain"

	"github.com/google/uuid"
)

// DefaultCapacity bounds the log when config leaves capacity unset.
const DefaultCapacity = 500

// Store keeps notification records most-recent-first with a fixed capacity.
// Params: capacity, injected clock and id generator.
// Returns: process-local append-only log with eviction of the oldest entries.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	newID    func() string
	capacity int
	records  []domain.NotificationRecord
}

// NewStore creates empty event log.
// Params: capacity (DefaultCapacity when <=0), now (time.Now when nil), newID (uuid when nil).
// Returns: initialized store.
func NewStore(capacity int, now func() time.Time, newID func() string) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{
		now:      now,
		newID:    newID,
		capacity: capacity,
		records:  make([]domain.NotificationRecord, 0, capacity),
	}
}

// Append inserts a new record at the head of the log.
// Params: record draft without identity.
// Returns: stored record with assigned id and timestamp.
func (s *Store) Append(draft domain.RecordDraft) domain.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	timestamp := s.now().UTC()
	if len(s.records) > 0 && timestamp.Before(s.records[0].Timestamp) {
		// Wall clock stepped back; keep insertion order and timestamps aligned.
		timestamp = s.records[0].Timestamp
	}
	record := domain.NotificationRecord{
		ID:          s.newID(),
		Type:        draft.Type,
		Title:       draft.Title,
		Description: draft.Description,
		Timestamp:   timestamp,
		Status:      draft.Status,
		Image:       cloneImage(draft.Image),
	}

	if len(s.records) < s.capacity {
		s.records = append(s.records, domain.NotificationRecord{})
	}
	copy(s.records[1:], s.records[:len(s.records)-1])
	s.records[0] = record
	return cloneRecord(record)
}

// Replace rewrites one record in place through patch function.
// Params: record id and patch applied to a copy of the current record.
// Returns: updated record and false when id is absent (evicted or never stored).
func (s *Store) Replace(id string, patch func(domain.NotificationRecord) domain.NotificationRecord) (domain.NotificationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		current := s.records[i]
		next := patch(cloneRecord(current))
		next.ID = current.ID
		next.Timestamp = current.Timestamp
		next.Image = cloneImage(next.Image)
		s.records[i] = next
		return cloneRecord(next), true
	}
	return domain.NotificationRecord{}, false
}

// Get returns one record by id.
// Params: record id.
// Returns: record copy and presence flag.
func (s *Store) Get(id string) (domain.NotificationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.ID == id {
			return cloneRecord(record), true
		}
	}
	return domain.NotificationRecord{}, false
}

// Snapshot returns all records most-recent-first.
// Params: none.
// Returns: independent copy safe for concurrent readers.
func (s *Store) Snapshot() []domain.NotificationRecord {
	return s.Filter(nil)
}

// Filter returns records accepted by predicate, preserving log order.
// Params: predicate (nil accepts all).
// Returns: independent copy of matching records.
func (s *Store) Filter(keep func(domain.NotificationRecord) bool) []domain.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.NotificationRecord, 0, len(s.records))
	for _, record := range s.records {
		if keep != nil && !keep(record) {
			continue
		}
		out = append(out, cloneRecord(record))
	}
	return out
}

// OfType returns records of one notification type.
func (s *Store) OfType(kind domain.NotificationType) []domain.NotificationRecord {
	return s.Filter(func(record domain.NotificationRecord) bool {
		return record.Type == kind
	})
}

// Len returns current number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Capacity returns maximum number of retained records.
func (s *Store) Capacity() int {
	return s.capacity
}

func cloneRecord(record domain.NotificationRecord) domain.NotificationRecord {
	record.Image = cloneImage(record.Image)
	return record
}

func cloneImage(image *domain.ImageAttachment) *domain.ImageAttachment {
	if image == nil {
		return nil
	}
	copied := *image
	return &copied
}

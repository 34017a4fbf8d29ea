package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/ga-webserver/backend/internal/model/exchange"
)

// ErrEntryNotFound is returned by Get for unknown or evicted ids.
var ErrEntryNotFound = errors.New("exchange not found")

// Service keeps the most recent exchanges in memory so that display text the
// message endpoints do not return can still be inspected.
type Service struct {
	mu      sync.RWMutex
	limit   int
	entries []exchange.Entry
}

// NewService bootstraps a bounded in-memory journal.
func NewService(limit int) *Service {
	if limit < 1 {
		limit = 1
	}
	return &Service{
		limit:   limit,
		entries: make([]exchange.Entry, 0, limit),
	}
}

// Record stores entry, assigning an ID and start time when missing, and
// evicts the oldest entry when full.
func (s *Service) Record(_ context.Context, entry exchange.Entry) exchange.Entry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == s.limit {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, entry)
	return entry
}

// List returns stored entries, newest first.
func (s *Service) List(_ context.Context) []exchange.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]exchange.Entry, len(s.entries))
	for i, entry := range s.entries {
		out[len(s.entries)-1-i] = entry
	}
	return out
}

// Get retrieves an entry by identifier.
func (s *Service) Get(_ context.Context, id string) (exchange.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return exchange.Entry{}, ErrEntryNotFound
}

// Package memory provides an in-process event log. It backs single-node
// deployments with no Postgres and serves as the store fixture in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/udlabs/pulseratings/internal/domain"
)

// EventStore is an append-only in-memory event log ordered by sequence.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event

	// FailAppend aborts the next appends when non-nil. Test use only.
	FailAppend func(ev domain.Event) error
}

// NewEventStore creates an empty log.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append stores an event. Sequences must be strictly increasing; the caller
// owns numbering.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	if s.FailAppend != nil {
		if err := s.FailAppend(ev); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.events); n > 0 && ev.Sequence <= s.events[n-1].Sequence {
		return fmt.Errorf("memory: append sequence %d after %d: %w",
			ev.Sequence, s.events[n-1].Sequence, domain.ErrInvalidSequence)
	}
	s.events = append(s.events, ev)
	return nil
}

// Query returns events with from <= Sequence < to in ascending order.
// to == 0 means to the end of the log.
func (s *EventStore) Query(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, 0, len(s.events))
	for _, ev := range s.events {
		if ev.Sequence < from {
			continue
		}
		if to != 0 && ev.Sequence >= to {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}

// LatestSequence returns the highest stored sequence, zero for an empty log.
func (s *EventStore) LatestSequence(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return 0, nil
	}
	return s.events[len(s.events)-1].Sequence, nil
}

var _ domain.EventLog = (*EventStore)(nil)

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udlabs/pulseratings/internal/domain"
)

func appendN(t *testing.T, s *EventStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Append(ctx, domain.Event{
			Sequence: uint64(i),
			Kind:     domain.EventMarketCreated,
		}))
	}
}

func TestAppendRejectsNonIncreasingSequence(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()
	appendN(t, s, 3)

	err := s.Append(ctx, domain.Event{Sequence: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidSequence)
	err = s.Append(ctx, domain.Event{Sequence: 2})
	assert.ErrorIs(t, err, domain.ErrInvalidSequence)

	require.NoError(t, s.Append(ctx, domain.Event{Sequence: 4}))
}

func TestQueryHalfOpenRange(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()
	appendN(t, s, 5)

	got, err := s.Query(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Sequence)
	assert.Equal(t, uint64(3), got[1].Sequence)

	// to == 0 reads to the end.
	got, err = s.Query(ctx, 4, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(5), got[1].Sequence)

	got, err = s.Query(ctx, 6, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLatestSequence(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	latest, err := s.LatestSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest)

	appendN(t, s, 7)
	latest, err = s.LatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), latest)
}

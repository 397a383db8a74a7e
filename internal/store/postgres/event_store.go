package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udlabs/pulseratings/internal/domain"
)

// EventStore implements domain.EventLog using PostgreSQL. Addresses are
// stored as hex strings and amounts as NUMERIC to preserve arbitrary
// precision.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `sequence, kind, caller, market, url, amount::TEXT,
	paused_state, receiver, emitted_at`

// Append stores one event. The sequence primary key rejects duplicates; a
// replayed append of an already-stored sequence surfaces as a conflict.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	var amount *string
	if ev.Amount != nil {
		str := ev.Amount.String()
		amount = &str
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_events (
			sequence, kind, caller, market, url,
			amount, paused_state, receiver, emitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.Sequence, string(ev.Kind), ev.Caller.Hex(), ev.Market.Hex(),
		ev.URL, amount, ev.PausedState, ev.Receiver.Hex(), ev.EmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %d: %w", ev.Sequence, err)
	}
	return nil
}

// Query returns events with from <= sequence < to in ascending order.
// to == 0 means to the end of the log.
func (s *EventStore) Query(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM ledger_events WHERE sequence >= $1`
	args := []any{int64(from)}
	if to != 0 {
		query += " AND sequence < $2"
		args = append(args, int64(to))
	}
	query += " ORDER BY sequence ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return events, nil
}

// LatestSequence returns the highest stored sequence, zero for an empty log.
func (s *EventStore) LatestSequence(ctx context.Context) (uint64, error) {
	var seq *int64
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(sequence) FROM ledger_events").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: latest sequence: %w", err)
	}
	if seq == nil {
		return 0, nil
	}
	return uint64(*seq), nil
}

func scanEventRows(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			ev               domain.Event
			seq              int64
			kind             string
			caller, market   string
			amount, receiver *string
		)
		if err := rows.Scan(
			&seq, &kind, &caller, &market, &ev.URL,
			&amount, &ev.PausedState, &receiver, &ev.EmittedAt,
		); err != nil {
			return nil, err
		}
		ev.Sequence = uint64(seq)
		ev.Kind = domain.EventKind(kind)
		ev.Caller = common.HexToAddress(caller)
		ev.Market = common.HexToAddress(market)
		if receiver != nil {
			ev.Receiver = common.HexToAddress(*receiver)
		}
		if amount != nil {
			v, ok := new(big.Int).SetString(*amount, 10)
			if !ok {
				return nil, fmt.Errorf("malformed amount %q at sequence %d", *amount, seq)
			}
			ev.Amount = v
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ domain.EventLog = (*EventStore)(nil)

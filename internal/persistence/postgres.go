package persistence

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/zebpay/errs"
)

const (
	trackingUpsertSQL = `
INSERT INTO order_tracking_states (client_order_id, state, updated_at)
VALUES (@client_order_id, @state::jsonb, NOW())
ON CONFLICT (client_order_id)
DO UPDATE SET state = EXCLUDED.state, updated_at = NOW();
`

	trackingDeleteSQL = `
DELETE FROM order_tracking_states WHERE client_order_id = @client_order_id;
`

	trackingSelectSQL = `
SELECT client_order_id, state FROM order_tracking_states;
`
)

// PostgresStore persists tracking states in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to dsn and verifies connectivity.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.New("persistence/connect", errs.CodeTransport, errs.WithCause(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New("persistence/connect", errs.CodeTransport, errs.WithCause(err))
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveTrackingState implements Store.
func (s *PostgresStore) SaveTrackingState(ctx context.Context, clientOrderID string, state json.RawMessage) error {
	args := pgx.NamedArgs{
		"client_order_id": clientOrderID,
		"state":           string(state),
	}
	if _, err := s.pool.Exec(ctx, trackingUpsertSQL, args); err != nil {
		return fmt.Errorf("save tracking state %s: %w", clientOrderID, err)
	}
	return nil
}

// RemoveTrackingState implements Store.
func (s *PostgresStore) RemoveTrackingState(ctx context.Context, clientOrderID string) error {
	args := pgx.NamedArgs{"client_order_id": clientOrderID}
	if _, err := s.pool.Exec(ctx, trackingDeleteSQL, args); err != nil {
		return fmt.Errorf("remove tracking state %s: %w", clientOrderID, err)
	}
	return nil
}

// LoadTrackingStates implements Store.
func (s *PostgresStore) LoadTrackingStates(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, trackingSelectSQL)
	if err != nil {
		return nil, fmt.Errorf("load tracking states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var id string
		var state []byte
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("scan tracking state: %w", err)
		}
		out[id] = json.RawMessage(state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking states: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

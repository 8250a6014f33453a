package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wattsim/wattsim/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. It is an
// append-only audit trail of every order accepted into a round's book.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InsertBatch writes all orders of a round in one batched round trip.
// Re-inserting an already recorded order id is a no-op.
func (s *OrderStore) InsertBatch(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	const query = `
		INSERT INTO market_orders (
			id, market_id, participant_id, product_start, product_end,
			volume, price, fields, submitted_at, accepted_volume, accepted_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range orders {
		fields, err := json.Marshal(o.Fields)
		if err != nil {
			return fmt.Errorf("postgres: marshal fields of order %s: %w", o.ID, err)
		}
		batch.Queue(query,
			o.ID, o.MarketID, o.ParticipantID, o.ProductStart, o.ProductEnd,
			o.Volume, o.Price, fields, o.SubmittedAt,
			o.AcceptedVolume, o.AcceptedPrice,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range orders {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert order batch: %w", err)
		}
	}
	return nil
}

const orderSelectCols = `id, market_id, participant_id, product_start, product_end,
	volume, price, fields, submitted_at, accepted_volume, accepted_price`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var fields []byte

	err := scanner.Scan(
		&o.ID, &o.MarketID, &o.ParticipantID, &o.ProductStart, &o.ProductEnd,
		&o.Volume, &o.Price, &fields, &o.SubmittedAt,
		&o.AcceptedVolume, &o.AcceptedPrice,
	)
	if err != nil {
		return domain.Order{}, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &o.Fields); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListByMarket returns orders submitted to a market, newest first.
func (s *OrderStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "market_id", marketID, opts)
}

// ListByParticipant returns one participant's orders across all markets,
// newest first.
func (s *OrderStore) ListByParticipant(ctx context.Context, participantID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "participant_id", participantID, opts)
}

func (s *OrderStore) list(ctx context.Context, col, val string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM market_orders WHERE ` + col + ` = $1`
	args := []any{val}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND submitted_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND submitted_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY submitted_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by %s: %w", col, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by %s: %w", col, err)
	}
	return orders, nil
}

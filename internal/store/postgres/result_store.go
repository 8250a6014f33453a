package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wattsim/wattsim/internal/domain"
)

// ResultStore implements domain.ResultStore using PostgreSQL. Each product of
// a round becomes one row; the accepted orders of the product are stored
// alongside as JSONB.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a new ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// InsertResult writes all product rows of one round in a single transaction.
// Replaying the same round overwrites the earlier rows.
func (s *ResultStore) InsertResult(ctx context.Context, res domain.ClearingResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin insert result: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO clearing_results (
			market_id, round_start, round_close, cleared_at,
			product_start, product_end, clearing_price, accepted_volume, accepted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (market_id, round_start, product_start, product_end)
		DO UPDATE SET
			round_close = EXCLUDED.round_close,
			cleared_at = EXCLUDED.cleared_at,
			clearing_price = EXCLUDED.clearing_price,
			accepted_volume = EXCLUDED.accepted_volume,
			accepted = EXCLUDED.accepted`

	for _, pr := range res.Products {
		accepted, err := json.Marshal(pr.Accepted)
		if err != nil {
			return fmt.Errorf("postgres: marshal accepted orders: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			res.MarketID, res.RoundStart, res.RoundClose, res.ClearedAt,
			pr.Product.Start, pr.Product.End,
			pr.ClearingPrice, pr.AcceptedVolume, accepted,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert clearing result %s: %w", res.MarketID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit insert result: %w", err)
	}
	return nil
}

// ListByMarket returns past clearing results of a market, newest round first.
// Limit and Offset count rounds, not product rows.
func (s *ResultStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ClearingResult, error) {
	query := `
		SELECT round_start, round_close, cleared_at,
		       product_start, product_end, clearing_price, accepted_volume, accepted
		FROM clearing_results
		WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND round_close >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND round_close <= $%d", argIdx)
		args = append(args, *opts.Until)
	}

	query += " ORDER BY round_close DESC, product_start ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results: %w", err)
	}
	defer rows.Close()

	var results []domain.ClearingResult
	for rows.Next() {
		var (
			roundStart, roundClose, clearedAt time.Time
			pr                                domain.ProductResult
			accepted                          []byte
		)
		err := rows.Scan(&roundStart, &roundClose, &clearedAt,
			&pr.Product.Start, &pr.Product.End,
			&pr.ClearingPrice, &pr.AcceptedVolume, &accepted)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan result row: %w", err)
		}
		pr.Product.Duration = pr.Product.End.Sub(pr.Product.Start)
		if len(accepted) > 0 {
			if err := json.Unmarshal(accepted, &pr.Accepted); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal accepted orders: %w", err)
			}
		}

		if n := len(results); n > 0 && results[n-1].RoundStart.Equal(roundStart) {
			results[n-1].Products = append(results[n-1].Products, pr)
			continue
		}
		results = append(results, domain.ClearingResult{
			MarketID:   marketID,
			RoundStart: roundStart,
			RoundClose: roundClose,
			ClearedAt:  clearedAt,
			Products:   []domain.ProductResult{pr},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate result rows: %w", err)
	}

	// Limit and Offset apply to whole rounds, so they are resolved after
	// grouping rather than in SQL.
	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return nil, nil
		}
		results = results[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(results) {
		results = results[:opts.Limit]
	}
	return results, nil
}

// LastClearingPrice returns the most recently published clearing price of a
// market and the close time of its round. domain.ErrNotFound is returned when
// the market has not yet cleared a priced product.
func (s *ResultStore) LastClearingPrice(ctx context.Context, marketID string) (float64, time.Time, error) {
	const query = `
		SELECT clearing_price, round_close
		FROM clearing_results
		WHERE market_id = $1 AND clearing_price IS NOT NULL
		ORDER BY round_close DESC, product_start DESC
		LIMIT 1`

	var price float64
	var closedAt time.Time
	err := s.pool.QueryRow(ctx, query, marketID).Scan(&price, &closedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, domain.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("postgres: last clearing price: %w", err)
	}
	return price, closedAt, nil
}

package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ResultStore persists clearing results and their accepted orders.
type ResultStore interface {
	InsertResult(ctx context.Context, res ClearingResult) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]ClearingResult, error)
	LastClearingPrice(ctx context.Context, marketID string) (float64, time.Time, error)
}

// OrderStore keeps an append-only audit trail of every order accepted into a
// round's book, before clearing.
type OrderStore interface {
	InsertBatch(ctx context.Context, orders []Order) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Order, error)
	ListByParticipant(ctx context.Context, participantID string, opts ListOpts) ([]Order, error)
}

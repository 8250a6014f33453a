package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// fakeResultStore serves canned rounds.
type fakeResultStore struct {
	results []domain.ClearingResult
	price   float64
	ts      time.Time
	err     error
}

func (f *fakeResultStore) InsertResult(context.Context, domain.ClearingResult) error { return nil }

func (f *fakeResultStore) ListByMarket(context.Context, string, domain.ListOpts) ([]domain.ClearingResult, error) {
	return f.results, f.err
}

func (f *fakeResultStore) LastClearingPrice(context.Context, string) (float64, time.Time, error) {
	return f.price, f.ts, f.err
}

func TestListResults(t *testing.T) {
	price := 42.5
	store := &fakeResultStore{results: []domain.ClearingResult{{
		MarketID:   "eom",
		RoundStart: productStart.Add(-12 * time.Hour),
		RoundClose: productStart.Add(-11 * time.Hour),
		ClearedAt:  productStart.Add(-11 * time.Hour),
		Products: []domain.ProductResult{{
			Product:        domain.Product{Start: productStart, End: productStart.Add(time.Hour)},
			ClearingPrice:  &price,
			AcceptedVolume: 1000,
			Accepted:       []domain.Order{{ID: "a"}, {ID: "b"}},
		}},
	}}}
	h := NewResultHandler(store, slog.New(slog.DiscardHandler))

	rec := serve(h.ListResults, "GET /api/markets/{name}/results", http.MethodGet, "/api/markets/eom/results", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Results []resultView `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	pr := resp.Results[0].Products[0]
	if pr.ClearingPrice == nil || *pr.ClearingPrice != 42.5 || pr.AcceptedVolume != 1000 || pr.AcceptedCount != 2 {
		t.Fatalf("product view = %+v", pr)
	}
}

func TestListResultsWithoutStore(t *testing.T) {
	h := NewResultHandler(nil, slog.New(slog.DiscardHandler))
	rec := serve(h.ListResults, "GET /api/markets/{name}/results", http.MethodGet, "/api/markets/eom/results", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 without a store", rec.Code)
	}
}

func TestLastPrice(t *testing.T) {
	store := &fakeResultStore{price: 38.7, ts: productStart}
	h := NewResultHandler(store, slog.New(slog.DiscardHandler))

	rec := serve(h.LastPrice, "GET /api/markets/{name}/price", http.MethodGet, "/api/markets/eom/price", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		MarketID string  `json:"market_id"`
		Price    float64 `json:"price"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.MarketID != "eom" || resp.Price != 38.7 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestLastPriceNotYetCleared(t *testing.T) {
	store := &fakeResultStore{err: domain.ErrNotFound}
	h := NewResultHandler(store, slog.New(slog.DiscardHandler))
	rec := serve(h.LastPrice, "GET /api/markets/{name}/price", http.MethodGet, "/api/markets/eom/price", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before first clearing", rec.Code)
	}
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// ResultHandler serves clearing history endpoints backed by the result store.
type ResultHandler struct {
	results domain.ResultStore
	logger  *slog.Logger
}

// NewResultHandler creates a ResultHandler with the given store and logger.
func NewResultHandler(results domain.ResultStore, logger *slog.Logger) *ResultHandler {
	return &ResultHandler{results: results, logger: logger}
}

// productResultView is the JSON shape of one cleared product.
type productResultView struct {
	Product        domain.Product `json:"product"`
	ClearingPrice  *float64       `json:"clearing_price"`
	AcceptedVolume float64        `json:"accepted_volume"`
	AcceptedCount  int            `json:"accepted_count"`
}

// resultView is the JSON shape of one cleared round.
type resultView struct {
	MarketID   string              `json:"market_id"`
	RoundStart time.Time           `json:"round_start"`
	RoundClose time.Time           `json:"round_close"`
	ClearedAt  time.Time           `json:"cleared_at"`
	Products   []productResultView `json:"products"`
}

// ListResults returns past clearing rounds of a market, newest first.
// GET /api/markets/{name}/results?limit=50&offset=0&since=...&until=...
func (h *ResultHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}
	name := pathParam(r, "name")
	opts := parseListOpts(r)

	results, err := h.results.ListByMarket(r.Context(), name, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list results failed",
			slog.String("market", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	views := make([]resultView, 0, len(results))
	for _, res := range results {
		rv := resultView{
			MarketID:   res.MarketID,
			RoundStart: res.RoundStart,
			RoundClose: res.RoundClose,
			ClearedAt:  res.ClearedAt,
		}
		for _, pr := range res.Products {
			rv.Products = append(rv.Products, productResultView{
				Product:        pr.Product,
				ClearingPrice:  pr.ClearingPrice,
				AcceptedVolume: pr.AcceptedVolume,
				AcceptedCount:  len(pr.Accepted),
			})
		}
		views = append(views, rv)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": views})
}

// LastPrice returns the most recent clearing price of a market.
// GET /api/markets/{name}/price
func (h *ResultHandler) LastPrice(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}
	name := pathParam(r, "name")

	price, ts, err := h.results.LastClearingPrice(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no clearing price yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": name,
		"price":     price,
		"cleared":   ts,
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// OrderHandler serves the order audit-trail endpoints backed by the order
// store.
type OrderHandler struct {
	orders domain.OrderStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given store and logger.
func NewOrderHandler(orders domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// orderView is the JSON shape of one recorded order.
type orderView struct {
	ID             string            `json:"id"`
	MarketID       string            `json:"market_id"`
	ParticipantID  string            `json:"participant_id"`
	ProductStart   time.Time         `json:"product_start"`
	ProductEnd     time.Time         `json:"product_end"`
	Volume         float64           `json:"volume"`
	Price          float64           `json:"price"`
	Fields         map[string]string `json:"fields,omitempty"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	AcceptedVolume float64           `json:"accepted_volume"`
	AcceptedPrice  float64           `json:"accepted_price"`
}

func orderViews(orders []domain.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView{
			ID:             o.ID,
			MarketID:       o.MarketID,
			ParticipantID:  o.ParticipantID,
			ProductStart:   o.ProductStart,
			ProductEnd:     o.ProductEnd,
			Volume:         o.Volume,
			Price:          o.Price,
			Fields:         o.Fields,
			SubmittedAt:    o.SubmittedAt,
			AcceptedVolume: o.AcceptedVolume,
			AcceptedPrice:  o.AcceptedPrice,
		})
	}
	return views
}

// ListOrders returns recorded orders filtered by market or participant.
// GET /api/orders?market=...  or  GET /api/orders?participant=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeError(w, http.StatusServiceUnavailable, "order store not configured")
		return
	}
	opts := parseListOpts(r)
	q := r.URL.Query()

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case q.Get("market") != "":
		orders, err = h.orders.ListByMarket(r.Context(), q.Get("market"), opts)
	case q.Get("participant") != "":
		orders, err = h.orders.ListByParticipant(r.Context(), q.Get("participant"), opts)
	default:
		writeError(w, http.StatusBadRequest, "market or participant query parameter is required")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orderViews(orders)})
}

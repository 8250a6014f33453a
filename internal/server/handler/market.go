package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// exchange. It is declared locally so the handler package does not depend on
// the concrete exchange implementation.
type MarketService interface {
	Defs() []domain.MarketDef
	Def(name string) (domain.MarketDef, error)
	Products(name string) ([]domain.Product, error)
	Submit(ctx context.Context, name string, o domain.Order) error
	Register(name, participantID string) error
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	exchange MarketService
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(exchange MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		exchange: exchange,
		logger:   logger,
	}
}

// marketView is the JSON shape of a market definition. MarketDef itself
// carries functions (dynamic counts, eligibility) and cannot be marshaled.
type marketView struct {
	Name             string   `json:"name"`
	Mechanism        string   `json:"mechanism"`
	OpeningDuration  string   `json:"opening_duration"`
	MaximumBid       float64  `json:"maximum_bid"`
	MinimumBid       float64  `json:"minimum_bid"`
	MaximumVolume    float64  `json:"maximum_volume"`
	MaximumGradient  float64  `json:"maximum_gradient,omitempty"`
	AmountUnit       string   `json:"amount_unit"`
	AmountTick       float64  `json:"amount_tick"`
	PriceUnit        string   `json:"price_unit"`
	PriceTick        float64  `json:"price_tick"`
	AdditionalFields []string `json:"additional_fields,omitempty"`
	ProductTemplates int      `json:"product_templates"`
}

func viewOf(def domain.MarketDef) marketView {
	return marketView{
		Name:             def.Name,
		Mechanism:        string(def.Mechanism),
		OpeningDuration:  def.OpeningDuration.String(),
		MaximumBid:       def.MaximumBid,
		MinimumBid:       def.MinimumBid,
		MaximumVolume:    def.MaximumVolume,
		MaximumGradient:  def.MaximumGradient,
		AmountUnit:       def.AmountUnit,
		AmountTick:       def.AmountTick,
		PriceUnit:        def.PriceUnit,
		PriceTick:        def.PriceTick,
		AdditionalFields: def.AdditionalFields,
		ProductTemplates: len(def.Products),
	}
}

// ListMarkets returns all configured markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	defs := h.exchange.Defs()
	views := make([]marketView, 0, len(defs))
	for _, def := range defs {
		views = append(views, viewOf(def))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": views})
}

// GetMarket returns a single market by name.
// GET /api/markets/{name}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	def, err := h.exchange.Def(name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(def))
}

// ListProducts returns the tradable products of the market's open round. An
// empty list means the market is between rounds.
// GET /api/markets/{name}/products
func (h *MarketHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	products, err := h.exchange.Products(name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

// submitOrderRequest is the JSON body of an order submission.
type submitOrderRequest struct {
	ParticipantID string            `json:"participant_id"`
	ProductStart  time.Time         `json:"product_start"`
	ProductEnd    time.Time         `json:"product_end"`
	Volume        float64           `json:"volume"` // negative = supply, positive = demand
	Price         float64           `json:"price"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// SubmitOrder validates and books an order into the market's open round.
// POST /api/markets/{name}/orders
func (h *MarketHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	var req submitOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "participant_id is required")
		return
	}
	if req.ProductStart.IsZero() || req.ProductEnd.IsZero() {
		writeError(w, http.StatusBadRequest, "product_start and product_end are required")
		return
	}

	o := domain.Order{
		ParticipantID: req.ParticipantID,
		ProductStart:  req.ProductStart,
		ProductEnd:    req.ProductEnd,
		Volume:        req.Volume,
		Price:         req.Price,
		Fields:        req.Fields,
	}

	err := h.exchange.Submit(r.Context(), name, o)
	if err != nil {
		var rejected *domain.OrderRejectedError
		switch {
		case errors.As(err, &rejected):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"status": "rejected",
				"reason": string(rejected.Reason),
				"detail": rejected.Detail,
			})
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrMarketClosed):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: submit order failed",
				slog.String("market", name),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to submit order")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// registerRequest is the JSON body of a participant registration.
type registerRequest struct {
	ParticipantID string `json:"participant_id"`
}

// RegisterParticipant records a participant with the market so eligibility
// checks admit its orders.
// POST /api/markets/{name}/register
func (h *MarketHandler) RegisterParticipant(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "participant_id is required")
		return
	}

	if err := h.exchange.Register(name, req.ParticipantID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

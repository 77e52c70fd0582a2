package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/cart"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/session"
	"go.uber.org/zap"
)

type CartHandler struct {
	sessions *session.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCartHandler(sessions *session.Registry, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		timeout:  timeout,
		logger:   logger,
	}
}

type AddItemRequestDTO struct {
	ID           string          `json:"id"`
	ProductID    int64           `json:"productId"`
	VariantID    *int64          `json:"variantId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	MaxStock     *int            `json:"maxStock"`
	TastingNotes string          `json:"tastingNotes"`
	VariantName  string          `json:"variantName"`
	Quantity     int             `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type NoticesResponse struct {
	Notices []domain.Notice `json:"notices"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// within runs fn against the caller's cart of the region the request path
// belongs to and returns the resulting snapshot. The region switch, the
// change and the snapshot share one store lock, so concurrent requests of
// the same session on another region cannot redirect the write.
func (h *CartHandler) within(ctx context.Context, r *http.Request, fn func(tx *cart.Tx)) domain.Snapshot {
	sess := h.sessions.Get(ctx, getSessionID(r.Context()), r.URL.Path)
	return sess.Store.Within(ctx, r.URL.Path, fn)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	respondJSON(w, http.StatusOK, h.within(ctx, r, nil))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("invalid add item body", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}
	if req.Price.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "price must not be negative")
		return
	}
	if req.Quantity < 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must not be negative")
		return
	}
	if req.MaxStock != nil && *req.MaxStock < 0 {
		respondError(w, http.StatusBadRequest, "invalid_max_stock", "maxStock must not be negative")
		return
	}

	id := req.ID
	if id == "" {
		id = domain.LineID(req.ProductID, req.VariantID)
	}

	line := domain.CartLine{
		ID:           id,
		ProductID:    req.ProductID,
		VariantID:    req.VariantID,
		Name:         req.Name,
		Price:        req.Price,
		Image:        req.Image,
		MaxStock:     req.MaxStock,
		TastingNotes: req.TastingNotes,
		VariantName:  req.VariantName,
	}

	snap := h.within(ctx, r, func(tx *cart.Tx) {
		tx.AddItem(line, req.Quantity)
	})
	respondJSON(w, http.StatusOK, snap)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	snap := h.within(ctx, r, func(tx *cart.Tx) {
		tx.UpdateQuantity(id, req.Quantity)
	})
	respondJSON(w, http.StatusOK, snap)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	snap := h.within(ctx, r, func(tx *cart.Tx) {
		tx.RemoveItem(id)
	})
	respondJSON(w, http.StatusOK, snap)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap := h.within(ctx, r, func(tx *cart.Tx) {
		tx.Clear()
	})
	respondJSON(w, http.StatusOK, snap)
}

// GetNotices drains the "only N available" notices raised for the session.
func (h *CartHandler) GetNotices(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(r.Context(), getSessionID(r.Context()), r.URL.Path)
	respondJSON(w, http.StatusOK, NoticesResponse{Notices: sess.Inbox.Drain()})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/carmarket/server/internal/middleware"
	"github.com/carmarket/server/internal/model"
	"github.com/carmarket/server/internal/repo"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderHandler serves order endpoints; ownership is enforced by the router's Authorize rules.
type OrderHandler struct {
	orders repo.OrderRepo
	log    *slog.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders repo.OrderRepo, log *slog.Logger) *OrderHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OrderHandler{orders: orders, log: log}
}

type orderResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CarID     string    `json:"carId"`
	Purpose   string    `json:"purpose"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func newOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		ID:        o.ID.String(),
		UserID:    o.UserID.String(),
		CarID:     o.CarID.String(),
		Purpose:   o.Purpose,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
	}
}

// HandleMyOrders handles GET /orders/my?limit=&offset=
func (h *OrderHandler) HandleMyOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	orders, err := h.orders.ListByUser(r.Context(), user.ID, limit, offset)
	if err != nil {
		respondInternal(w, r, h.log, "list orders", err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// HandleOrderDetails handles GET /orders/{orderID}/details
func (h *OrderHandler) HandleOrderDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, h.log, "get order", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": newOrderResponse(order)})
}

// HandleDeleteOrder handles DELETE /orders/{orderID}/delete
func (h *OrderHandler) HandleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, h.log, "delete order", err)
		return
	}
	if user, ok := middleware.GetUser(r.Context()); ok {
		h.log.InfoContext(r.Context(), "order deleted", "order_id", id.String(), "actor_id", user.ID.String())
	}
	respondJSON(w, http.StatusOK, messageResponse{OK: true, Message: "order deleted"})
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "order not found")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

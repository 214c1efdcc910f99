package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rifat-hasan/usergate/libs/httpx"
	"github.com/rifat-hasan/usergate/services/order-service/internal/model"
	"github.com/rifat-hasan/usergate/services/order-service/internal/storage"
)

// OrderStore is the subset of the storage layer the handlers need.
type OrderStore interface {
	Create(ctx context.Context, items []model.Item, userEmail, deliveryAddress string) (model.Order, error)
	List(ctx context.Context, status string) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (model.Order, error)
}

type Handler struct {
	store  OrderStore
	logger *slog.Logger
}

func New(store OrderStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts each route twice: prefix-stripped (how the gateway
// forwards) and under /orders (direct access without the gateway).
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.List)
	mux.HandleFunc("POST /{$}", h.Create)
	mux.HandleFunc("PUT /{id}/status", h.UpdateStatus)
	mux.HandleFunc("GET /orders", h.List)
	mux.HandleFunc("POST /orders", h.Create)
	mux.HandleFunc("PUT /orders/{id}/status", h.UpdateStatus)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	orders, err := h.store.List(r.Context(), status)
	if err != nil {
		h.logger.Error("list orders failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items           []model.Item `json:"items"`
		UserEmail       string       `json:"userEmail"`
		DeliveryAddress string       `json:"deliveryAddress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	if len(req.Items) == 0 || req.UserEmail == "" || req.DeliveryAddress == "" {
		httpx.Error(w, http.StatusBadRequest, "items, userEmail, deliveryAddress required")
		return
	}

	o, err := h.store.Create(r.Context(), req.Items, req.UserEmail, req.DeliveryAddress)
	if err != nil {
		h.logger.Error("create order failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	// Any valid status can be set from any current status; the
	// lifecycle imposes no ordering.
	if !model.ValidStatus(req.Status) {
		httpx.Error(w, http.StatusBadRequest, "invalid status")
		return
	}

	o, err := h.store.UpdateStatus(r.Context(), id, req.Status)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.logger.Error("update order status failed", "order_id", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

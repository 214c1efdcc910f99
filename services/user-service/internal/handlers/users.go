package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rifat-hasan/usergate/libs/httpx"
	"github.com/rifat-hasan/usergate/services/user-service/internal/events"
	"github.com/rifat-hasan/usergate/services/user-service/internal/storage"
)

// VariantV2 enables the extension fields added by the new user-service
// implementation (currently just phone). The v1 instance ignores them.
const (
	VariantV1 = "v1"
	VariantV2 = "v2"
)

// UserStore is the subset of the storage layer the handlers need.
type UserStore interface {
	Create(ctx context.Context, id, email, address string, phone *string) (storage.User, error)
	Get(ctx context.Context, id string) (storage.User, error)
	UpdateEmail(ctx context.Context, id, email string) (storage.User, string, error)
	UpdateAddress(ctx context.Context, id, address string) (storage.User, string, error)
}

type Handler struct {
	store     UserStore
	publisher events.Publisher
	logger    *slog.Logger
	variant   string
}

func New(store UserStore, publisher events.Publisher, logger *slog.Logger, variant string) *Handler {
	if variant != VariantV2 {
		variant = VariantV1
	}
	return &Handler{store: store, publisher: publisher, logger: logger, variant: variant}
}

// Register mounts the routes. Paths are rooted at "/" because the
// gateway strips the "/users" prefix before forwarding.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /{$}", h.Create)
	mux.HandleFunc("GET /{id}", h.Get)
	mux.HandleFunc("PUT /{id}/email", h.UpdateEmail)
	mux.HandleFunc("PUT /{id}/address", h.UpdateAddress)
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(u storage.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Address:   u.Address,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Address string `json:"address"`
		Phone   string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)
	if req.ID == "" || req.Email == "" || req.Address == "" {
		httpx.Error(w, http.StatusBadRequest, "id, email, address required")
		return
	}

	var phone *string
	if h.variant == VariantV2 {
		if p := strings.TrimSpace(req.Phone); p != "" {
			phone = &p
		}
	}

	u, err := h.store.Create(r.Context(), req.ID, req.Email, req.Address, phone)
	if err != nil {
		h.logger.Error("create user failed", "user_id", req.ID, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(u))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("get user failed", "user_id", r.PathValue("id"), "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(u))
}

func (h *Handler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		httpx.Error(w, http.StatusBadRequest, "email required")
		return
	}

	u, oldEmail, err := h.store.UpdateEmail(r.Context(), id, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("update email failed", "user_id", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.publish(r.Context(), events.ChangeEvent{
		UserID:     u.ID,
		OldEmail:   oldEmail,
		NewEmail:   u.Email,
		OldAddress: u.Address,
		NewAddress: u.Address,
	})
	httpx.JSON(w, http.StatusOK, toResponse(u))
}

func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" {
		httpx.Error(w, http.StatusBadRequest, "address required")
		return
	}

	u, oldAddress, err := h.store.UpdateAddress(r.Context(), id, req.Address)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("update address failed", "user_id", id, "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.publish(r.Context(), events.ChangeEvent{
		UserID:     u.ID,
		OldEmail:   u.Email,
		NewEmail:   u.Email,
		OldAddress: oldAddress,
		NewAddress: u.Address,
	})
	httpx.JSON(w, http.StatusOK, toResponse(u))
}

// publish is best-effort: the mutation is already committed, so a
// broker failure is logged and the response still succeeds.
func (h *Handler) publish(ctx context.Context, ev events.ChangeEvent) {
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Error("change event publish failed", "user_id", ev.UserID, "err", err)
	}
}

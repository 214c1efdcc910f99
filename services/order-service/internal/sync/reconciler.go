// Package sync keeps the denormalized user fields on orders consistent
// with the user-identity service by consuming its change events.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ChangeEvent mirrors the payload published by the user-service. The
// two services share the JSON contract, not a Go type.
type ChangeEvent struct {
	UserID     string `json:"userId"`
	OldEmail   string `json:"oldEmail"`
	NewEmail   string `json:"newEmail"`
	OldAddress string `json:"oldAddress"`
	NewAddress string `json:"newAddress"`
}

// OrderSyncStore applies one reconciliation step: every order whose
// user_email equals oldEmail takes the new email and address. The
// update must be atomic with respect to other writers; one SQL
// statement satisfies that.
type OrderSyncStore interface {
	ReassignEmail(ctx context.Context, oldEmail, newEmail, newAddress string) (int64, error)
}

type Reconciler struct {
	store  OrderSyncStore
	logger *slog.Logger
}

func NewReconciler(store OrderSyncStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Apply processes one delivered payload. A returned error means the
// message failed processing and will be dropped by the consumer; the
// store is never left partially updated because the reassignment is a
// single statement.
//
// Matching is keyed on the event's oldEmail. If this event was
// superseded before delivery (a later event already moved the orders'
// email), it matches zero rows and is a silent no-op. That skip is a
// documented property of the protocol, not a bug to compensate for.
func (r *Reconciler) Apply(ctx context.Context, payload []byte) error {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode change event: %w", err)
	}
	if ev.OldEmail == "" || ev.NewEmail == "" || ev.NewAddress == "" {
		return errors.New("change event missing required fields")
	}

	n, err := r.store.ReassignEmail(ctx, ev.OldEmail, ev.NewEmail, ev.NewAddress)
	if err != nil {
		return fmt.Errorf("reassign orders: %w", err)
	}
	r.logger.Info("change event applied",
		"user_id", ev.UserID,
		"old_email", ev.OldEmail,
		"new_email", ev.NewEmail,
		"orders_updated", n,
	)
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rifat-hasan/usergate/libs/db"
	"github.com/rifat-hasan/usergate/services/order-service/internal/model"
)

// ErrNotFound is returned when no order matches the given id.
var ErrNotFound = errors.New("order not found")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, items []model.Item, userEmail, deliveryAddress string) (model.Order, error) {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return model.Order{}, err
	}

	id := uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO orders (id, items, user_email, delivery_address, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, items, user_email, delivery_address, status, created_at, updated_at
	`, id, itemsJSON, userEmail, deliveryAddress, model.StatusUnderProcess)
	return scanOrder(row)
}

// List returns orders, optionally filtered by status. An unknown
// status value simply matches nothing, mirroring a plain store query.
func (r *Repository) List(ctx context.Context, status string) ([]model.Order, error) {
	query := `
		SELECT id, items, user_email, delivery_address, status, created_at, updated_at
		FROM orders
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id, status string) (model.Order, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, items, user_email, delivery_address, status, created_at, updated_at
	`, id, status)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

// ReassignEmail is the reconciliation step for one change event: every
// order still carrying oldEmail moves to the new email and address in
// a single statement, atomic with respect to concurrent writers.
// Orders whose email has already moved past oldEmail match nothing and
// are intentionally left alone.
func (r *Repository) ReassignEmail(ctx context.Context, oldEmail, newEmail, newAddress string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET user_email = $2, delivery_address = $3, updated_at = now()
		WHERE user_email = $1
	`, oldEmail, newEmail, newAddress)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var itemsJSON []byte
	if err := row.Scan(&o.ID, &itemsJSON, &o.UserEmail, &o.DeliveryAddress, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return model.Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rifat-hasan/usergate/libs/db"
)

// ErrNotFound is returned when no user matches the given id.
var ErrNotFound = errors.New("user not found")

type User struct {
	ID        string
	Email     string
	Address   string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, id, email, address string, phone *string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, address, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, address, phone, created_at, updated_at
	`, id, email, address, phone).Scan(&u.ID, &u.Email, &u.Address, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, address, phone, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Address, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateEmail sets the user's email and returns the updated row along
// with the previous email. Old and new values come from one statement
// so a concurrent update cannot slip between the read and the write.
func (r *Repository) UpdateEmail(ctx context.Context, id, email string) (User, string, error) {
	var u User
	var oldEmail string
	err := r.pool.QueryRow(ctx, `
		UPDATE users u
		SET email = $2, updated_at = now()
		FROM (SELECT id, email FROM users WHERE id = $1 FOR UPDATE) prev
		WHERE u.id = prev.id
		RETURNING u.id, u.email, u.address, u.phone, u.created_at, u.updated_at, prev.email
	`, id, email).Scan(&u.ID, &u.Email, &u.Address, &u.Phone, &u.CreatedAt, &u.UpdatedAt, &oldEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	if err != nil {
		return User{}, "", err
	}
	return u, oldEmail, nil
}

// UpdateAddress mirrors UpdateEmail for the address field.
func (r *Repository) UpdateAddress(ctx context.Context, id, address string) (User, string, error) {
	var u User
	var oldAddress string
	err := r.pool.QueryRow(ctx, `
		UPDATE users u
		SET address = $2, updated_at = now()
		FROM (SELECT id, address FROM users WHERE id = $1 FOR UPDATE) prev
		WHERE u.id = prev.id
		RETURNING u.id, u.email, u.address, u.phone, u.created_at, u.updated_at, prev.address
	`, id, address).Scan(&u.ID, &u.Email, &u.Address, &u.Phone, &u.CreatedAt, &u.UpdatedAt, &oldAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	if err != nil {
		return User{}, "", err
	}
	return u, oldAddress, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user record
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO billing.users (id, username, phone_number, pin_hash)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, u.ID, u.Username, u.PhoneNumber, u.PINHash)
	if err != nil {
		if uniqueViolation(err, "uq_users_username") {
			return apperrors.NewConflict("username already registered")
		}
		if uniqueViolation(err, "uq_users_phone_number") {
			return apperrors.NewConflict("phone number already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, phone_number, pin_hash, created_at, updated_at
		FROM billing.users
		WHERE id = $1
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, phone_number, pin_hash, created_at, updated_at
		FROM billing.users
		WHERE username = $1
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

// GetByPhone retrieves a user by phone number
func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	query := `
		SELECT id, username, phone_number, pin_hash, created_at, updated_at
		FROM billing.users
		WHERE phone_number = $1
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, phoneNumber))
}

func (r *UserRepository) scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.PhoneNumber, &u.PINHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user not found")
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create inserts a new pending transaction. A colliding transaction_id comes
// back as a Duplicate error so the caller can return the existing record.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO billing.transactions (id, user_id, package_id, amount, transaction_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, t.ID, t.UserID, t.PackageID, t.Amount, t.TransactionID, t.Status)
	if err != nil {
		if uniqueViolation(err, "uq_transactions_transaction_id") {
			return apperrors.NewDuplicate("transaction_id already exists")
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByExternalID retrieves a transaction by its gateway-facing transaction_id
func (r *TransactionRepository) GetByExternalID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := `
		SELECT id, user_id, package_id, amount, transaction_id, status, created_at, updated_at
		FROM billing.transactions
		WHERE transaction_id = $1
	`
	return r.scanTransaction(r.pool.QueryRow(ctx, query, transactionID))
}

// ListByUser retrieves a user's transactions, newest first
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, package_id, amount, transaction_id, status, created_at, updated_at
		FROM billing.transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

// ListStalePending retrieves pending transactions created before the cutoff,
// oldest first. Used by the reconciliation sweep.
func (r *TransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, package_id, amount, transaction_id, status, created_at, updated_at
		FROM billing.transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending: %w", err)
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

// TransitionStatus moves a pending transaction to a terminal status. The
// guarded UPDATE (status = 'pending') means exactly one of any number of
// concurrent callbacks wins; the rest observe the already-terminal record.
// Returns the transaction and whether this call performed the transition.
func (r *TransactionRepository) TransitionStatus(ctx context.Context, transactionID, status string) (*models.Transaction, bool, error) {
	query := `
		UPDATE billing.transactions SET status = $2, updated_at = now()
		WHERE transaction_id = $1 AND status = 'pending'
		RETURNING id, user_id, package_id, amount, transaction_id, status, created_at, updated_at
	`
	t, err := r.scanTransaction(r.pool.QueryRow(ctx, query, transactionID, status))
	if err == nil {
		return t, true, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	// No pending row: either unknown, or already terminal (idempotent replay).
	existing, err := r.GetByExternalID(ctx, transactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *TransactionRepository) scanTransaction(row pgx.Row) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(&t.ID, &t.UserID, &t.PackageID, &t.Amount, &t.TransactionID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("transaction not found")
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		t := &models.Transaction{}
		err := rows.Scan(&t.ID, &t.UserID, &t.PackageID, &t.Amount, &t.TransactionID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

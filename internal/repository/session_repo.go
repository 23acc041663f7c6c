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

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new active session. The partial unique index on
// (user_id) WHERE is_active makes the check-and-insert atomic: a second
// concurrent StartSession for the same user loses here, not after a stale read.
func (r *SessionRepository) Create(ctx context.Context, s *models.ActiveSession) error {
	query := `
		INSERT INTO billing.active_sessions (id, user_id, package_id, data_used_mb, is_active, start_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, s.ID, s.UserID, s.PackageID, s.DataUsedMB, s.IsActive, s.StartTime)
	if err != nil {
		if uniqueViolation(err, "uq_active_session_per_user") {
			return apperrors.NewConflict("user already has an active session")
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ActiveSession, error) {
	query := `
		SELECT id, user_id, package_id, data_used_mb, is_active, start_time, end_time, created_at, updated_at
		FROM billing.active_sessions
		WHERE id = $1
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByUser retrieves the user's active session, if any
func (r *SessionRepository) GetActiveByUser(ctx context.Context, userID string) (*models.ActiveSession, error) {
	query := `
		SELECT id, user_id, package_id, data_used_mb, is_active, start_time, end_time, created_at, updated_at
		FROM billing.active_sessions
		WHERE user_id = $1 AND is_active
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, userID))
}

// ListByUser retrieves all sessions for a user, newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error) {
	query := `
		SELECT id, user_id, package_id, data_used_mb, is_active, start_time, end_time, created_at, updated_at
		FROM billing.active_sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT 100
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	return r.scanSessions(rows)
}

// ApplyUsage atomically records one metering event against a session: it
// locks the session row, inserts the packet, increments data_used_mb and
// deactivates the session in the same transaction when the package limit is
// reached or the validity window has passed. Concurrent calls for the same
// session serialize on the row lock, so no update is lost.
func (r *SessionRepository) ApplyUsage(ctx context.Context, packetID, sessionID string, deltaMB int64, now time.Time) (*models.ActiveSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `
		SELECT s.id, s.user_id, s.package_id, s.data_used_mb, s.is_active, s.start_time, s.end_time,
		       s.created_at, s.updated_at, p.data_limit_mb, p.duration_hours
		FROM billing.active_sessions s
		JOIN billing.data_packages p ON p.id = s.package_id
		WHERE s.id = $1
		FOR UPDATE OF s
	`
	s := &models.ActiveSession{}
	var limitMB int64
	var durationHours int
	err = tx.QueryRow(ctx, lockQuery, sessionID).Scan(
		&s.ID, &s.UserID, &s.PackageID, &s.DataUsedMB, &s.IsActive, &s.StartTime, &s.EndTime,
		&s.CreatedAt, &s.UpdatedAt, &limitMB, &durationHours,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session not found")
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}

	if !s.IsActive {
		return nil, apperrors.NewInvalidState("session is not active")
	}

	// Validity window ran out: deactivation is committed, the usage is rejected.
	if now.After(s.ExpiresAt(durationHours)) {
		_, err = tx.Exec(ctx,
			`UPDATE billing.active_sessions SET is_active = FALSE, end_time = $2, updated_at = now() WHERE id = $1`,
			sessionID, now)
		if err != nil {
			return nil, fmt.Errorf("expire session: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit expire: %w", err)
		}
		return nil, apperrors.NewInvalidState("session has expired")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO billing.data_packets (id, session_id, data_used_mb, created_at) VALUES ($1, $2, $3, $4)`,
		packetID, sessionID, deltaMB, now)
	if err != nil {
		return nil, fmt.Errorf("insert packet: %w", err)
	}

	newUsed := s.DataUsedMB + deltaMB
	exhausted := newUsed >= limitMB

	updateQuery := `
		UPDATE billing.active_sessions SET
			data_used_mb = $2,
			is_active = $3,
			end_time = CASE WHEN $3 THEN end_time ELSE $4 END,
			updated_at = now()
		WHERE id = $1
		RETURNING id, user_id, package_id, data_used_mb, is_active, start_time, end_time, created_at, updated_at
	`
	updated, err := r.scanSession(tx.QueryRow(ctx, updateQuery, sessionID, newUsed, !exhausted, now))
	if err != nil {
		return nil, fmt.Errorf("update usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit usage: %w", err)
	}
	return updated, nil
}

// Deactivate stops a session. Idempotent: a session that is already inactive
// is returned unchanged with no error.
func (r *SessionRepository) Deactivate(ctx context.Context, id string, now time.Time) (*models.ActiveSession, error) {
	query := `
		UPDATE billing.active_sessions SET is_active = FALSE, end_time = $2, updated_at = now()
		WHERE id = $1 AND is_active
		RETURNING id, user_id, package_id, data_used_mb, is_active, start_time, end_time, created_at, updated_at
	`
	s, err := r.scanSession(r.pool.QueryRow(ctx, query, id, now))
	if err == nil {
		return s, nil
	}
	if apperrors.IsNotFound(err) {
		// Already inactive, or missing entirely.
		return r.GetByID(ctx, id)
	}
	return nil, err
}

func (r *SessionRepository) scanSession(row pgx.Row) (*models.ActiveSession, error) {
	s := &models.ActiveSession{}
	err := row.Scan(&s.ID, &s.UserID, &s.PackageID, &s.DataUsedMB, &s.IsActive, &s.StartTime, &s.EndTime, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session not found")
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) scanSessions(rows pgx.Rows) ([]*models.ActiveSession, error) {
	var sessions []*models.ActiveSession
	for rows.Next() {
		s := &models.ActiveSession{}
		err := rows.Scan(&s.ID, &s.UserID, &s.PackageID, &s.DataUsedMB, &s.IsActive, &s.StartTime, &s.EndTime, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

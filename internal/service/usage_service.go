package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// UsageService owns the ActiveSession and DataPacket lifecycle: it starts
// sessions, accumulates metered usage against them and detects exhaustion.
type UsageService struct {
	users    UserStore
	packages PackageStore
	sessions SessionStore
	packets  PacketStore
}

// NewUsageService creates a new usage accounting service
func NewUsageService(users UserStore, packages PackageStore, sessions SessionStore, packets PacketStore) *UsageService {
	return &UsageService{
		users:    users,
		packages: packages,
		sessions: sessions,
		packets:  packets,
	}
}

// StartSession activates a data package for a user. At most one active
// session per user: a concurrent or repeated start comes back as a conflict
// from the store's unique index, never from a racy read-then-insert.
func (s *UsageService) StartSession(ctx context.Context, userID, packageID string) (*models.ActiveSession, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.packages.GetByID(ctx, packageID); err != nil {
		return nil, err
	}

	session := &models.ActiveSession{
		ID:         uuid.New().String(),
		UserID:     userID,
		PackageID:  packageID,
		DataUsedMB: 0,
		IsActive:   true,
		StartTime:  time.Now().UTC(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("[Usage] Session %s started for user=%s package=%s", session.ID, userID, packageID)
	return session, nil
}

// RecordUsage applies one metering event to a session: packet insert and
// counter increment happen in a single storage transaction, and crossing the
// package limit deactivates the session in that same transaction. Exhaustion
// is terminal. Returns the post-transaction session state.
func (s *UsageService) RecordUsage(ctx context.Context, sessionID string, deltaMB int64) (*models.ActiveSession, error) {
	if deltaMB <= 0 {
		return nil, apperrors.NewValidation("data_used_mb must be positive")
	}

	session, err := s.sessions.ApplyUsage(ctx, uuid.New().String(), sessionID, deltaMB, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if !session.IsActive {
		log.Printf("[Usage] Session %s exhausted at %d MB, deactivated", session.ID, session.DataUsedMB)
	}
	return session, nil
}

// StopSession deactivates a session. Idempotent: stopping an already
// inactive session returns its current state unchanged.
func (s *UsageService) StopSession(ctx context.Context, sessionID string) (*models.ActiveSession, error) {
	session, err := s.sessions.Deactivate(ctx, sessionID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if session.EndTime != nil {
		log.Printf("[Usage] Session %s stopped at %d MB used", session.ID, session.DataUsedMB)
	}
	return session, nil
}

// GetUsage returns the packet total for a session together with whether it
// matches the session counter. A mismatch means the usage-transaction
// invariant was broken and is always worth an operator's attention.
func (s *UsageService) GetUsage(ctx context.Context, sessionID string) (int64, bool, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}

	total, err := s.packets.SumBySession(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}

	consistent := total == session.DataUsedMB
	if !consistent {
		log.Printf("[Usage] ALERT: session %s packet sum %d != counter %d", sessionID, total, session.DataUsedMB)
	}
	return total, consistent, nil
}

// ListSessionsByUser returns a user's sessions, newest first
func (s *UsageService) ListSessionsByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.sessions.ListByUser(ctx, userID)
}

// ListPacketsBySession returns the metering records for a session
func (s *UsageService) ListPacketsBySession(ctx context.Context, sessionID string) ([]*models.DataPacket, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.packets.ListBySession(ctx, sessionID)
}

// GetSession retrieves a session by ID
func (s *UsageService) GetSession(ctx context.Context, sessionID string) (*models.ActiveSession, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

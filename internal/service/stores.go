package service

import (
	"context"
	"time"

	"github.com/wenwu/saas-platform/wifi-billing-service/internal/client"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// Store interfaces consumed by the engines. The pgx repositories satisfy
// them; tests substitute in-memory fakes. Engines hold no state across
// calls — every invariant is enforced at the storage boundary.

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error)
}

type PackageStore interface {
	Create(ctx context.Context, p *models.DataPackage) error
	GetByID(ctx context.Context, id string) (*models.DataPackage, error)
	List(ctx context.Context) ([]*models.DataPackage, error)
	Update(ctx context.Context, p *models.DataPackage) error
	Delete(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, s *models.ActiveSession) error
	GetByID(ctx context.Context, id string) (*models.ActiveSession, error)
	GetActiveByUser(ctx context.Context, userID string) (*models.ActiveSession, error)
	ListByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error)
	ApplyUsage(ctx context.Context, packetID, sessionID string, deltaMB int64, now time.Time) (*models.ActiveSession, error)
	Deactivate(ctx context.Context, id string, now time.Time) (*models.ActiveSession, error)
}

type PacketStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]*models.DataPacket, error)
	SumBySession(ctx context.Context, sessionID string) (int64, error)
}

type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	GetByExternalID(ctx context.Context, transactionID string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Transaction, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.Transaction, error)
	TransitionStatus(ctx context.Context, transactionID, status string) (*models.Transaction, bool, error)
}

// PaymentGateway is the mobile-money gateway contract
type PaymentGateway interface {
	InitiateSTKPush(ctx context.Context, phoneNumber string, amount float64, txnID string) (*client.GatewayCharge, error)
	CheckStatus(ctx context.Context, txnID string) (*client.GatewayCharge, error)
}

package http

import (
	"context"
	"sync"
	"time"

	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/client"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// memStore backs the full service stack for router tests. One struct
// satisfies every store interface so the fixtures stay small.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	packages map[string]*models.DataPackage
	sessions map[string]*models.ActiveSession
	packets  []*models.DataPacket
	txns     map[string]*models.Transaction // keyed by external transaction ID
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*models.User),
		packages: make(map[string]*models.DataPackage),
		sessions: make(map[string]*models.ActiveSession),
		txns:     make(map[string]*models.Transaction),
	}
}

// ==================== UserStore ====================

func (m *memStore) Create(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return apperrors.NewConflict("username already registered")
		}
		if existing.PhoneNumber == u.PhoneNumber {
			return apperrors.NewConflict("phone number already registered")
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("user not found")
}

func (m *memStore) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PhoneNumber == phoneNumber {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("user not found")
}

// packageStore wraps memStore because Create collides between interfaces

type packageStore struct{ *memStore }

func (m packageStore) Create(ctx context.Context, p *models.DataPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.packages {
		if existing.Name == p.Name {
			return apperrors.NewConflict("package name already exists")
		}
	}
	cp := *p
	m.packages[p.ID] = &cp
	return nil
}

func (m packageStore) GetByID(ctx context.Context, id string) (*models.DataPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return nil, apperrors.NewNotFound("package not found")
	}
	cp := *p
	return &cp, nil
}

func (m packageStore) List(ctx context.Context) ([]*models.DataPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DataPackage, 0, len(m.packages))
	for _, p := range m.packages {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m packageStore) Update(ctx context.Context, p *models.DataPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[p.ID]; !ok {
		return apperrors.NewNotFound("package not found")
	}
	cp := *p
	m.packages[p.ID] = &cp
	return nil
}

func (m packageStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[id]; !ok {
		return apperrors.NewNotFound("package not found")
	}
	delete(m.packages, id)
	return nil
}

// ==================== SessionStore ====================

type sessionStore struct{ *memStore }

func (m sessionStore) Create(ctx context.Context, s *models.ActiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.UserID == s.UserID && existing.IsActive {
			return apperrors.NewConflict("user already has an active session")
		}
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m sessionStore) GetByID(ctx context.Context, id string) (*models.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFound("session not found")
	}
	cp := *s
	return &cp, nil
}

func (m sessionStore) GetActiveByUser(ctx context.Context, userID string) (*models.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("no active session for user")
}

func (m sessionStore) ListByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ActiveSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m sessionStore) ApplyUsage(ctx context.Context, packetID, sessionID string, deltaMB int64, now time.Time) (*models.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperrors.NewNotFound("session not found")
	}
	if !s.IsActive {
		return nil, apperrors.NewInvalidState("session is not active")
	}

	pkg, ok := m.packages[s.PackageID]
	if !ok {
		return nil, apperrors.NewNotFound("package not found")
	}

	if now.After(s.ExpiresAt(pkg.DurationHours)) {
		s.IsActive = false
		end := now
		s.EndTime = &end
		return nil, apperrors.NewInvalidState("session has expired")
	}

	m.packets = append(m.packets, &models.DataPacket{
		ID:         packetID,
		SessionID:  sessionID,
		DataUsedMB: deltaMB,
		CreatedAt:  now,
	})

	s.DataUsedMB += deltaMB
	if s.DataUsedMB >= pkg.DataLimitMB {
		s.IsActive = false
		end := now
		s.EndTime = &end
	}

	cp := *s
	return &cp, nil
}

func (m sessionStore) Deactivate(ctx context.Context, id string, now time.Time) (*models.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFound("session not found")
	}
	if s.IsActive {
		s.IsActive = false
		end := now
		s.EndTime = &end
	}
	cp := *s
	return &cp, nil
}

// ==================== PacketStore ====================

type packetStore struct{ *memStore }

func (m packetStore) ListBySession(ctx context.Context, sessionID string) ([]*models.DataPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DataPacket
	for _, p := range m.packets {
		if p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m packetStore) SumBySession(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, p := range m.packets {
		if p.SessionID == sessionID {
			total += p.DataUsedMB
		}
	}
	return total, nil
}

// ==================== TransactionStore ====================

type transactionStore struct{ *memStore }

func (m transactionStore) Create(ctx context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[t.TransactionID]; ok {
		return apperrors.NewDuplicate("transaction_id already exists")
	}
	cp := *t
	m.txns[t.TransactionID] = &cp
	return nil
}

func (m transactionStore) GetByExternalID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[transactionID]
	if !ok {
		return nil, apperrors.NewNotFound("transaction not found")
	}
	cp := *t
	return &cp, nil
}

func (m transactionStore) ListByUser(ctx context.Context, userID string) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, t := range m.txns {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m transactionStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, t := range m.txns {
		if t.Status == models.TxnStatusPending && t.CreatedAt.Before(before) {
			cp := *t
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m transactionStore) TransitionStatus(ctx context.Context, transactionID, status string) (*models.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[transactionID]
	if !ok {
		return nil, false, apperrors.NewNotFound("transaction not found")
	}
	if t.Status != models.TxnStatusPending {
		cp := *t
		return &cp, false, nil
	}
	t.Status = status
	cp := *t
	return &cp, true, nil
}

// ==================== Gateway stub ====================

type stubGateway struct {
	mu     sync.Mutex
	status string // normalized status returned by every call
}

func (g *stubGateway) current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == "" {
		return models.GatewayStatusPending
	}
	return g.status
}

func (g *stubGateway) InitiateSTKPush(ctx context.Context, phoneNumber string, amount float64, txnID string) (*client.GatewayCharge, error) {
	return &client.GatewayCharge{Status: g.current()}, nil
}

func (g *stubGateway) CheckStatus(ctx context.Context, txnID string) (*client.GatewayCharge, error) {
	return &client.GatewayCharge{Status: g.current()}, nil
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/client"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// =====================================================================
// In-memory stores mirroring the Postgres constraints
// =====================================================================

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (f *fakeUserStore) Create(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return apperrors.NewConflict("username already registered")
		}
		if existing.PhoneNumber == u.PhoneNumber {
			return apperrors.NewConflict("phone number already registered")
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("user not found")
}

func (f *fakeUserStore) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.PhoneNumber == phoneNumber {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("user not found")
}

type fakePackageStore struct {
	mu       sync.Mutex
	packages map[string]*models.DataPackage
}

func newFakePackageStore() *fakePackageStore {
	return &fakePackageStore{packages: make(map[string]*models.DataPackage)}
}

func (f *fakePackageStore) Create(ctx context.Context, p *models.DataPackage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.packages {
		if existing.Name == p.Name {
			return apperrors.NewConflict("package name already exists")
		}
	}
	cp := *p
	f.packages[p.ID] = &cp
	return nil
}

func (f *fakePackageStore) GetByID(ctx context.Context, id string) (*models.DataPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packages[id]
	if !ok {
		return nil, apperrors.NewNotFound("package not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakePackageStore) List(ctx context.Context) ([]*models.DataPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.DataPackage, 0, len(f.packages))
	for _, p := range f.packages {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakePackageStore) Update(ctx context.Context, p *models.DataPackage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.packages[p.ID]; !ok {
		return apperrors.NewNotFound("package not found")
	}
	cp := *p
	f.packages[p.ID] = &cp
	return nil
}

func (f *fakePackageStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.packages[id]; !ok {
		return apperrors.NewNotFound("package not found")
	}
	delete(f.packages, id)
	return nil
}

type fakePacketStore struct {
	mu      sync.Mutex
	packets []*models.DataPacket
}

func newFakePacketStore() *fakePacketStore {
	return &fakePacketStore{}
}

func (f *fakePacketStore) append(p *models.DataPacket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.packets = append(f.packets, &cp)
}

func (f *fakePacketStore) ListBySession(ctx context.Context, sessionID string) ([]*models.DataPacket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DataPacket
	for _, p := range f.packets {
		if p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePacketStore) SumBySession(ctx context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, p := range f.packets {
		if p.SessionID == sessionID {
			total += p.DataUsedMB
		}
	}
	return total, nil
}

// fakeSessionStore reproduces the storage-level invariants: the partial
// unique index on active sessions and the single-transaction usage apply.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ActiveSession
	packages *fakePackageStore
	packets  *fakePacketStore
}

func newFakeSessionStore(packages *fakePackageStore, packets *fakePacketStore) *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]*models.ActiveSession),
		packages: packages,
		packets:  packets,
	}
}

func (f *fakeSessionStore) Create(ctx context.Context, s *models.ActiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.UserID == s.UserID && existing.IsActive {
			return apperrors.NewConflict("user already has an active session")
		}
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id string) (*models.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFound("session not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) GetActiveByUser(ctx context.Context, userID string) (*models.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("no active session for user")
}

func (f *fakeSessionStore) ListByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ActiveSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ApplyUsage(ctx context.Context, packetID, sessionID string, deltaMB int64, now time.Time) (*models.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperrors.NewNotFound("session not found")
	}
	if !s.IsActive {
		return nil, apperrors.NewInvalidState("session is not active")
	}

	pkg, err := f.packages.GetByID(ctx, s.PackageID)
	if err != nil {
		return nil, err
	}

	if now.After(s.ExpiresAt(pkg.DurationHours)) {
		s.IsActive = false
		end := now
		s.EndTime = &end
		return nil, apperrors.NewInvalidState("session has expired")
	}

	f.packets.append(&models.DataPacket{
		ID:         packetID,
		SessionID:  sessionID,
		DataUsedMB: deltaMB,
		CreatedAt:  now,
	})

	s.DataUsedMB += deltaMB
	s.UpdatedAt = now
	if s.DataUsedMB >= pkg.DataLimitMB {
		s.IsActive = false
		end := now
		s.EndTime = &end
	}

	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Deactivate(ctx context.Context, id string, now time.Time) (*models.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
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

type fakeTransactionStore struct {
	mu   sync.Mutex
	txns map[string]*models.Transaction // keyed by external transaction ID
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{txns: make(map[string]*models.Transaction)}
}

func (f *fakeTransactionStore) Create(ctx context.Context, t *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.txns[t.TransactionID]; ok {
		return apperrors.NewDuplicate("transaction_id already exists")
	}
	cp := *t
	f.txns[t.TransactionID] = &cp
	return nil
}

func (f *fakeTransactionStore) GetByExternalID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[transactionID]
	if !ok {
		return nil, apperrors.NewNotFound("transaction not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTransactionStore) ListByUser(ctx context.Context, userID string) ([]*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Transaction
	for _, t := range f.txns {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTransactionStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Transaction
	for _, t := range f.txns {
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

func (f *fakeTransactionStore) TransitionStatus(ctx context.Context, transactionID, status string) (*models.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[transactionID]
	if !ok {
		return nil, false, apperrors.NewNotFound("transaction not found")
	}
	if t.Status != models.TxnStatusPending {
		cp := *t
		return &cp, false, nil
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, true, nil
}

// =====================================================================
// Scripted gateway
// =====================================================================

type fakeGateway struct {
	mu sync.Mutex

	initiateCharge *client.GatewayCharge
	initiateErr    error
	initiateCalls  int

	// statusResponses is consumed front to back; the last entry repeats
	statusResponses []statusResponse
	statusCalls     int
}

type statusResponse struct {
	charge *client.GatewayCharge
	err    error
}

func (f *fakeGateway) InitiateSTKPush(ctx context.Context, phoneNumber string, amount float64, txnID string) (*client.GatewayCharge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiateCalls++
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	if f.initiateCharge != nil {
		return f.initiateCharge, nil
	}
	return &client.GatewayCharge{Status: models.GatewayStatusPending}, nil
}

func (f *fakeGateway) CheckStatus(ctx context.Context, txnID string) (*client.GatewayCharge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.statusResponses) == 0 {
		return &client.GatewayCharge{Status: models.GatewayStatusPending}, nil
	}
	resp := f.statusResponses[0]
	if len(f.statusResponses) > 1 {
		f.statusResponses = f.statusResponses[1:]
	}
	return resp.charge, resp.err
}

package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/config"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// SessionActivator starts a session once a payment completes. Satisfied by
// UsageService; split out so payment tests don't need the accounting stack.
type SessionActivator interface {
	StartSession(ctx context.Context, userID, packageID string) (*models.ActiveSession, error)
}

// PaymentService owns the Transaction lifecycle: it creates pending
// transactions idempotently, applies gateway callbacks exactly once and
// reconciles transactions the gateway never called back about.
type PaymentService struct {
	cfg          *config.Config
	users        UserStore
	packages     PackageStore
	transactions TransactionStore
	gateway      PaymentGateway
	activator    SessionActivator
}

// NewPaymentService creates a new payment reconciliation service
func NewPaymentService(
	cfg *config.Config,
	users UserStore,
	packages PackageStore,
	transactions TransactionStore,
	gateway PaymentGateway,
	activator SessionActivator,
) *PaymentService {
	return &PaymentService{
		cfg:          cfg,
		users:        users,
		packages:     packages,
		transactions: transactions,
		gateway:      gateway,
		activator:    activator,
	}
}

// InitiateResult is the outcome of starting a payment
type InitiateResult struct {
	Transaction *models.Transaction
	// GatewayStatus is pending/failed after a gateway response, or
	// "unavailable" when the gateway could not be reached. An unreachable
	// gateway leaves the transaction pending for the reconciliation sweep.
	GatewayStatus string
	// Duplicate marks an idempotent retry that got the pre-existing record
	Duplicate bool
}

// CallbackResult is the outcome of one status reconciliation
type CallbackResult struct {
	Transaction *models.Transaction
	// Session is set when a completed payment activated a package
	Session *models.ActiveSession
	// ActivationErr reports a failed downstream activation. The payment
	// stays completed; this is surfaced for operator remediation.
	ActivationErr error
}

// Initiate creates a pending transaction and asks the gateway to collect the
// charge. The pending row commits before the gateway call so no row lock is
// held across the network; a gateway failure never rolls the record back.
func (s *PaymentService) Initiate(ctx context.Context, userID, packageID string, amount float64, phoneNumber, txnID string) (*InitiateResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}

	if amount <= 0 {
		amount = pkg.Price
	}
	if phoneNumber == "" {
		phoneNumber = user.PhoneNumber
	}
	if txnID == "" {
		txnID = uuid.New().String()
	}

	txn := &models.Transaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		PackageID:     packageID,
		Amount:        amount,
		TransactionID: txnID,
		Status:        models.TxnStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.transactions.Create(ctx, txn); err != nil {
		if apperrors.IsDuplicate(err) {
			existing, getErr := s.transactions.GetByExternalID(ctx, txnID)
			if getErr != nil {
				return nil, getErr
			}
			log.Printf("[Payment] Duplicate initiate for txn_id=%s, returning existing record (status=%s)", txnID, existing.Status)
			return &InitiateResult{Transaction: existing, GatewayStatus: gatewayStatusFor(existing), Duplicate: true}, nil
		}
		return nil, err
	}

	charge, err := s.gateway.InitiateSTKPush(ctx, phoneNumber, amount, txnID)
	if err != nil {
		// Payment failure != record-creation failure: the pending row stands
		// and the Poll path or the sweep settles it later.
		log.Printf("[Payment] Gateway initiate failed for txn_id=%s, transaction stays pending: %v", txnID, err)
		return &InitiateResult{Transaction: txn, GatewayStatus: "unavailable"}, nil
	}

	if charge.Status == models.GatewayStatusFailed {
		result, cbErr := s.ApplyCallback(ctx, txnID, charge.Status)
		if cbErr != nil {
			return nil, cbErr
		}
		return &InitiateResult{Transaction: result.Transaction, GatewayStatus: models.GatewayStatusFailed}, nil
	}

	log.Printf("[Payment] Transaction %s initiated for user=%s package=%s amount=%.2f", txnID, userID, packageID, amount)
	return &InitiateResult{Transaction: txn, GatewayStatus: models.GatewayStatusPending}, nil
}

// ApplyCallback reconciles a normalized gateway status into the transaction.
// It is the single transition point for both gateway callbacks and polling.
// Replayed callbacks for an already-terminal transaction are a no-op that
// returns the existing record, and the activation side effect runs exactly
// once — on the call that performed the pending->completed transition.
func (s *PaymentService) ApplyCallback(ctx context.Context, txnID, gatewayStatus string) (*CallbackResult, error) {
	var target string
	switch gatewayStatus {
	case models.GatewayStatusSuccess:
		target = models.TxnStatusCompleted
	case models.GatewayStatusFailed:
		target = models.TxnStatusFailed
	case models.GatewayStatusPending:
		txn, err := s.transactions.GetByExternalID(ctx, txnID)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{Transaction: txn}, nil
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown gateway status %q", gatewayStatus))
	}

	txn, transitioned, err := s.transactions.TransitionStatus(ctx, txnID, target)
	if err != nil {
		return nil, err
	}

	if !transitioned {
		if txn.Status != target {
			// Out-of-order or conflicting delivery; terminal state never reverses.
			log.Printf("[Payment] Ignoring %s callback for txn_id=%s already %s", target, txnID, txn.Status)
		}
		return &CallbackResult{Transaction: txn}, nil
	}

	log.Printf("[Payment] Transaction %s -> %s", txnID, target)

	result := &CallbackResult{Transaction: txn}
	if target == models.TxnStatusCompleted {
		session, actErr := s.activator.StartSession(ctx, txn.UserID, txn.PackageID)
		if actErr != nil {
			// The money moved; only the activation needs remediation.
			log.Printf("[Payment] ALERT: transaction %s completed but activation failed: %v", txnID, actErr)
			result.ActivationErr = actErr
		} else {
			result.Session = session
		}
	}
	return result, nil
}

// Poll asks the gateway for the current status and applies it through the
// ApplyCallback path. Already-terminal transactions skip the gateway call.
func (s *PaymentService) Poll(ctx context.Context, txnID string) (*CallbackResult, error) {
	txn, err := s.transactions.GetByExternalID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.IsTerminal() {
		return &CallbackResult{Transaction: txn}, nil
	}

	charge, err := s.gateway.CheckStatus(ctx, txnID)
	if err != nil {
		return nil, err
	}
	return s.ApplyCallback(ctx, txnID, charge.Status)
}

// ReconcilePending sweeps transactions stuck in pending longer than the
// configured age and polls the gateway for each. Gateway retries are bounded
// and every attempt is logged — money is involved, nothing retries silently.
// Returns how many transactions reached a terminal status.
func (s *PaymentService) ReconcilePending(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.Reconcile.PendingAge)
	stale, err := s.transactions.ListStalePending(ctx, cutoff, s.cfg.Reconcile.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	log.Printf("[Reconcile] Sweeping %d stale pending transaction(s)", len(stale))

	settled := 0
	for _, txn := range stale {
		result, pollErr := s.pollWithRetry(ctx, txn.TransactionID)
		if pollErr != nil {
			log.Printf("[Reconcile] Giving up on txn_id=%s for this sweep: %v", txn.TransactionID, pollErr)
			continue
		}
		if result.Transaction.IsTerminal() {
			settled++
		}
	}

	log.Printf("[Reconcile] Sweep done: %d settled, %d still pending", settled, len(stale)-settled)
	return settled, nil
}

// pollWithRetry retries transient gateway failures with exponential backoff
func (s *PaymentService) pollWithRetry(ctx context.Context, txnID string) (*CallbackResult, error) {
	backoff := time.Second
	var lastErr error

	for attempt := 1; attempt <= s.cfg.Reconcile.MaxAttempts; attempt++ {
		result, err := s.Poll(ctx, txnID)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !apperrors.IsGatewayUnavailable(err) {
			return nil, err
		}

		log.Printf("[Reconcile] Attempt %d/%d for txn_id=%s failed: %v", attempt, s.cfg.Reconcile.MaxAttempts, txnID, err)
		if attempt < s.cfg.Reconcile.MaxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

// GetByExternalID retrieves a transaction by its gateway-facing ID
func (s *PaymentService) GetByExternalID(ctx context.Context, txnID string) (*models.Transaction, error) {
	return s.transactions.GetByExternalID(ctx, txnID)
}

// ListTransactionsByUser returns a user's payment history
func (s *PaymentService) ListTransactionsByUser(ctx context.Context, userID string) ([]*models.Transaction, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.transactions.ListByUser(ctx, userID)
}

// ListStalePending exposes stuck transactions for operator inspection
func (s *PaymentService) ListStalePending(ctx context.Context, olderThan time.Duration) ([]*models.Transaction, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.Reconcile.PendingAge
	}
	return s.transactions.ListStalePending(ctx, time.Now().UTC().Add(-olderThan), s.cfg.Reconcile.BatchSize)
}

func gatewayStatusFor(t *models.Transaction) string {
	switch t.Status {
	case models.TxnStatusCompleted:
		return models.GatewayStatusSuccess
	case models.TxnStatusFailed:
		return models.GatewayStatusFailed
	default:
		return models.GatewayStatusPending
	}
}

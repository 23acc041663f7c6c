package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/client"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/service"
)

type Handler struct {
	userService    *service.UserService
	packageService *service.PackageService
	usageService   *service.UsageService
	paymentService *service.PaymentService
}

func NewHandler(userService *service.UserService, packageService *service.PackageService, usageService *service.UsageService, paymentService *service.PaymentService) *Handler {
	return &Handler{
		userService:    userService,
		packageService: packageService,
		usageService:   usageService,
		paymentService: paymentService,
	}
}

// respondError maps service errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.StatusCode(err), gin.H{"error": err.Error()})
}

// ==================== User Handlers ====================

// Register creates a new subscriber account
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Username, req.PhoneNumber, req.PIN)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userView(user))
}

// Login exchanges username + PIN for a bearer token
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expiresIn, err := h.userService.Login(c.Request.Context(), req.Username, req.PIN)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	})
}

// GetMe returns the authenticated user's profile
func (h *Handler) GetMe(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID.(string))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, userView(user))
}

// GetUserByPhone resolves a subscriber by phone number (internal, used by
// the hotspot gateway)
func (h *Handler) GetUserByPhone(c *gin.Context) {
	user, err := h.userService.GetByPhone(c.Request.Context(), c.Param("phone"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userView(user))
}

// ==================== Package Handlers ====================

// ListPackages returns all purchasable data packages
func (h *Handler) ListPackages(c *gin.Context) {
	pkgs, err := h.packageService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]models.PackageResponse, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, packageView(p))
	}
	c.JSON(http.StatusOK, gin.H{"packages": out})
}

// GetPackage returns one data package by ID
func (h *Handler) GetPackage(c *gin.Context) {
	pkg, err := h.packageService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, packageView(pkg))
}

// CreatePackage creates a data package (internal admin)
func (h *Handler) CreatePackage(c *gin.Context) {
	var req models.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pkg, err := h.packageService.Create(c.Request.Context(), req.Name, req.Price, req.DataLimitMB, req.DurationHours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, packageView(pkg))
}

// UpdatePackage updates a data package (internal admin)
func (h *Handler) UpdatePackage(c *gin.Context) {
	var req models.UpdatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pkg, err := h.packageService.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, packageView(pkg))
}

// DeletePackage removes a data package (internal admin)
func (h *Handler) DeletePackage(c *gin.Context) {
	if err := h.packageService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ==================== Session Handlers ====================

// StartSession opens a metered session for the authenticated user
func (h *Handler) StartSession(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.usageService.StartSession(c.Request.Context(), userID.(string), req.PackageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionView(sess))
}

// StopSession deactivates the session. Stopping an already stopped session
// returns 200 with its final state.
func (h *Handler) StopSession(c *gin.Context) {
	sess, err := h.ownedSession(c)
	if err != nil {
		respondError(c, err)
		return
	}

	sess, err = h.usageService.StopSession(c.Request.Context(), sess.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionView(sess))
}

// GetSession returns one of the authenticated user's sessions
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.ownedSession(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(sess))
}

// GetSessionUsage returns the session counter cross-checked against the
// packet sum
func (h *Handler) GetSessionUsage(c *gin.Context) {
	sess, err := h.ownedSession(c)
	if err != nil {
		respondError(c, err)
		return
	}

	total, consistent, err := h.usageService.GetUsage(c.Request.Context(), sess.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.UsageResponse{
		SessionID:  sess.ID,
		TotalMB:    total,
		Consistent: consistent,
	})
}

// GetMySessions lists the authenticated user's sessions, newest first
func (h *Handler) GetMySessions(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	sessions, err := h.usageService.ListSessionsByUser(c.Request.Context(), userID.(string))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]models.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// ownedSession loads the session in the :id param and verifies it belongs to
// the authenticated user. A foreign session reads as not found.
func (h *Handler) ownedSession(c *gin.Context) (*models.ActiveSession, error) {
	userID, exists := c.Get("userID")
	if !exists {
		return nil, apperrors.NewUnauthorized("user not authenticated")
	}

	sess, err := h.usageService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID.(string) {
		return nil, apperrors.NewNotFound("session not found")
	}
	return sess, nil
}

// ==================== Metering Handlers (internal) ====================

// RecordUsage applies one metering event from the hotspot gateway
func (h *Handler) RecordUsage(c *gin.Context) {
	var req models.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.usageService.RecordUsage(c.Request.Context(), c.Param("id"), req.DataUsedMB)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := sessionView(sess)
	resp.Exhausted = !sess.IsActive
	c.JSON(http.StatusOK, resp)
}

// ListSessionPackets returns a session's metering records (internal)
func (h *Handler) ListSessionPackets(c *gin.Context) {
	packets, err := h.usageService.ListPacketsBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]models.PacketResponse, 0, len(packets))
	for _, p := range packets {
		out = append(out, packetView(p))
	}
	c.JSON(http.StatusOK, gin.H{"packets": out})
}

// ==================== Payment Handlers ====================

// InitiatePayment creates a pending transaction and triggers an STK push
func (h *Handler) InitiatePayment(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.paymentService.Initiate(c.Request.Context(), userID.(string), req.PackageID, req.Amount, req.PhoneNumber, req.TransactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.InitiatePaymentResponse{
		Transaction:   txnView(result.Transaction),
		GatewayStatus: result.GatewayStatus,
		Duplicate:     result.Duplicate,
	}
	if result.Duplicate {
		resp.Message = "transaction already initiated"
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetPayment returns the authenticated user's transaction by its external ID
func (h *Handler) GetPayment(c *gin.Context) {
	txn, err := h.ownedTransaction(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txnView(txn))
}

// PollPayment queries the gateway for a pending transaction's fate
func (h *Handler) PollPayment(c *gin.Context) {
	txn, err := h.ownedTransaction(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.paymentService.Poll(c.Request.Context(), txn.TransactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, callbackView(result))
}

// GetMyTransactions lists the authenticated user's transactions
func (h *Handler) GetMyTransactions(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	txns, err := h.paymentService.ListTransactionsByUser(c.Request.Context(), userID.(string))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]models.TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, txnView(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (h *Handler) ownedTransaction(c *gin.Context) (*models.Transaction, error) {
	userID, exists := c.Get("userID")
	if !exists {
		return nil, apperrors.NewUnauthorized("user not authenticated")
	}

	txn, err := h.paymentService.GetByExternalID(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID.(string) {
		return nil, apperrors.NewNotFound("transaction not found")
	}
	return txn, nil
}

// ==================== Gateway Callback Handler ====================

// PaymentCallback applies an IntaSend payment notification. Redelivered and
// out-of-order callbacks are acknowledged without changing state.
func (h *Handler) PaymentCallback(c *gin.Context) {
	var req models.PaymentCallback
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.paymentService.ApplyCallback(c.Request.Context(), req.TransactionID, client.NormalizeState(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, callbackView(result))
}

// ==================== Internal Admin Handlers ====================

// ListPendingTransactions returns pending transactions older than the
// reconcile threshold (operator tooling)
func (h *Handler) ListPendingTransactions(c *gin.Context) {
	txns, err := h.paymentService.ListStalePending(c.Request.Context(), 0)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]models.TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, txnView(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// TriggerReconcile runs one reconciliation sweep on demand
func (h *Handler) TriggerReconcile(c *gin.Context) {
	settled, err := h.paymentService.ReconcilePending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "settled": settled})
}

// ==================== Response Views ====================

func userView(u *models.User) models.UserResponse {
	return models.UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func packageView(p *models.DataPackage) models.PackageResponse {
	return models.PackageResponse{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		DataLimitMB:   p.DataLimitMB,
		DurationHours: p.DurationHours,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func sessionView(s *models.ActiveSession) models.SessionResponse {
	resp := models.SessionResponse{
		ID:         s.ID,
		UserID:     s.UserID,
		PackageID:  s.PackageID,
		DataUsedMB: s.DataUsedMB,
		IsActive:   s.IsActive,
		StartTime:  s.StartTime.UTC().Format(time.RFC3339),
	}
	if s.EndTime != nil {
		end := s.EndTime.UTC().Format(time.RFC3339)
		resp.EndTime = &end
	}
	return resp
}

func packetView(p *models.DataPacket) models.PacketResponse {
	return models.PacketResponse{
		ID:         p.ID,
		SessionID:  p.SessionID,
		DataUsedMB: p.DataUsedMB,
		CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func txnView(t *models.Transaction) models.TransactionResponse {
	return models.TransactionResponse{
		ID:            t.ID,
		UserID:        t.UserID,
		PackageID:     t.PackageID,
		Amount:        t.Amount,
		TransactionID: t.TransactionID,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func callbackView(r *service.CallbackResult) models.CallbackResultResponse {
	resp := models.CallbackResultResponse{Transaction: txnView(r.Transaction)}
	if r.Session != nil {
		s := sessionView(r.Session)
		resp.Session = &s
	}
	if r.ActivationErr != nil {
		resp.ActivationError = r.ActivationErr.Error()
	}
	return resp
}

package models

// ==================== User API DTOs ====================

// RegisterRequest is the body for POST /api/v1/users/register
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	PhoneNumber string `json:"phone_number" binding:"required,min=10,max=15"`
	PIN         string `json:"pin" binding:"required,min=4,max=6"` // 4-6 digit PIN
}

// LoginRequest is the body for POST /api/v1/users/login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	PIN      string `json:"pin" binding:"required"`
}

// UserResponse is the public view of a user (never includes the PIN hash)
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
	CreatedAt   string `json:"created_at"`
}

// TokenResponse is returned on successful login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // always "bearer"
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// ==================== Package DTOs ====================

// CreatePackageRequest is the admin body for creating a data package
type CreatePackageRequest struct {
	Name          string  `json:"name" binding:"required,min=2,max=50"`
	Price         float64 `json:"price" binding:"required,gt=0"`
	DataLimitMB   int64   `json:"data_limit_mb" binding:"required,gt=0"`
	DurationHours int     `json:"duration_hours" binding:"required,gt=0"`
}

// UpdatePackageRequest carries optional fields; zero values are ignored
type UpdatePackageRequest struct {
	Name          string  `json:"name,omitempty"`
	Price         float64 `json:"price,omitempty"`
	DataLimitMB   int64   `json:"data_limit_mb,omitempty"`
	DurationHours int     `json:"duration_hours,omitempty"`
}

// PackageResponse is the public view of a data package
type PackageResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	DataLimitMB   int64   `json:"data_limit_mb"`
	DurationHours int     `json:"duration_hours"`
	CreatedAt     string  `json:"created_at"`
}

// ==================== Session DTOs ====================

// StartSessionRequest is the body for POST /api/v1/sessions
type StartSessionRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

// RecordUsageRequest is sent by the hotspot gateway for each metering event
type RecordUsageRequest struct {
	DataUsedMB int64 `json:"data_used_mb" binding:"required,gt=0"`
}

// SessionResponse is the view of a session returned by the accounting engine
type SessionResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	PackageID  string  `json:"package_id"`
	DataUsedMB int64   `json:"data_used_mb"`
	IsActive   bool    `json:"is_active"`
	StartTime  string  `json:"start_time"`
	EndTime    *string `json:"end_time,omitempty"`
	Exhausted  bool    `json:"exhausted,omitempty"` // 本次上报后刚好耗尽
}

// UsageResponse is returned by GET /api/v1/sessions/:id/usage
type UsageResponse struct {
	SessionID  string `json:"session_id"`
	TotalMB    int64  `json:"total_mb"`
	Consistent bool   `json:"consistent"` // packet sum == session counter
}

// PacketResponse is the view of a single metering record
type PacketResponse struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	DataUsedMB int64  `json:"data_used_mb"`
	CreatedAt  string `json:"created_at"`
}

// ==================== Payment DTOs ====================

// InitiatePaymentRequest is the body for POST /api/v1/payments/initiate
type InitiatePaymentRequest struct {
	PackageID string `json:"package_id" binding:"required"`
	// Amount defaults to the package price when omitted
	Amount float64 `json:"amount,omitempty"`
	// PhoneNumber defaults to the account's phone number when omitted
	PhoneNumber string `json:"phone_number,omitempty"`
	// TransactionID lets a retrying caller reuse its idempotency key
	TransactionID string `json:"transaction_id,omitempty"`
}

// TransactionResponse is the view of a payment transaction
type TransactionResponse struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	PackageID     string  `json:"package_id"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
}

// InitiatePaymentResponse is returned after creating the pending transaction
type InitiatePaymentResponse struct {
	Transaction   TransactionResponse `json:"transaction"`
	GatewayStatus string              `json:"gateway_status"` // pending, failed, unavailable
	Duplicate     bool                `json:"duplicate,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// CallbackResultResponse is returned by the callback receiver and Poll.
// ActivationError is operator-facing: payment state stays authoritative even
// when the downstream session activation could not run.
type CallbackResultResponse struct {
	Transaction     TransactionResponse `json:"transaction"`
	Session         *SessionResponse    `json:"session,omitempty"`
	ActivationError string              `json:"activation_error,omitempty"`
}

// ==================== Gateway Callback DTOs ====================

// PaymentCallback is delivered by IntaSend to the callback receiver endpoint
type PaymentCallback struct {
	TransactionID string `json:"txn_id" binding:"required"`
	Status        string `json:"status" binding:"required"`
}

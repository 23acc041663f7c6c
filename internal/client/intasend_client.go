package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// IntaSendClient calls the IntaSend API to collect MPESA payments
type IntaSendClient struct {
	baseURL     string
	publicKey   string
	privateKey  string
	callbackURL string
	httpClient  *http.Client
}

// NewIntaSendClient creates a new IntaSend gateway client
func NewIntaSendClient(baseURL, publicKey, privateKey, callbackURL string, timeout time.Duration) *IntaSendClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &IntaSendClient{
		baseURL:     baseURL,
		publicKey:   publicKey,
		privateKey:  privateKey,
		callbackURL: callbackURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// STKPushRequest is the body for the MPESA STK push endpoint
type STKPushRequest struct {
	PhoneNumber string  `json:"phone_number"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	TxnID       string  `json:"txn_id"`
	CallbackURL string  `json:"callback_url,omitempty"`
}

// GatewayCharge is the normalized result of a gateway call
type GatewayCharge struct {
	// Status is one of models.GatewayStatusPending/Success/Failed
	Status string
	// Raw is the gateway's own state string, kept for logging/remediation
	Raw string
}

type gatewayResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	TxnID  string `json:"txn_id"`
	Error  string `json:"error,omitempty"`
}

// InitiateSTKPush asks IntaSend to push an MPESA payment prompt to the phone.
// Transport errors and gateway-side outages surface as GatewayUnavailable,
// never as a business "failed" status.
func (c *IntaSendClient) InitiateSTKPush(ctx context.Context, phoneNumber string, amount float64, txnID string) (*GatewayCharge, error) {
	// 日志脱敏: 不记录完整手机号
	log.Printf("[IntaSend] Initiating STK push (txn_id: %s, amount: %.2f)", txnID, amount)

	payload := &STKPushRequest{
		PhoneNumber: phoneNumber,
		Amount:      amount,
		Currency:    "KES",
		TxnID:       txnID,
		CallbackURL: c.callbackURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/mpesa-stk/push", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq, txnID)
}

// CheckStatus queries IntaSend for the current state of a transaction
func (c *IntaSendClient) CheckStatus(ctx context.Context, txnID string) (*GatewayCharge, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/transactions/"+txnID+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq, txnID)
}

func (c *IntaSendClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Public-Key", c.publicKey)
	req.Header.Set("X-Private-Key", c.privateKey)
}

func (c *IntaSendClient) do(req *http.Request, txnID string) (*GatewayCharge, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewGatewayUnavailable(fmt.Sprintf("intasend unreachable: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewGatewayUnavailable(fmt.Sprintf("read intasend response: %v", err))
	}

	if resp.StatusCode >= 500 {
		return nil, apperrors.NewGatewayUnavailable(fmt.Sprintf("intasend returned status %d", resp.StatusCode))
	}

	var result gatewayResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apperrors.NewGatewayUnavailable(fmt.Sprintf("decode intasend response: %v (body: %s)", err, string(respBody)))
	}

	raw := result.State
	if raw == "" {
		raw = result.Status
	}

	if resp.StatusCode >= 400 {
		// The gateway rejected the call itself (bad keys, malformed request).
		// That says nothing about the payment, so it is not a business failure.
		errMsg := result.Error
		if errMsg == "" {
			errMsg = string(respBody)
		}
		return nil, apperrors.NewGatewayUnavailable(fmt.Sprintf("intasend returned status %d: %s", resp.StatusCode, errMsg))
	}

	charge := &GatewayCharge{Status: NormalizeState(raw), Raw: raw}
	log.Printf("[IntaSend] txn_id=%s gateway state %q -> %s", txnID, raw, charge.Status)
	return charge, nil
}

// NormalizeState maps IntaSend payment states onto pending/success/failed
func NormalizeState(state string) string {
	switch strings.ToUpper(state) {
	case "COMPLETE", "COMPLETED", "SUCCESS", "SUCCESSFUL":
		return models.GatewayStatusSuccess
	case "FAILED", "CANCELLED", "REJECTED", "TIMEOUT":
		return models.GatewayStatusFailed
	default:
		// PENDING, PROCESSING and anything unrecognized stay pending; the
		// reconciliation sweep will settle them.
		return models.GatewayStatusPending
	}
}

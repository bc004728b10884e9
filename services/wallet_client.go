package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"duel-arena/utils"

	"github.com/shopspring/decimal"
)

// PaymentGateway moves money in and out of the arena. Pay must be safe to
// repeat with the same idempotency key.
type PaymentGateway interface {
	Pay(ctx context.Context, to string, amount decimal.Decimal, idempotencyKey string) (receiptID string, err error)
	VerifyEntry(ctx context.Context, from string, amount decimal.Decimal, txRef string) error
}

// WalletClient talks to the wallet service over HTTP.
type WalletClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewWalletClient(baseURL, token string) *WalletClient {
	return &WalletClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  utils.HTTPClient,
	}
}

type payoutRequest struct {
	To             string          `json:"to"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type payoutResponse struct {
	ReceiptID string `json:"receipt_id"`
}

type verifyRequest struct {
	TxRef  string          `json:"tx_ref"`
	From   string          `json:"from"`
	Amount decimal.Decimal `json:"amount"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// Pay calls POST /api/v1/payouts
func (c *WalletClient) Pay(ctx context.Context, to string, amount decimal.Decimal, idempotencyKey string) (string, error) {
	var out payoutResponse
	status, err := c.post(ctx, "/api/v1/payouts", idempotencyKey, payoutRequest{
		To:             to,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	}, &out)
	if err != nil {
		return "", WrapError(err, CodePaymentFailed, "wallet payout failed").
			With("idempotency_key", idempotencyKey).
			With("status", strconv.Itoa(status))
	}
	if out.ReceiptID == "" {
		return "", NewError(CodePaymentFailed, "wallet payout returned no receipt").With("idempotency_key", idempotencyKey)
	}
	return out.ReceiptID, nil
}

// VerifyEntry calls POST /api/v1/deposits/verify
func (c *WalletClient) VerifyEntry(ctx context.Context, from string, amount decimal.Decimal, txRef string) error {
	var out verifyResponse
	status, err := c.post(ctx, "/api/v1/deposits/verify", "", verifyRequest{TxRef: txRef, From: from, Amount: amount}, &out)
	if err != nil {
		return WrapError(err, CodePaymentFailed, "entry deposit verification failed").
			With("tx_ref", txRef).
			With("status", strconv.Itoa(status))
	}
	if !out.Verified {
		e := NewError(CodePaymentFailed, "entry deposit not verified").With("tx_ref", txRef)
		if out.Reason != "" {
			e = e.With("reason", out.Reason)
		}
		return e
	}
	return nil
}

func (c *WalletClient) post(ctx context.Context, path, idempotencyKey string, body, out any) (int, error) {
	if c.BaseURL == "" {
		return 0, fmt.Errorf("wallet service url is not configured")
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("WalletService %s returned %d: %s", path, resp.StatusCode, string(respBody))
		return resp.StatusCode, fmt.Errorf("wallet service returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode wallet response: %w", err)
	}
	return resp.StatusCode, nil
}

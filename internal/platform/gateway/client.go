package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payrun/internal/domain/payroll"
)

const (
	statusAccepted = "accepted"
	statusRejected = "rejected"

	maxResponseBytes = 64 * 1024
)

var ErrUnexpectedResponse = errors.New("unexpected gateway response")

type Config struct {
	BaseURL  string
	APIKey   string
	Currency string
	Timeout  time.Duration
}

// Client submits B2C salary payments to the mobile-money gateway. Only a
// well-formed answer is treated as an outcome; anything else is returned
// as an error because the payment may or may not have been made.
type Client struct {
	baseURL  string
	apiKey   string
	currency string
	http     *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		currency: cfg.Currency,
		http:     &http.Client{Timeout: timeout},
	}
}

type paymentRequest struct {
	Reference string          `json:"reference"`
	MSISDN    string          `json:"msisdn"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Remarks   string          `json:"remarks"`
}

type paymentResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (c *Client) Submit(ctx context.Context, instruction payroll.PaymentInstruction) (payroll.PaymentAck, error) {
	payload, err := json.Marshal(paymentRequest{
		Reference: instruction.Reference,
		MSISDN:    NormalizeMSISDN(instruction.Phone),
		Amount:    instruction.Amount.Round(2),
		Currency:  c.currency,
		Remarks:   instruction.Remarks,
	})
	if err != nil {
		return payroll.PaymentAck{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/b2c/payments", bytes.NewReader(payload))
	if err != nil {
		return payroll.PaymentAck{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", instruction.Reference)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return payroll.PaymentAck{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return payroll.PaymentAck{}, err
	}

	var decoded paymentResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return payroll.PaymentAck{}, fmt.Errorf("%w: status %d: %v", ErrUnexpectedResponse, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300 && decoded.Status == statusAccepted:
		return payroll.PaymentAck{Accepted: true, Reference: decoded.Reference}, nil
	case resp.StatusCode < 500 && decoded.Status == statusRejected:
		reason := strings.TrimSpace(decoded.Reason)
		if reason == "" {
			reason = "rejected by gateway"
		}
		return payroll.PaymentAck{Accepted: false, Reference: decoded.Reference, Reason: reason}, nil
	default:
		return payroll.PaymentAck{}, fmt.Errorf("%w: status %d, body status %q", ErrUnexpectedResponse, resp.StatusCode, decoded.Status)
	}
}

// NormalizeMSISDN converts local Kenyan numbers (07.., 01.., +254..) to
// the 2547.. form the gateway expects.
func NormalizeMSISDN(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	switch {
	case strings.HasPrefix(digits, "254"):
		return digits
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "254" + digits[1:]
	case len(digits) == 9 && (digits[0] == '7' || digits[0] == '1'):
		return "254" + digits
	}
	return digits
}

package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GatewayLogger defines the logging contract for gateway adapters.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

// SecretProvider resolves the shared signing secret for a gateway. Implemented
// by the secrets fetcher in production and by literals in tests.
type SecretProvider func(ctx context.Context) (string, error)

// StaticSecret wraps a literal secret into a SecretProvider.
func StaticSecret(secret string) SecretProvider {
	return func(context.Context) (string, error) {
		return secret, nil
	}
}

// HMACGatewayConfig configures the synchronous HMAC gateway adapter.
type HMACGatewayConfig struct {
	Name   string
	Secret SecretProvider
	Orders Orchestrator
	Logger GatewayLogger
	Clock  func() time.Time
}

// HMACGateway confirms payments for the synchronous gateway variant: the
// gateway calls back once with a signature over the order and payment
// identifiers. Verification happens before any order state is touched.
type HMACGateway struct {
	name   string
	secret SecretProvider
	orders Orchestrator
	logger GatewayLogger
	clock  func() time.Time
}

var _ Provider = (*HMACGateway)(nil)

// NewHMACGateway constructs the synchronous gateway adapter.
func NewHMACGateway(cfg HMACGatewayConfig) (*HMACGateway, error) {
	if cfg.Secret == nil {
		return nil, errors.New("hmac gateway: secret provider is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("hmac gateway: orchestrator is required")
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "gateway"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &HMACGateway{
		name:   name,
		secret: cfg.Secret,
		orders: cfg.Orders,
		logger: logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (g *HMACGateway) Name() string {
	return g.name
}

// Confirm verifies the callback signature and finalizes the referenced order.
// A repeated callback for an already finalized order is reported as success
// without side effects.
func (g *HMACGateway) Confirm(ctx context.Context, callback Callback) (ConfirmResult, error) {
	gatewayOrderID := strings.TrimSpace(callback.GatewayOrderID)
	paymentID := strings.TrimSpace(callback.PaymentID)
	if gatewayOrderID == "" || paymentID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: gateway order id and payment id are required", ErrInvalidCallback)
	}

	secret, err := g.secret(ctx)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("hmac gateway: resolve secret: %w", err)
	}

	if !verifySignature(secret, signaturePayload(gatewayOrderID, paymentID), callback.Signature) {
		g.logger(ctx, "payments.gateway.signature_mismatch", map[string]any{
			"provider":       g.name,
			"gatewayOrderId": gatewayOrderID,
		})
		return ConfirmResult{}, ErrSignatureMismatch
	}

	order, err := g.orders.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return ConfirmResult{}, err
	}

	result, err := g.orders.Finalize(ctx, order.ID)
	if err != nil {
		return ConfirmResult{}, err
	}

	g.logger(ctx, "payments.gateway.confirmed", map[string]any{
		"provider":    g.name,
		"orderId":     result.OrderID,
		"orderNumber": result.OrderNumber,
		"replay":      result.AlreadyApplied,
	})
	return ConfirmResult{
		OrderID:          result.OrderID,
		OrderNumber:      result.OrderNumber,
		AlreadyFinalized: result.AlreadyApplied,
	}, nil
}

// signaturePayload is the canonical string both sides sign: the gateway's
// order reference and the payment reference joined by a pipe.
func signaturePayload(gatewayOrderID, paymentID string) string {
	return gatewayOrderID + "|" + paymentID
}

// verifySignature recomputes the HMAC-SHA256 over payload and compares it to
// the presented signature in constant time. Hex and base64 encodings are both
// accepted.
func verifySignature(secret, payload, signature string) bool {
	presented, ok := decodeSignature(signature)
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hmac.Equal(mac.Sum(nil), presented)
}

func decodeSignature(signature string) ([]byte, bool) {
	trimmed := strings.TrimSpace(signature)
	if trimmed == "" {
		return nil, false
	}
	if decoded, err := hex.DecodeString(trimmed); err == nil {
		return decoded, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return decoded, true
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return decoded, true
	}
	return nil, false
}

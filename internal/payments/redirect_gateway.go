package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Well-known redirect callback field names. Only the checksum itself is
// excluded from the checksum input; status is signed like any other field.
const (
	redirectChecksumField = "checksum"
	redirectStatusField   = "status"
)

// Redirect gateways report the same payment through both a browser return and
// one or more server callbacks, so success statuses arrive zero or more times
// in any order.
var redirectSuccessStatuses = map[string]struct{}{
	"success":  {},
	"captured": {},
	"paid":     {},
}

var redirectFailureStatuses = map[string]struct{}{
	"failure":   {},
	"failed":    {},
	"cancelled": {},
	"expired":   {},
}

// RedirectGatewayConfig configures the redirect/async gateway adapter.
type RedirectGatewayConfig struct {
	Name   string
	Secret SecretProvider
	Orders Orchestrator
	Logger GatewayLogger
	Clock  func() time.Time
}

// RedirectGateway confirms payments for the redirect gateway variant: the
// shopper returns through the browser and the gateway also posts server-side
// callbacks, each carrying a checksum over the posted fields.
type RedirectGateway struct {
	name   string
	secret SecretProvider
	orders Orchestrator
	logger GatewayLogger
	clock  func() time.Time
}

var _ Provider = (*RedirectGateway)(nil)

// NewRedirectGateway constructs the redirect gateway adapter.
func NewRedirectGateway(cfg RedirectGatewayConfig) (*RedirectGateway, error) {
	if cfg.Secret == nil {
		return nil, errors.New("redirect gateway: secret provider is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("redirect gateway: orchestrator is required")
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "redirect"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &RedirectGateway{
		name:   name,
		secret: cfg.Secret,
		orders: cfg.Orders,
		logger: logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (g *RedirectGateway) Name() string {
	return g.name
}

// Confirm verifies the field checksum and finalizes the referenced order.
// Duplicate callbacks and browser/server races are safe: every verified
// success converges on the same finalized order.
func (g *RedirectGateway) Confirm(ctx context.Context, callback Callback) (ConfirmResult, error) {
	gatewayOrderID := strings.TrimSpace(callback.GatewayOrderID)
	if gatewayOrderID == "" {
		gatewayOrderID = strings.TrimSpace(callback.Fields["orderId"])
	}
	if gatewayOrderID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: gateway order id is required", ErrInvalidCallback)
	}

	checksum := strings.TrimSpace(callback.Signature)
	if checksum == "" {
		checksum = strings.TrimSpace(callback.Fields[redirectChecksumField])
	}

	secret, err := g.secret(ctx)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("redirect gateway: resolve secret: %w", err)
	}

	if !verifySignature(secret, checksumPayload(callback.Fields), checksum) {
		g.logger(ctx, "payments.redirect.signature_mismatch", map[string]any{
			"provider":       g.name,
			"gatewayOrderId": gatewayOrderID,
		})
		return ConfirmResult{}, ErrSignatureMismatch
	}

	status := strings.ToLower(strings.TrimSpace(callback.Status))
	if status == "" {
		status = strings.ToLower(strings.TrimSpace(callback.Fields[redirectStatusField]))
	}
	if _, ok := redirectSuccessStatuses[status]; !ok {
		if _, failed := redirectFailureStatuses[status]; failed {
			g.logger(ctx, "payments.redirect.ignored", map[string]any{
				"provider":       g.name,
				"gatewayOrderId": gatewayOrderID,
				"status":         status,
			})
			return ConfirmResult{Ignored: true}, nil
		}
		return ConfirmResult{}, fmt.Errorf("%w: unrecognised status %q", ErrInvalidCallback, status)
	}

	order, err := g.orders.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return ConfirmResult{}, err
	}

	result, err := g.orders.Finalize(ctx, order.ID)
	if err != nil {
		return ConfirmResult{}, err
	}

	g.logger(ctx, "payments.redirect.confirmed", map[string]any{
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

// checksumPayload builds the canonical checksum input: every posted field
// except the checksum itself, sorted by key, joined as key=value pairs.
func checksumPayload(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if key == redirectChecksumField {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+fields[key])
	}
	return strings.Join(parts, "&")
}

package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const stripeOrderMetadataKey = "orderId"

// StripeProviderConfig configures the card provider backed by Stripe Checkout.
type StripeProviderConfig struct {
	WebhookSecret SecretProvider
	Orders        Orchestrator
	Logger        GatewayLogger
	Clock         func() time.Time
	// Tolerance bounds the accepted age of a webhook timestamp. Zero keeps
	// the library default.
	Tolerance time.Duration
}

// StripeProvider confirms card payments from Stripe webhook events. Only
// checkout.session.completed drives finalization; other event types are
// acknowledged and dropped.
type StripeProvider struct {
	secret    SecretProvider
	orders    Orchestrator
	logger    GatewayLogger
	clock     func() time.Time
	tolerance time.Duration
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs the Stripe card provider.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	if cfg.WebhookSecret == nil {
		return nil, errors.New("stripe: webhook secret provider is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("stripe: orchestrator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	return &StripeProvider{
		secret: cfg.WebhookSecret,
		orders: cfg.Orders,
		logger: logger,
		clock: func() time.Time {
			return clock().UTC()
		},
		tolerance: tolerance,
	}, nil
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

// Confirm verifies the webhook signature, extracts the completed checkout
// session and finalizes the order it references. Stripe retries webhooks, so
// replays resolve to the already finalized order.
func (p *StripeProvider) Confirm(ctx context.Context, callback Callback) (ConfirmResult, error) {
	if len(callback.RawBody) == 0 {
		return ConfirmResult{}, fmt.Errorf("%w: empty webhook payload", ErrInvalidCallback)
	}
	header := strings.TrimSpace(callback.SignatureHead)
	if header == "" {
		header = strings.TrimSpace(callback.Signature)
	}
	if header == "" {
		return ConfirmResult{}, ErrSignatureMismatch
	}

	secret, err := p.secret(ctx)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("stripe: resolve webhook secret: %w", err)
	}

	event, err := webhook.ConstructEventWithTolerance(callback.RawBody, header, secret, p.tolerance)
	if err != nil {
		p.logger(ctx, "payments.stripe.signature_mismatch", map[string]any{
			"error": err.Error(),
		})
		return ConfirmResult{}, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	if event.Type != "checkout.session.completed" {
		p.logger(ctx, "payments.stripe.ignored", map[string]any{
			"eventType": string(event.Type),
		})
		return ConfirmResult{Ignored: true}, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return ConfirmResult{}, fmt.Errorf("%w: decode checkout session: %v", ErrInvalidCallback, err)
	}

	orderID := strings.TrimSpace(session.ClientReferenceID)
	if orderID == "" {
		orderID = strings.TrimSpace(session.Metadata[stripeOrderMetadataKey])
	}
	if orderID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: checkout session carries no order reference", ErrInvalidCallback)
	}

	result, err := p.orders.Finalize(ctx, orderID)
	if err != nil {
		return ConfirmResult{}, err
	}

	p.logger(ctx, "payments.stripe.confirmed", map[string]any{
		"orderId":     result.OrderID,
		"orderNumber": result.OrderNumber,
		"replay":      result.AlreadyApplied,
		"eventId":     event.ID,
	})
	return ConfirmResult{
		OrderID:          result.OrderID,
		OrderNumber:      result.OrderNumber,
		AlreadyFinalized: result.AlreadyApplied,
	}, nil
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CODProviderConfig configures the cash-on-delivery provider.
type CODProviderConfig struct {
	Orders Orchestrator
	Logger GatewayLogger
}

// CODProvider finalizes cash-on-delivery orders. There is no external gateway
// to verify: placement itself is the confirmation signal and the amount stays
// due until delivery.
type CODProvider struct {
	orders Orchestrator
	logger GatewayLogger
}

var _ Provider = (*CODProvider)(nil)

// NewCODProvider constructs the cash-on-delivery provider.
func NewCODProvider(cfg CODProviderConfig) (*CODProvider, error) {
	if cfg.Orders == nil {
		return nil, errors.New("cod: orchestrator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CODProvider{orders: cfg.Orders, logger: logger}, nil
}

func (p *CODProvider) Name() string {
	return "cod"
}

func (p *CODProvider) Confirm(ctx context.Context, callback Callback) (ConfirmResult, error) {
	orderID := strings.TrimSpace(callback.OrderID)
	if orderID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: order id is required", ErrInvalidCallback)
	}

	result, err := p.orders.Finalize(ctx, orderID)
	if err != nil {
		return ConfirmResult{}, err
	}

	p.logger(ctx, "payments.cod.confirmed", map[string]any{
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

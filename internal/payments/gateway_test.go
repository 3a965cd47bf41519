package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/clovermart/storefront/internal/services"
)

type stubOrchestrator struct {
	orders        map[string]services.Order
	result        services.FinalizeResult
	finalizeErr   error
	finalizeCalls []string
}

func (s *stubOrchestrator) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (services.Order, error) {
	for _, order := range s.orders {
		if order.GatewayOrderID == gatewayOrderID {
			return order, nil
		}
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrchestrator) Finalize(ctx context.Context, orderID string) (services.FinalizeResult, error) {
	s.finalizeCalls = append(s.finalizeCalls, orderID)
	if s.finalizeErr != nil {
		return services.FinalizeResult{}, s.finalizeErr
	}
	result := s.result
	if result.OrderID == "" {
		result.OrderID = orderID
	}
	return result, nil
}

func signHex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHMACGatewayConfirm(t *testing.T) {
	orchestrator := &stubOrchestrator{
		orders: map[string]services.Order{
			"ord_1": {ID: "ord_1", GatewayOrderID: "gw_123"},
		},
		result: services.FinalizeResult{OrderID: "ord_1", OrderNumber: 1042},
	}
	gateway, err := NewHMACGateway(HMACGatewayConfig{
		Secret: StaticSecret("topsecret"),
		Orders: orchestrator,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	result, err := gateway.Confirm(context.Background(), Callback{
		GatewayOrderID: "gw_123",
		PaymentID:      "pay_9",
		Signature:      signHex("topsecret", "gw_123|pay_9"),
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.OrderNumber != 1042 || result.OrderID != "ord_1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(orchestrator.finalizeCalls) != 1 {
		t.Fatalf("finalize called %d times, want 1", len(orchestrator.finalizeCalls))
	}
}

func TestHMACGatewaySignatureMismatch(t *testing.T) {
	orchestrator := &stubOrchestrator{
		orders: map[string]services.Order{
			"ord_1": {ID: "ord_1", GatewayOrderID: "gw_123"},
		},
	}
	gateway, err := NewHMACGateway(HMACGatewayConfig{
		Secret: StaticSecret("topsecret"),
		Orders: orchestrator,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	_, err = gateway.Confirm(context.Background(), Callback{
		GatewayOrderID: "gw_123",
		PaymentID:      "pay_9",
		Signature:      signHex("wrong-secret", "gw_123|pay_9"),
	})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
	if len(orchestrator.finalizeCalls) != 0 {
		t.Fatal("finalize must not run on signature mismatch")
	}
}

func TestHMACGatewayReplayIsIdempotent(t *testing.T) {
	orchestrator := &stubOrchestrator{
		orders: map[string]services.Order{
			"ord_1": {ID: "ord_1", GatewayOrderID: "gw_123"},
		},
		result: services.FinalizeResult{OrderID: "ord_1", OrderNumber: 77, AlreadyApplied: true},
	}
	gateway, err := NewHMACGateway(HMACGatewayConfig{
		Secret: StaticSecret("topsecret"),
		Orders: orchestrator,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	result, err := gateway.Confirm(context.Background(), Callback{
		GatewayOrderID: "gw_123",
		PaymentID:      "pay_9",
		Signature:      signHex("topsecret", "gw_123|pay_9"),
	})
	if err != nil {
		t.Fatalf("confirm replay: %v", err)
	}
	if !result.AlreadyFinalized {
		t.Fatal("replay should report AlreadyFinalized")
	}
	if result.OrderNumber != 77 {
		t.Fatalf("order number = %d, want existing 77", result.OrderNumber)
	}
}

func TestHMACGatewayRequiresIdentifiers(t *testing.T) {
	gateway, err := NewHMACGateway(HMACGatewayConfig{
		Secret: StaticSecret("s"),
		Orders: &stubOrchestrator{},
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	if _, err := gateway.Confirm(context.Background(), Callback{PaymentID: "pay_9"}); !errors.Is(err, ErrInvalidCallback) {
		t.Fatalf("err = %v, want ErrInvalidCallback", err)
	}
}

func redirectFields(secret string, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[redirectChecksumField] = signHex(secret, checksumPayload(out))
	return out
}

func TestRedirectGatewayConfirm(t *testing.T) {
	orchestrator := &stubOrchestrator{
		orders: map[string]services.Order{
			"ord_2": {ID: "ord_2", GatewayOrderID: "rd_55"},
		},
		result: services.FinalizeResult{OrderID: "ord_2", OrderNumber: 2001},
	}
	gateway, err := NewRedirectGateway(RedirectGatewayConfig{
		Secret: StaticSecret("redirect-secret"),
		Orders: orchestrator,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	fields := redirectFields("redirect-secret", map[string]string{
		"orderId": "rd_55",
		"status":  "success",
		"amount":  "30000",
	})
	result, err := gateway.Confirm(context.Background(), Callback{Fields: fields})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.OrderNumber != 2001 {
		t.Fatalf("order number = %d, want 2001", result.OrderNumber)
	}
}

func TestRedirectGatewayTamperedFields(t *testing.T) {
	orchestrator := &stubOrchestrator{
		orders: map[string]services.Order{
			"ord_2": {ID: "ord_2", GatewayOrderID: "rd_55"},
		},
	}
	gateway, err := NewRedirectGateway(RedirectGatewayConfig{
		Secret: StaticSecret("redirect-secret"),
		Orders: orchestrator,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	fields := redirectFields("redirect-secret", map[string]string{
		"orderId": "rd_55",
		"status":  "success",
		"amount":  "30000",
	})
	fields["amount"] = "1"

	if _, err := gateway.Confirm(context.Background(), Callback{Fields: fields}); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
	if len(orchestrator.finalizeCalls) != 0 {
		t.Fatal("finalize must not run on tampered callback")
	}
}

func TestRedirectGatewayIgnoresFailureStatus(t *testing.T) {
	orchestrator := &stubOrchestrator{
		orders: map[string]services.Order{
			"ord_2": {ID: "ord_2", GatewayOrderID: "rd_55"},
		},
	}
	gateway, err := NewRedirectGateway(RedirectGatewayConfig{
		Secret: StaticSecret("redirect-secret"),
		Orders: orchestrator,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	fields := redirectFields("redirect-secret", map[string]string{
		"orderId": "rd_55",
		"status":  "failed",
	})
	result, err := gateway.Confirm(context.Background(), Callback{Fields: fields})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !result.Ignored {
		t.Fatal("failure callback should be ignored, not finalized")
	}
	if len(orchestrator.finalizeCalls) != 0 {
		t.Fatal("finalize must not run for a failed payment")
	}
}

func TestRedirectGatewayDuplicateCallbacksConverge(t *testing.T) {
	orchestrator := &stubOrchestrator{
		orders: map[string]services.Order{
			"ord_2": {ID: "ord_2", GatewayOrderID: "rd_55"},
		},
		result: services.FinalizeResult{OrderID: "ord_2", OrderNumber: 2001},
	}
	gateway, err := NewRedirectGateway(RedirectGatewayConfig{
		Secret: StaticSecret("redirect-secret"),
		Orders: orchestrator,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	fields := redirectFields("redirect-secret", map[string]string{
		"orderId": "rd_55",
		"status":  "success",
	})

	first, err := gateway.Confirm(context.Background(), Callback{Fields: fields})
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	orchestrator.result.AlreadyApplied = true
	second, err := gateway.Confirm(context.Background(), Callback{Fields: fields})
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if first.OrderNumber != second.OrderNumber {
		t.Fatalf("order numbers diverged: %d vs %d", first.OrderNumber, second.OrderNumber)
	}
	if !second.AlreadyFinalized {
		t.Fatal("second callback should report AlreadyFinalized")
	}
}

func TestCODProviderConfirm(t *testing.T) {
	orchestrator := &stubOrchestrator{
		result: services.FinalizeResult{OrderID: "ord_3", OrderNumber: 3},
	}
	provider, err := NewCODProvider(CODProviderConfig{Orders: orchestrator})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	result, err := provider.Confirm(context.Background(), Callback{OrderID: "ord_3"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.OrderNumber != 3 {
		t.Fatalf("order number = %d, want 3", result.OrderNumber)
	}

	if _, err := provider.Confirm(context.Background(), Callback{}); !errors.Is(err, ErrInvalidCallback) {
		t.Fatalf("err = %v, want ErrInvalidCallback", err)
	}
}

func TestStripeProviderRejectsUnsignedPayload(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: StaticSecret("whsec_test"),
		Orders:        &stubOrchestrator{},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.Confirm(context.Background(), Callback{
		RawBody: []byte(`{"type":"checkout.session.completed"}`),
	})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}

	_, err = provider.Confirm(context.Background(), Callback{
		RawBody:       []byte(`{"type":"checkout.session.completed"}`),
		SignatureHead: "t=1,v1=deadbeef",
	})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
}

func TestStripeProviderFinalizesCompletedSession(t *testing.T) {
	orchestrator := &stubOrchestrator{
		result: services.FinalizeResult{OrderID: "ord_9", OrderNumber: 900},
	}
	now := int64(1_700_000_000)
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: StaticSecret("whsec_test"),
		Orders:        orchestrator,
		Tolerance:     1 << 40, // fixed-timestamp payload never expires in tests
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","client_reference_id":"ord_9"}}}`)
	signed := fmt.Sprintf("%d.%s", now, body)
	header := fmt.Sprintf("t=%d,v1=%s", now, signHex("whsec_test", signed))

	result, err := provider.Confirm(context.Background(), Callback{
		RawBody:       body,
		SignatureHead: header,
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.OrderID != "ord_9" || result.OrderNumber != 900 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(orchestrator.finalizeCalls) != 1 || orchestrator.finalizeCalls[0] != "ord_9" {
		t.Fatalf("finalize calls = %v", orchestrator.finalizeCalls)
	}
}

func TestStripeProviderIgnoresOtherEvents(t *testing.T) {
	orchestrator := &stubOrchestrator{}
	now := int64(1_700_000_000)
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: StaticSecret("whsec_test"),
		Orders:        orchestrator,
		Tolerance:     1 << 40,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	body := []byte(`{"id":"evt_2","type":"payment_intent.created","data":{"object":{}}}`)
	signed := fmt.Sprintf("%d.%s", now, body)
	header := fmt.Sprintf("t=%d,v1=%s", now, signHex("whsec_test", signed))

	result, err := provider.Confirm(context.Background(), Callback{
		RawBody:       body,
		SignatureHead: header,
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !result.Ignored {
		t.Fatal("unrelated event should be ignored")
	}
	if len(orchestrator.finalizeCalls) != 0 {
		t.Fatal("finalize must not run for unrelated events")
	}
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/clovermart/storefront/internal/services"
)

var (
	// ErrInvalidCallback signals the callback payload is missing required fields.
	ErrInvalidCallback = errors.New("payments: invalid callback")
	// ErrSignatureMismatch signals the callback failed authenticity verification.
	// The order stays pending and nothing is mutated.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
	// ErrProviderNotFound signals no provider is registered under the requested name.
	ErrProviderNotFound = errors.New("payments: provider not found")
	// ErrProviderUnavailable signals the manager has no usable provider configured.
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
)

// Callback carries the raw fields of a gateway confirmation signal. Which
// fields are populated depends on the gateway variant.
type Callback struct {
	OrderID        string
	GatewayOrderID string
	PaymentID      string
	Signature      string
	Status         string
	Fields         map[string]string
	RawBody        []byte
	SignatureHead  string
}

// ConfirmResult reports the finalization outcome of an accepted callback.
type ConfirmResult struct {
	OrderID          string
	OrderNumber      int64
	AlreadyFinalized bool
	Ignored          bool
}

// Orchestrator is the slice of the order service the gateway adapters need:
// resolve the order a callback refers to, then hand it over for finalization.
type Orchestrator interface {
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (services.Order, error)
	Finalize(ctx context.Context, orderID string) (services.FinalizeResult, error)
}

// Provider decides "this order is now payable/confirmed" for one gateway
// variant and hands off to the orchestrator. Signature verification happens
// before any transaction opens.
type Provider interface {
	Name() string
	Confirm(ctx context.Context, callback Callback) (ConfirmResult, error)
}

// Manager routes confirmation callbacks to registered providers.
type Manager struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
}

// NewManager constructs an empty provider manager.
func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register adds a provider under its name. The first registered provider
// becomes the default.
func (m *Manager) Register(provider Provider) error {
	if m == nil {
		return errors.New("payments: manager is nil")
	}
	if provider == nil {
		return errors.New("payments: provider is required")
	}
	name := strings.ToLower(strings.TrimSpace(provider.Name()))
	if name == "" {
		return errors.New("payments: provider name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("payments: provider %s already registered", name)
	}
	m.providers[name] = provider
	if m.defaultProvider == "" {
		m.defaultProvider = name
	}
	return nil
}

// SetDefault marks the provider used when the caller does not name one.
func (m *Manager) SetDefault(name string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return errors.New("payments: default provider name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[key]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, key)
	}
	m.defaultProvider = key
	return nil
}

// Resolve returns the provider registered under name, falling back to the
// default when name is empty.
func (m *Manager) Resolve(name string) (Provider, error) {
	if m == nil {
		return nil, ErrProviderUnavailable
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = m.defaultProvider
	}
	if key == "" {
		return nil, ErrProviderUnavailable
	}
	provider, ok := m.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, key)
	}
	return provider, nil
}

// Names lists the registered provider names.
func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}

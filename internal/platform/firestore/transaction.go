package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

type txContextKey struct{}

// txScope carries the ambient transaction together with writes deferred until
// the transaction function returns. The Firestore client rejects any read
// issued after the first buffered write, so repositories joining an ambient
// transaction stage their writes here and the unit of work flushes them once
// every read has happened.
type txScope struct {
	tx     *firestore.Transaction
	staged []func(*firestore.Transaction) error
}

// WithTx derives a context carrying the transaction so repository methods can
// join an ambient transactional scope.
func WithTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txContextKey{}, &txScope{tx: tx})
}

// TxFromContext returns the ambient transaction, if any.
func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	scope, ok := ctx.Value(txContextKey{}).(*txScope)
	if !ok || scope.tx == nil {
		return nil, false
	}
	return scope.tx, true
}

// StageWrite defers a write until FlushStagedWrites and reports whether an
// ambient transactional scope was present. Without one the caller owns the
// transaction lifecycle and must apply the write itself.
func StageWrite(ctx context.Context, write func(*firestore.Transaction) error) bool {
	if write == nil {
		return false
	}
	scope, ok := ctx.Value(txContextKey{}).(*txScope)
	if !ok || scope.tx == nil {
		return false
	}
	scope.staged = append(scope.staged, write)
	return true
}

// FlushStagedWrites applies the staged writes in staging order and clears the
// queue. A no-op when the context carries no ambient scope.
func FlushStagedWrites(ctx context.Context) error {
	scope, ok := ctx.Value(txContextKey{}).(*txScope)
	if !ok || scope.tx == nil {
		return nil
	}
	staged := scope.staged
	scope.staged = nil
	for _, write := range staged {
		if err := write(scope.tx); err != nil {
			return err
		}
	}
	return nil
}

// RunTransaction executes fn within a transaction on the provided client.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	txnCtx := ctx
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			txnCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		}
	}
	if cancel != nil {
		defer cancel()
	}

	firestoreOpts := make([]firestore.TransactionOption, 0, 1)
	if cfg.attempts > 0 {
		firestoreOpts = append(firestoreOpts, firestore.MaxAttempts(cfg.attempts))
	}

	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestoreOpts...)

	return WrapError("transaction", err)
}

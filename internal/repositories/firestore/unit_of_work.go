package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/clovermart/storefront/internal/platform/firestore"
)

// UnitOfWork runs a function inside one Firestore transaction and threads the
// transaction through the context, so repository calls made with that context
// read and write within the same atomic scope.
type UnitOfWork struct {
	provider *pfirestore.Provider
	opts     []pfirestore.TxOption
}

// NewUnitOfWork constructs a transactional unit of work bound to the provider.
func NewUnitOfWork(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work requires firestore provider")
	}
	return &UnitOfWork{provider: provider, opts: opts}, nil
}

// RunInTx implements repositories.UnitOfWork.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("unit of work not initialised")
	}
	if fn == nil {
		return errors.New("unit of work: fn is required")
	}
	return u.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		txCtx := pfirestore.WithTx(ctx, tx)
		if err := fn(txCtx); err != nil {
			return err
		}
		// Repositories joining the ambient scope staged their writes so every
		// read in fn preceded the first transactional write.
		return pfirestore.FlushStagedWrites(txCtx)
	}, u.opts...)
}

// stageOrApply defers the write to the ambient transaction scope when one is
// present; otherwise the repository owns the transaction and the write is
// applied immediately.
func stageOrApply(ctx context.Context, tx *firestore.Transaction, write func(*firestore.Transaction) error) error {
	if pfirestore.StageWrite(ctx, write) {
		return nil
	}
	return write(tx)
}

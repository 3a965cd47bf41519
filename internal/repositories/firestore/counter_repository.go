package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/clovermart/storefront/internal/platform/firestore"
	"github.com/clovermart/storefront/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by
// Firestore transactions. Each increment is a transactional
// read-modify-write, so concurrent callers never observe the same value.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil)
	return &CounterRepository{
		provider: provider,
		counters: base,
	}, nil
}

// Next atomically increments the counter identified by counterID and returns
// the next value. When the context carries an ambient transaction the
// increment joins it; otherwise a dedicated transaction is opened. A missing
// counter document is created on first use.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return r.nextInTx(ctx, tx, id, step)
	}

	var nextValue int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		value, err := r.nextInTx(ctx, tx, id, step)
		if err != nil {
			return err
		}
		nextValue = value
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return nextValue, nil
}

func (r *CounterRepository) nextInTx(ctx context.Context, tx *firestore.Transaction, id string, step int64) (int64, error) {
	now := time.Now().UTC()

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return 0, err
	}

	snapshot, err := tx.Get(ref)
	switch status.Code(err) {
	case codes.NotFound:
		increment := step
		if increment <= 0 {
			increment = 1
		}
		doc := counterDocument{
			CurrentValue: increment,
			Step:         increment,
			UpdatedAt:    now,
		}
		if err := stageOrApply(ctx, tx, func(tx *firestore.Transaction) error {
			return tx.Create(ref, doc)
		}); err != nil {
			return 0, err
		}
		return doc.CurrentValue, nil
	case codes.OK:
		// proceed
	default:
		return 0, err
	}

	var doc counterDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("firestore counters decode %s: %w", id, err)
	}

	increment := step
	if increment <= 0 {
		if doc.Step > 0 {
			increment = doc.Step
		} else {
			increment = 1
		}
	}

	doc.CurrentValue += increment
	doc.Step = increment
	doc.UpdatedAt = now

	if err := stageOrApply(ctx, tx, func(tx *firestore.Transaction) error {
		return tx.Set(ref, doc, firestore.MergeAll)
	}); err != nil {
		return 0, err
	}
	return doc.CurrentValue, nil
}

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

	domain "github.com/clovermart/storefront/internal/domain"
	pfirestore "github.com/clovermart/storefront/internal/platform/firestore"
	"github.com/clovermart/storefront/internal/repositories"
)

const promoCodesCollection = "promoCodes"

type promoDocument struct {
	Code          string     `firestore:"code"`
	Type          string     `firestore:"type"`
	Value         int64      `firestore:"value"`
	MinOrderValue int64      `firestore:"minOrderValue"`
	MaxDiscount   int64      `firestore:"maxDiscount"`
	UsageLimit    int64      `firestore:"usageLimit"`
	UsedCount     int64      `firestore:"usedCount"`
	Active        bool       `firestore:"active"`
	ExpiresAt     *time.Time `firestore:"expiresAt,omitempty"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

func (d promoDocument) toDomain(code string) domain.PromoCode {
	promo := domain.PromoCode{
		Code:          code,
		Type:          domain.PromoType(d.Type),
		Value:         d.Value,
		MinOrderValue: d.MinOrderValue,
		MaxDiscount:   d.MaxDiscount,
		UsageLimit:    d.UsageLimit,
		UsedCount:     d.UsedCount,
		Active:        d.Active,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.ExpiresAt != nil {
		expires := d.ExpiresAt.UTC()
		promo.ExpiresAt = &expires
	}
	return promo
}

// PromoRepository implements repositories.PromoCodeRepository backed by
// Firestore. Documents are keyed by the normalized (upper-cased) code.
type PromoRepository struct {
	provider *pfirestore.Provider
	promos   *pfirestore.BaseRepository[promoDocument]
}

// NewPromoRepository constructs a Firestore-backed promo code repository.
func NewPromoRepository(provider *pfirestore.Provider) (*PromoRepository, error) {
	if provider == nil {
		return nil, errors.New("promo repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promoDocument](provider, promoCodesCollection, nil, nil)
	return &PromoRepository{provider: provider, promos: base}, nil
}

// FindByCode loads a promo code document. Joins an ambient transaction when present.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (domain.PromoCode, error) {
	if r == nil || r.provider == nil {
		return domain.PromoCode{}, errors.New("promo repository not initialised")
	}
	key := normalizePromoKey(code)
	if key == "" {
		return domain.PromoCode{}, repositories.NewPromoError(repositories.PromoErrorInvalidInput, "promo code is required", nil)
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		ref, err := r.promos.DocumentRef(ctx, key)
		if err != nil {
			return domain.PromoCode{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.PromoCode{}, repositories.NewPromoError(repositories.PromoErrorNotFound, fmt.Sprintf("promo code %s not found", key), err)
			}
			return domain.PromoCode{}, pfirestore.WrapError("promos.get", err)
		}
		var doc promoDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.PromoCode{}, fmt.Errorf("decode promo code %s: %w", key, err)
		}
		return doc.toDomain(key), nil
	}

	doc, err := r.promos.Get(ctx, key)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.PromoCode{}, repositories.NewPromoError(repositories.PromoErrorNotFound, fmt.Sprintf("promo code %s not found", key), err)
		}
		return domain.PromoCode{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// IncrementUsage adds one to usedCount, gated on usedCount < usageLimit in
// the same transactional step. The read and the conditional write share one
// transaction, so concurrent increments near the limit cannot both succeed.
func (r *PromoRepository) IncrementUsage(ctx context.Context, code string, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("promo repository not initialised")
	}
	key := normalizePromoKey(code)
	if key == "" {
		return repositories.NewPromoError(repositories.PromoErrorInvalidInput, "promo code is required", nil)
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return r.incrementInTx(ctx, tx, key, now)
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return r.incrementInTx(ctx, tx, key, now)
	})
	if err != nil {
		var promoErr *repositories.PromoError
		if errors.As(err, &promoErr) {
			return promoErr
		}
		return pfirestore.WrapError("promos.increment", err)
	}
	return nil
}

func (r *PromoRepository) incrementInTx(ctx context.Context, tx *firestore.Transaction, key string, now time.Time) error {
	ref, err := r.promos.DocumentRef(ctx, key)
	if err != nil {
		return err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return repositories.NewPromoError(repositories.PromoErrorNotFound, fmt.Sprintf("promo code %s not found", key), err)
		}
		return err
	}
	var doc promoDocument
	if err := snap.DataTo(&doc); err != nil {
		return fmt.Errorf("decode promo code %s: %w", key, err)
	}

	if doc.UsageLimit > 0 && doc.UsedCount >= doc.UsageLimit {
		return repositories.NewPromoError(repositories.PromoErrorUsageExhausted, fmt.Sprintf("promo code %s usage exhausted", key), nil)
	}

	doc.UsedCount++
	doc.UpdatedAt = now.UTC()
	return stageOrApply(ctx, tx, func(tx *firestore.Transaction) error {
		return tx.Set(ref, doc)
	})
}

func normalizePromoKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clovermart/storefront/internal/domain"
	"github.com/clovermart/storefront/internal/repositories"
)

// PromoServiceDeps bundles collaborators required to construct the promo service.
type PromoServiceDeps struct {
	Repository repositories.PromoCodeRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type promoService struct {
	repo   repositories.PromoCodeRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewPromoService wires dependencies into a concrete PromoService implementation.
func NewPromoService(deps PromoServiceDeps) (PromoService, error) {
	if deps.Repository == nil {
		return nil, errors.New("promo service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &promoService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Validate checks the code against the subtotal without consuming usage.
// Rejection reasons are enumerated so callers can show the user why a code
// failed before payment is submitted.
func (s *promoService) Validate(ctx context.Context, code string, subtotal int64) (PromoQuote, error) {
	normalized := normalizePromoCode(code)
	if normalized == "" {
		return PromoQuote{}, fmt.Errorf("%w: code is required", ErrPromoInvalidCode)
	}
	if subtotal < 0 {
		return PromoQuote{}, fmt.Errorf("%w: subtotal must not be negative", ErrPromoInvalidCode)
	}

	promo, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return PromoQuote{}, s.mapRepositoryError(normalized, err)
	}

	if reason, ok := rejectionFor(promo, subtotal, s.clock()); ok {
		return PromoQuote{}, NewRejectionError(normalized, reason)
	}

	return PromoQuote{
		Code:           normalized,
		Type:           promo.Type,
		DiscountAmount: discountFor(promo, subtotal),
	}, nil
}

// CommitUsage increments the code's ledger exactly once. The repository gates
// the increment on usedCount < usageLimit inside the same atomic step, so
// concurrent finalizations near the limit cannot both succeed.
func (s *promoService) CommitUsage(ctx context.Context, code string) error {
	normalized := normalizePromoCode(code)
	if normalized == "" {
		return fmt.Errorf("%w: code is required", ErrPromoInvalidCode)
	}

	if err := s.repo.IncrementUsage(ctx, normalized, s.clock()); err != nil {
		s.logger(ctx, "promo.commit_usage.failed", map[string]any{
			"code":  normalized,
			"error": err.Error(),
		})
		return s.mapRepositoryError(normalized, err)
	}
	return nil
}

func (s *promoService) mapRepositoryError(code string, err error) error {
	var promoErr *repositories.PromoError
	if errors.As(err, &promoErr) {
		switch promoErr.Code {
		case repositories.PromoErrorNotFound:
			return fmt.Errorf("%w: %s", ErrPromoNotFound, code)
		case repositories.PromoErrorUsageExhausted:
			return NewRejectionError(code, domain.PromoReasonUsageExhausted)
		case repositories.PromoErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrPromoInvalidCode, promoErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return fmt.Errorf("%w: %s", ErrPromoNotFound, code)
		}
		if repoErr.IsUnavailable() {
			return fmt.Errorf("%w: %v", ErrPromoUnavailable, err)
		}
	}
	return err
}

func rejectionFor(promo domain.PromoCode, subtotal int64, now time.Time) (domain.PromoRejectionReason, bool) {
	if !promo.Active {
		return domain.PromoReasonInactive, true
	}
	if promo.ExpiresAt != nil && !now.Before(*promo.ExpiresAt) {
		return domain.PromoReasonExpired, true
	}
	if subtotal < promo.MinOrderValue {
		return domain.PromoReasonBelowMinimum, true
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return domain.PromoReasonUsageExhausted, true
	}
	return "", false
}

// discountFor computes the discount in minor units: fixed codes grant the
// lesser of the value and the subtotal; percentage codes grant
// subtotal*value/100, capped at MaxDiscount when set.
func discountFor(promo domain.PromoCode, subtotal int64) int64 {
	switch promo.Type {
	case domain.PromoTypeFixed:
		if promo.Value > subtotal {
			return subtotal
		}
		return promo.Value
	case domain.PromoTypePercentage:
		discount := subtotal * promo.Value / 100
		if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
			discount = promo.MaxDiscount
		}
		if discount > subtotal {
			discount = subtotal
		}
		return discount
	default:
		return 0
	}
}

func normalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

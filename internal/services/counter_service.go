package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/clovermart/storefront/internal/repositories"
)

// Single monotonic sequence shared by every order, keyed by a fixed id.
const orderNumberCounterID = "orderNumbers"

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrAllocationUnavailable indicates the counter transaction aborted; the
	// whole finalization attempt is safe to retry and no number was consumed.
	ErrAllocationUnavailable = errors.New("counter: allocation unavailable")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository
}

// NewCounterService constructs a service issuing order numbers on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{repo: deps.Repository}, nil
}

func (s *counterService) NextOrderNumber(ctx context.Context) (int64, error) {
	value, err := s.repo.Next(ctx, orderNumberCounterID, 1)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			if counterErr.Code == repositories.CounterErrorInvalidInput {
				return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			}
			return 0, fmt.Errorf("%w: %s", ErrAllocationUnavailable, counterErr.Message)
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && (repoErr.IsUnavailable() || repoErr.IsConflict()) {
			return 0, fmt.Errorf("%w: %v", ErrAllocationUnavailable, err)
		}
		return 0, err
	}
	return value, nil
}

package opportunity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"connectkids/internal/model"
)

// ListingsKey is the query key of every cached opportunities listing.
var ListingsKey = []string{"opportunities"}

// ErrCreate wraps any failure of the data service's create call.
var ErrCreate = errors.New("create opportunity")

// Creator is the data service call that stores a listing.
type Creator interface {
	CreateOpportunity(ctx context.Context, token string, d model.Draft) (model.Opportunity, error)
}

// Invalidator marks cached queries stale.
type Invalidator interface {
	Invalidate(key ...string)
}

// Service validates drafts and hands them to the data service.
type Service struct {
	creator Creator
	cache   Invalidator
	logger  *slog.Logger
}

func NewService(creator Creator, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{creator: creator, cache: cache, logger: logger}
}

// Submit validates d and, if it passes, creates it exactly once. A
// *ValidationError means the data service was not called; errors wrapping
// ErrCreate mean it was called and failed; callers log those.
func (s *Service) Submit(ctx context.Context, token string, d model.Draft) (model.Opportunity, error) {
	if errs := Validate(d); errs.Any() {
		return model.Opportunity{}, &ValidationError{Fields: errs}
	}

	rec, err := s.creator.CreateOpportunity(ctx, token, d)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ListingsKey...)
	}
	s.logger.Info("opportunity created", "id", rec.ID, "title", rec.Title)
	return rec, nil
}

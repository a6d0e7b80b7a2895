package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Service struct {
	reviews  repository.ReviewRepository
	visits   repository.VisitRepository
	accounts repository.AccountRepository
	clock    clock.Clock
}

func NewService(reviews repository.ReviewRepository, visits repository.VisitRepository,
	accounts repository.AccountRepository, clk clock.Clock) *Service {
	return &Service{reviews: reviews, visits: visits, accounts: accounts, clock: clk}
}

// Create records a review of a doctor the patient has had a closed visit with.
func (s *Service) Create(ctx context.Context, patientID uuid.UUID, req *model.CreateReviewRequest) (*model.Review, error) {
	visited, err := s.visits.HasClosedVisit(ctx, patientID, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !visited {
		return nil, apperrors.Forbidden("You can only review doctors you have visited")
	}

	now := s.clock.Now()
	review := &model.Review{
		Base:      model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, err
	}

	if err := s.recompute(ctx, review.DoctorID); err != nil {
		return nil, err
	}
	return review, nil
}

// Update changes rating or comment. The doctor of a review never changes.
func (s *Service) Update(ctx context.Context, patientID, id uuid.UUID, req *model.UpdateReviewRequest) (*model.Review, error) {
	review, err := s.reviews.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if review.PatientID != patientID {
		return nil, apperrors.NotFound("review", nil)
	}

	if req.Rating != nil {
		review.Rating = *req.Rating
	}
	if req.Comment != nil {
		review.Comment = *req.Comment
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}
	if err := s.reviews.Update(ctx, review); err != nil {
		return nil, err
	}

	if err := s.recompute(ctx, review.DoctorID); err != nil {
		return nil, err
	}
	return review, nil
}

func (s *Service) Delete(ctx context.Context, patientID, id uuid.UUID) error {
	review, err := s.reviews.Delete(ctx, id, patientID)
	if err != nil {
		return err
	}
	return s.recompute(ctx, review.DoctorID)
}

func (s *Service) List(ctx context.Context, filter *model.ReviewFilter) ([]*model.Review, error) {
	reviews, err := s.reviews.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

func (s *Service) recompute(ctx context.Context, doctorID uuid.UUID) error {
	stats, err := s.reviews.Stats(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("failed to aggregate ratings: %w", err)
	}
	if err := s.accounts.UpdateRatings(ctx, doctorID, stats); err != nil {
		return fmt.Errorf("failed to update ratings: %w", err)
	}
	return nil
}

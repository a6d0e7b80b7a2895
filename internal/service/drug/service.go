package drug

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/clock"
)

type Service struct {
	drugs repository.DrugRepository
	clock clock.Clock
}

func NewService(drugs repository.DrugRepository, clk clock.Clock) *Service {
	return &Service{drugs: drugs, clock: clk}
}

func (s *Service) Create(ctx context.Context, drug *model.Drug) (*model.Drug, error) {
	if err := drug.Validate(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	drug.CreatedAt, drug.UpdatedAt = now, now

	if err := s.drugs.Create(ctx, drug); err != nil {
		return nil, err
	}
	return drug, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Drug, error) {
	return s.drugs.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter *model.DrugFilter) ([]*model.Drug, error) {
	drugs, err := s.drugs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list drugs: %w", err)
	}
	return drugs, nil
}

func (s *Service) Update(ctx context.Context, id string, req *model.UpdateDrugRequest) (*model.Drug, error) {
	drug, err := s.drugs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		drug.Name = *req.Name
	}
	if req.Image != nil {
		drug.Image = *req.Image
	}
	if req.Category != nil {
		drug.Category = *req.Category
	}
	if err := drug.Validate(); err != nil {
		return nil, err
	}
	drug.UpdatedAt = s.clock.Now()

	if err := s.drugs.Update(ctx, drug); err != nil {
		return nil, err
	}
	return drug, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.drugs.Delete(ctx, id)
}

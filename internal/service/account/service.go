package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Service struct {
	accounts repository.AccountRepository
	reviews  repository.ReviewRepository
	clock    clock.Clock
}

func NewService(accounts repository.AccountRepository, reviews repository.ReviewRepository, clk clock.Clock) *Service {
	return &Service{accounts: accounts, reviews: reviews, clock: clk}
}

// DoctorProfile is the public view of a doctor with their reviews.
type DoctorProfile struct {
	*model.Account
	Reviews []*model.Review `json:"reviews"`
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return s.accounts.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter *model.AccountFilter) ([]*model.Account, error) {
	accounts, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateMe applies profile changes. A changed email must be verified again.
func (s *Service) UpdateMe(ctx context.Context, actor *model.Account, req *model.UpdateMeRequest) (*model.Account, error) {
	updated := *actor
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		updated.Name = &name
	}
	if req.Email != nil {
		addr := strings.ToLower(strings.TrimSpace(*req.Email))
		if actor.Email == nil || *actor.Email != addr {
			updated.EmailVerified = false
		}
		updated.Email = &addr
	}
	if req.IDCard != nil {
		idCard := strings.TrimSpace(*req.IDCard)
		updated.IDCard = &idCard
	}
	if req.Birthday != nil {
		updated.Birthday = req.Birthday
	}

	if err := updated.Validate(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateProfile(ctx, &updated); err != nil {
		return nil, err
	}
	return s.accounts.Get(ctx, actor.ID)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.accounts.Deactivate(ctx, id)
}

// UpdateDoctorOptions merges req into the doctor's current schedule.
func (s *Service) UpdateDoctorOptions(ctx context.Context, actor *model.Account, req *model.UpdateDoctorRequest) (*model.Account, error) {
	if actor.Role != model.RoleDoctor {
		return nil, apperrors.Forbidden("")
	}

	opts := model.NewDoctorOptions()
	if actor.DoctorOptions != nil {
		current := *actor.DoctorOptions
		opts = &current
	}
	if req.Specification != nil {
		opts.Specification = strings.ToLower(strings.TrimSpace(*req.Specification))
	}
	if req.MCNumber != nil {
		opts.MCNumber = strings.TrimSpace(*req.MCNumber)
	}
	if req.VisitWeekdays != nil {
		opts.VisitWeekdays = req.VisitWeekdays
	}
	if req.VisitRange != nil {
		opts.VisitRange = req.VisitRange
	}
	if req.VisitExceptions != nil {
		opts.VisitExceptions = req.VisitExceptions
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.accounts.UpdateDoctorOptions(ctx, actor.ID, opts)
}

func (s *Service) ListDoctors(ctx context.Context, specification string, page model.Pagination) ([]*model.Account, error) {
	return s.List(ctx, &model.AccountFilter{
		Role:          model.RoleDoctor,
		Specification: strings.ToLower(strings.TrimSpace(specification)),
		Pagination:    page,
	})
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Role != model.RoleDoctor {
		return nil, apperrors.NotFound("doctor", nil)
	}

	reviews, err := s.reviews.List(ctx, &model.ReviewFilter{DoctorID: &id, Pagination: model.Pagination{PageSize: 100}})
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	return &DoctorProfile{Account: account, Reviews: reviews}, nil
}

// Create is the admin path and may create any role.
func (s *Service) Create(ctx context.Context, req *model.CreateAccountRequest) (*model.Account, error) {
	now := s.clock.Now()
	name := strings.TrimSpace(req.Name)
	account := &model.Account{
		Base:     model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:     &name,
		IDCard:   req.IDCard,
		Birthday: req.Birthday,
		Photo:    model.DefaultPhoto,
		Role:     req.Role,
		Active:   true,
		DoctorID: req.DoctorID,
	}
	if req.Phone != nil {
		phone := model.NormalizePhone(*req.Phone)
		account.Phone = &phone
	}
	if req.Email != nil {
		addr := strings.ToLower(strings.TrimSpace(*req.Email))
		account.Email = &addr
	}
	if req.Role == model.RoleDoctor {
		opts := model.NewDoctorOptions()
		if req.DoctorOptions != nil {
			opts.Specification = strings.ToLower(req.DoctorOptions.Specification)
			opts.MCNumber = req.DoctorOptions.MCNumber
			if req.DoctorOptions.VisitWeekdays != nil {
				opts.VisitWeekdays = req.DoctorOptions.VisitWeekdays
			}
			if req.DoctorOptions.VisitRange != nil {
				opts.VisitRange = req.DoctorOptions.VisitRange
			}
			if req.DoctorOptions.VisitExceptions != nil {
				opts.VisitExceptions = req.DoctorOptions.VisitExceptions
			}
		}
		account.DoctorOptions = opts
	} else {
		account.DoctorOptions = req.DoctorOptions
	}

	if account.DoctorID != nil {
		owner, err := s.accounts.Get(ctx, *account.DoctorID)
		if err != nil || owner.Role != model.RoleDoctor {
			return nil, apperrors.Validation("doctor_id must reference a doctor")
		}
	}

	if err := account.Validate(now); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

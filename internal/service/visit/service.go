package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

const DefaultHorizonDays = 30

type Service struct {
	visits      repository.VisitRepository
	accounts    repository.AccountRepository
	calc        *schedule.Calculator
	clock       clock.Clock
	metrics     *metrics.Metrics
	horizonDays int
}

func NewService(
	visits repository.VisitRepository,
	accounts repository.AccountRepository,
	calc *schedule.Calculator,
	clk clock.Clock,
	m *metrics.Metrics,
	horizonDays int,
) *Service {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Service{
		visits:      visits,
		accounts:    accounts,
		calc:        calc,
		clock:       clk,
		metrics:     m,
		horizonDays: horizonDays,
	}
}

// Book creates a visit for patientID after running every booking check.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, req *model.BookVisitRequest) (*model.Visit, error) {
	if req.DoctorID == nil || *req.DoctorID == uuid.Nil {
		return nil, s.reject(apperrors.MissingFields("doctor"))
	}
	if req.DateTime == nil || req.DateTime.IsZero() {
		return nil, s.reject(apperrors.MissingFields("date_time"))
	}
	at := req.DateTime.Truncate(time.Minute)

	if err := s.check(ctx, patientID, *req.DoctorID, at, uuid.Nil); err != nil {
		return nil, s.reject(err)
	}

	now := s.clock.Now()
	visit := &model.Visit{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID: patientID,
		DoctorID:  *req.DoctorID,
		DateTime:  at,
	}
	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, s.reject(err)
	}

	s.metrics.VisitsBooked.WithLabelValues("book").Inc()
	return visit, nil
}

// Reschedule moves an open visit of patientID to a new instant with the
// same checks as Book. The visit itself does not count against the daily
// limit.
func (s *Service) Reschedule(ctx context.Context, patientID, visitID uuid.UUID, req *model.RescheduleVisitRequest) (*model.Visit, error) {
	if req.DateTime == nil || req.DateTime.IsZero() {
		return nil, s.reject(apperrors.MissingFields("date_time"))
	}
	at := req.DateTime.Truncate(time.Minute)

	scope := model.OpenFor(patientID)
	current, err := s.visits.Get(ctx, visitID, scope)
	if err != nil {
		return nil, err
	}

	if err := s.check(ctx, patientID, current.DoctorID, at, current.ID); err != nil {
		return nil, s.reject(err)
	}

	visit, err := s.visits.Reschedule(ctx, visitID, scope, at)
	if err != nil {
		return nil, s.reject(err)
	}

	s.metrics.VisitsBooked.WithLabelValues("reschedule").Inc()
	return visit, nil
}

// check runs the horizon, daily limit, schedule and profile rules in that
// order. existingID is the visit being moved, or uuid.Nil for a new one.
func (s *Service) check(ctx context.Context, patientID, doctorID uuid.UUID, at time.Time, existingID uuid.UUID) error {
	now := s.clock.Now()
	if !at.After(now) || !at.Before(now.AddDate(0, 0, s.horizonDays)) {
		return apperrors.HorizonExceeded(s.horizonDays)
	}

	dayStart, dayEnd := s.calc.DayBounds(at)
	sameDay, err := s.visits.ListForPatientDoctor(ctx, patientID, doctorID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for _, v := range sameDay {
		if existingID == uuid.Nil || v.ID != existingID {
			return apperrors.DailyLimitExceeded()
		}
	}

	doctor, err := s.accounts.Get(ctx, doctorID)
	if err != nil {
		if apperrors.Is(err, apperrors.NotFoundErr) {
			return apperrors.SlotUnavailable()
		}
		return err
	}
	if doctor.Role != model.RoleDoctor || !s.calc.IsWithinSchedule(doctor.DoctorOptions, at) {
		return apperrors.SlotUnavailable()
	}

	patient, err := s.accounts.Get(ctx, patientID)
	if err != nil {
		return err
	}
	if missing := patient.MissingProfile(); len(missing) > 0 {
		return apperrors.ProfileIncomplete(missing...)
	}
	return nil
}

func (s *Service) reject(err error) error {
	if appErr, ok := apperrors.As(err); ok {
		s.metrics.BookingRejections.WithLabelValues(rejectionReason(appErr.Code)).Inc()
	}
	return err
}

func rejectionReason(code apperrors.ErrorCode) string {
	switch code {
	case apperrors.ErrMissingFields:
		return "missing_fields"
	case apperrors.ErrHorizonExceeded:
		return "horizon"
	case apperrors.ErrDailyLimitExceeded:
		return "daily_limit"
	case apperrors.ErrSlotUnavailable:
		return "unavailable"
	case apperrors.ErrProfileIncomplete:
		return "profile"
	case apperrors.ErrSlotConflict:
		return "conflict"
	default:
		return "other"
	}
}

// Cancel deletes an open visit of patientID. Closed visits do not match.
func (s *Service) Cancel(ctx context.Context, patientID, visitID uuid.UUID) error {
	return s.visits.Delete(ctx, visitID, model.OpenFor(patientID))
}

// Close marks an open visit of doctorID as closed. A second close does not
// match and returns NotFound.
func (s *Service) Close(ctx context.Context, doctorID, visitID uuid.UUID) (*model.Visit, error) {
	visit, err := s.visits.Close(ctx, visitID, doctorID)
	if err != nil {
		return nil, err
	}
	s.metrics.VisitsClosed.Inc()
	return visit, nil
}

func (s *Service) GetForPatient(ctx context.Context, patientID, visitID uuid.UUID) (*model.Visit, error) {
	visit, err := s.visits.Get(ctx, visitID, model.VisitScope{PatientID: &patientID})
	if err != nil {
		return nil, err
	}
	return s.withPrescriptions(ctx, visit)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, filter *model.VisitFilter) ([]*model.Visit, error) {
	filter.PatientID = &patientID
	filter.DoctorID = nil
	visits, err := s.visits.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, filter *model.VisitFilter) ([]*model.Visit, error) {
	filter.DoctorID = &doctorID
	visits, err := s.visits.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

// Today lists the doctor's visits on the current clinic day.
func (s *Service) Today(ctx context.Context, doctorID uuid.UUID) ([]*model.Visit, error) {
	from, to := s.calc.DayBounds(s.clock.Now())
	return s.ListForDoctor(ctx, doctorID, &model.VisitFilter{
		From:       &from,
		To:         &to,
		Pagination: model.Pagination{PageSize: 100},
	})
}

// DoctorFor resolves whose calendar an actor works on: doctors act for
// themselves and secretaries for their owning doctor.
func DoctorFor(actor *model.Account) (uuid.UUID, error) {
	switch actor.Role {
	case model.RoleDoctor:
		return actor.ID, nil
	case model.RoleSecretary:
		if actor.DoctorID != nil {
			return *actor.DoctorID, nil
		}
	}
	return uuid.Nil, apperrors.Forbidden("")
}

// Prescriptions returns the prescriptions of a visit the actor takes part in.
func (s *Service) Prescriptions(ctx context.Context, actor *model.Account, visitID uuid.UUID) ([]model.Prescription, error) {
	scope := model.VisitScope{PatientID: &actor.ID}
	if doctorID, err := DoctorFor(actor); err == nil {
		scope = model.VisitScope{DoctorID: &doctorID}
	}
	if _, err := s.visits.Get(ctx, visitID, scope); err != nil {
		return nil, err
	}
	items, err := s.visits.ListPrescriptions(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return items, nil
}

// AddPrescriptions appends items to a visit of doctorID.
func (s *Service) AddPrescriptions(ctx context.Context, doctorID, visitID uuid.UUID, items []model.Prescription) ([]model.Prescription, error) {
	if len(items) == 0 {
		return nil, apperrors.MissingFields("prescriptions")
	}

	var errs validator.Errors
	now := s.clock.Now()
	for i := range items {
		errs.Struct(&items[i])
		items[i].ID = uuid.New()
		items[i].CreatedAt = now
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if err := s.visits.AddPrescriptions(ctx, visitID, doctorID, items); err != nil {
		return nil, err
	}
	return s.visits.ListPrescriptions(ctx, visitID)
}

func (s *Service) DeletePrescription(ctx context.Context, doctorID, visitID, prescriptionID uuid.UUID) error {
	return s.visits.DeletePrescription(ctx, visitID, doctorID, prescriptionID)
}

// Availability lists the doctor's bookable slots on the clinic day of date
// that are still inside the booking horizon.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]model.Slot, error) {
	doctor, err := s.accounts.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != model.RoleDoctor {
		return nil, apperrors.NotFound("doctor", nil)
	}

	dayStart, dayEnd := s.calc.DayBounds(date)
	booked, err := s.visits.BookedTimes(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	taken := make(map[int64]bool, len(booked))
	for _, t := range booked {
		taken[t.Unix()] = true
	}

	now := s.clock.Now()
	limit := now.AddDate(0, 0, s.horizonDays)
	slots := []model.Slot{}
	for _, t := range s.calc.Slots(doctor.DoctorOptions, dayStart) {
		if !t.After(now) || !t.Before(limit) {
			continue
		}
		slots = append(slots, model.Slot{DateTime: t, Booked: taken[t.Unix()]})
	}
	return slots, nil
}

func (s *Service) withPrescriptions(ctx context.Context, visit *model.Visit) (*model.Visit, error) {
	items, err := s.visits.ListPrescriptions(ctx, visit.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prescriptions: %w", err)
	}
	visit.Prescriptions = items
	return visit, nil
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// All repository interfaces in one file. Account reads only ever see
// active accounts.
type (
	AccountRepository interface {
		// Create inserts the account together with its empty credential row.
		Create(ctx context.Context, account *model.Account) error
		Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
		GetByPhone(ctx context.Context, phone string) (*model.Account, error)
		GetByEmail(ctx context.Context, email string) (*model.Account, error)
		List(ctx context.Context, filter *model.AccountFilter) ([]*model.Account, error)
		UpdateProfile(ctx context.Context, account *model.Account) error
		// UpdateDoctorOptions replaces the schedule fields and keeps the rating aggregate.
		UpdateDoctorOptions(ctx context.Context, id uuid.UUID, opts *model.DoctorOptions) (*model.Account, error)
		UpdateRatings(ctx context.Context, doctorID uuid.UUID, stats model.RatingStats) error
		SetPendingPhone(ctx context.Context, id uuid.UUID, phone *string) error
		ApplyPendingPhone(ctx context.Context, id uuid.UUID) (*model.Account, error)
		SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error
		Deactivate(ctx context.Context, id uuid.UUID) error
	}

	CredentialRepository interface {
		Get(ctx context.Context, accountID uuid.UUID) (*model.Credential, error)
		SetPassword(ctx context.Context, accountID uuid.UUID, hash string, changedAt time.Time) error
		// SetOTP overwrites any pending code.
		SetOTP(ctx context.Context, accountID uuid.UUID, hash string, expiresAt time.Time) error
		// ClearOTP clears the pending code only if it is still the one identified
		// by hash, reporting whether this call won.
		ClearOTP(ctx context.Context, accountID uuid.UUID, hash string) (bool, error)
		SetToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind, hash string, expiresAt time.Time) error
		ClearToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind) error
		// ConsumeToken finds the unexpired token with this hash and clears it in
		// the same statement.
		ConsumeToken(ctx context.Context, kind model.TokenKind, hash string, now time.Time) (uuid.UUID, error)
	}

	VisitRepository interface {
		// Create fails with SlotConflict when (doctor, date_time) is taken.
		Create(ctx context.Context, visit *model.Visit) error
		Get(ctx context.Context, id uuid.UUID, scope model.VisitScope) (*model.Visit, error)
		List(ctx context.Context, filter *model.VisitFilter) ([]*model.Visit, error)
		ListForPatientDoctor(ctx context.Context, patientID, doctorID uuid.UUID, from, to time.Time) ([]*model.Visit, error)
		BookedTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
		Reschedule(ctx context.Context, id uuid.UUID, scope model.VisitScope, dateTime time.Time) (*model.Visit, error)
		Delete(ctx context.Context, id uuid.UUID, scope model.VisitScope) error
		// Close only matches open visits of doctorID.
		Close(ctx context.Context, id, doctorID uuid.UUID) (*model.Visit, error)
		HasClosedVisit(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
		AddPrescriptions(ctx context.Context, visitID, doctorID uuid.UUID, items []model.Prescription) error
		ListPrescriptions(ctx context.Context, visitID uuid.UUID) ([]model.Prescription, error)
		DeletePrescription(ctx context.Context, visitID, doctorID, prescriptionID uuid.UUID) error
		ListReminders(ctx context.Context, from, to time.Time) ([]*model.VisitReminder, error)
	}

	ReviewRepository interface {
		// Create fails with DuplicateKey when the patient already reviewed the doctor.
		Create(ctx context.Context, review *model.Review) error
		Get(ctx context.Context, id uuid.UUID) (*model.Review, error)
		List(ctx context.Context, filter *model.ReviewFilter) ([]*model.Review, error)
		Update(ctx context.Context, review *model.Review) error
		Delete(ctx context.Context, id, patientID uuid.UUID) (*model.Review, error)
		Stats(ctx context.Context, doctorID uuid.UUID) (model.RatingStats, error)
	}

	DrugRepository interface {
		Create(ctx context.Context, drug *model.Drug) error
		Get(ctx context.Context, id string) (*model.Drug, error)
		List(ctx context.Context, filter *model.DrugFilter) ([]*model.Drug, error)
		Update(ctx context.Context, drug *model.Drug) error
		Delete(ctx context.Context, id string) error
	}
)

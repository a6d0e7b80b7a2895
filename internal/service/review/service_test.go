package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type fixture struct {
	svc     *Service
	store   *memory.Store
	doctor  uuid.UUID
	patient uuid.UUID
	visits  int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	clk := clock.NewManaged(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))

	doctor := &model.Account{Base: model.Base{ID: uuid.New()}, Role: model.RoleDoctor, Active: true,
		DoctorOptions: model.NewDoctorOptions()}
	patient := &model.Account{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient, Active: true}
	require.NoError(t, store.Accounts().Create(ctx, doctor))
	require.NoError(t, store.Accounts().Create(ctx, patient))

	return &fixture{
		svc:     NewService(store.Reviews(), store.Visits(), store.Accounts(), clk),
		store:   store,
		doctor:  doctor.ID,
		patient: patient.ID,
	}
}

func (f *fixture) closedVisit(t *testing.T, patient uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	f.visits++
	v := &model.Visit{
		Base:      model.Base{ID: uuid.New()},
		PatientID: patient,
		DoctorID:  f.doctor,
		DateTime:  time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC).Add(time.Duration(f.visits) * 15 * time.Minute),
	}
	require.NoError(t, f.store.Visits().Create(ctx, v))
	_, err := f.store.Visits().Close(ctx, v.ID, f.doctor)
	require.NoError(t, err)
}

func (f *fixture) ratings(t *testing.T) (float64, int) {
	t.Helper()
	doctor, err := f.store.Accounts().Get(context.Background(), f.doctor)
	require.NoError(t, err)
	return doctor.DoctorOptions.RatingsAverage, doctor.DoctorOptions.RatingsQuantity
}

func TestCreateRequiresClosedVisit(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(context.Background(), f.patient, &model.CreateReviewRequest{
		DoctorID: f.doctor, Rating: 5, Comment: "Very thorough and kind",
	})
	assert.True(t, errors.Is(err, apperrors.ForbiddenErr))
}

func TestCreateValidatesAndRecomputes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.closedVisit(t, f.patient)

	_, err := f.svc.Create(ctx, f.patient, &model.CreateReviewRequest{DoctorID: f.doctor, Rating: 6, Comment: "short"})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Len(t, appErr.Fields, 2)

	_, err = f.svc.Create(ctx, f.patient, &model.CreateReviewRequest{
		DoctorID: f.doctor, Rating: 4, Comment: "Very thorough and kind",
	})
	require.NoError(t, err)

	avg, n := f.ratings(t)
	assert.Equal(t, 4.0, avg)
	assert.Equal(t, 1, n)

	_, err = f.svc.Create(ctx, f.patient, &model.CreateReviewRequest{
		DoctorID: f.doctor, Rating: 2, Comment: "Changed my mind about it",
	})
	assert.True(t, errors.Is(err, apperrors.DuplicateKeyErr))
}

func TestAverageRoundsToOneDecimal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, rating := range []int{5, 4, 4} {
		patient := &model.Account{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient, Active: true}
		require.NoError(t, f.store.Accounts().Create(ctx, patient))
		f.closedVisit(t, patient.ID)
		_, err := f.svc.Create(ctx, patient.ID, &model.CreateReviewRequest{
			DoctorID: f.doctor, Rating: rating, Comment: "Helpful appointment overall",
		})
		require.NoError(t, err)
	}

	avg, n := f.ratings(t)
	assert.Equal(t, 4.3, avg)
	assert.Equal(t, 3, n)
}

func TestUpdateAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.closedVisit(t, f.patient)

	review, err := f.svc.Create(ctx, f.patient, &model.CreateReviewRequest{
		DoctorID: f.doctor, Rating: 2, Comment: "Waited for a long time",
	})
	require.NoError(t, err)

	rating := 5
	_, err = f.svc.Update(ctx, uuid.New(), review.ID, &model.UpdateReviewRequest{Rating: &rating})
	assert.True(t, errors.Is(err, apperrors.NotFoundErr))

	updated, err := f.svc.Update(ctx, f.patient, review.ID, &model.UpdateReviewRequest{Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Rating)
	avg, _ := f.ratings(t)
	assert.Equal(t, 5.0, avg)

	require.NoError(t, f.svc.Delete(ctx, f.patient, review.ID))
	avg, n := f.ratings(t)
	assert.Equal(t, model.DefaultRatingsAverage, avg)
	assert.Equal(t, 0, n)
}

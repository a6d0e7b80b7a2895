package account

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

func strPtr(s string) *string { return &s }

func setup() (*Service, *memory.Store) {
	store := memory.NewStore()
	clk := clock.NewManaged(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	return NewService(store.Accounts(), store.Reviews(), clk), store
}

func createDoctor(t *testing.T, svc *Service) *model.Account {
	t.Helper()
	doctor, err := svc.Create(context.Background(), &model.CreateAccountRequest{
		Name:  "Reza Karimi",
		Phone: strPtr("09121112222"),
		Role:  model.RoleDoctor,
		DoctorOptions: &model.DoctorOptions{
			Specification: "Cardiology",
			MCNumber:      "12345",
			VisitWeekdays: []int{1, 3},
		},
	})
	require.NoError(t, err)
	return doctor
}

func TestCreateDoctorDefaults(t *testing.T) {
	svc, _ := setup()
	doctor := createDoctor(t, svc)

	assert.Equal(t, "9121112222", *doctor.Phone)
	assert.Equal(t, "cardiology", doctor.DoctorOptions.Specification)
	assert.Equal(t, []string{"8:00", "12:00"}, doctor.DoctorOptions.VisitRange)
	assert.Equal(t, model.DefaultRatingsAverage, doctor.DoctorOptions.RatingsAverage)
}

func TestCreateRoleInvariants(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()
	doctor := createDoctor(t, svc)

	_, err := svc.Create(ctx, &model.CreateAccountRequest{
		Name: "Mina Rahimi", Phone: strPtr("9123334444"), Role: model.RoleSecretary,
	})
	assert.True(t, errors.Is(err, apperrors.ValidationErr))

	secretary, err := svc.Create(ctx, &model.CreateAccountRequest{
		Name: "Mina Rahimi", Phone: strPtr("9123334444"), Role: model.RoleSecretary, DoctorID: &doctor.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, *secretary.DoctorID)

	_, err = svc.Create(ctx, &model.CreateAccountRequest{
		Name: "Ali Rahimi", Phone: strPtr("9125556666"), Role: model.RoleSecretary, DoctorID: &secretary.ID,
	})
	assert.True(t, errors.Is(err, apperrors.ValidationErr))

	_, err = svc.Create(ctx, &model.CreateAccountRequest{
		Name: "Ali Rahimi", Phone: strPtr("9125556666"), Role: model.RolePatient,
		DoctorOptions: model.NewDoctorOptions(),
	})
	assert.True(t, errors.Is(err, apperrors.ValidationErr))

	_, err = svc.Create(ctx, &model.CreateAccountRequest{
		Name: "Ali Rahimi", Phone: strPtr("+989121112222"), Role: model.RolePatient,
	})
	assert.True(t, errors.Is(err, apperrors.DuplicateKeyErr))
}

func TestUpdateMe(t *testing.T) {
	svc, store := setup()
	ctx := context.Background()
	email := "sara@example.com"
	actor := &model.Account{
		Base: model.Base{ID: uuid.New()}, Email: &email, EmailVerified: true, Role: model.RolePatient, Active: true,
	}
	require.NoError(t, store.Accounts().Create(ctx, actor))

	birthday := time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC)
	updated, err := svc.UpdateMe(ctx, actor, &model.UpdateMeRequest{
		Name:     strPtr("Sara Ahmadi"),
		IDCard:   strPtr("0012345678"),
		Birthday: &birthday,
	})
	require.NoError(t, err)
	assert.Empty(t, updated.MissingProfile())
	assert.True(t, updated.EmailVerified)

	updated, err = svc.UpdateMe(ctx, updated, &model.UpdateMeRequest{Email: strPtr("SARA2@example.com")})
	require.NoError(t, err)
	assert.Equal(t, "sara2@example.com", *updated.Email)
	assert.False(t, updated.EmailVerified)

	_, err = svc.UpdateMe(ctx, updated, &model.UpdateMeRequest{Name: strPtr("Sara")})
	assert.True(t, errors.Is(err, apperrors.ValidationErr))
}

func TestUpdateDoctorOptionsKeepsRatings(t *testing.T) {
	svc, store := setup()
	ctx := context.Background()
	doctor := createDoctor(t, svc)
	require.NoError(t, store.Accounts().UpdateRatings(ctx, doctor.ID, model.RatingStats{Average: 4.5, Quantity: 2}))
	doctor, err := store.Accounts().Get(ctx, doctor.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateDoctorOptions(ctx, doctor, &model.UpdateDoctorRequest{
		VisitRange:      []string{"9:00", "13:30"},
		VisitExceptions: []string{"2025-01-07"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"9:00", "13:30"}, updated.DoctorOptions.VisitRange)
	assert.Equal(t, []int{1, 3}, updated.DoctorOptions.VisitWeekdays)
	assert.Equal(t, 4.5, updated.DoctorOptions.RatingsAverage)
	assert.Equal(t, 2, updated.DoctorOptions.RatingsQuantity)

	_, err = svc.UpdateDoctorOptions(ctx, doctor, &model.UpdateDoctorRequest{VisitWeekdays: []int{7}})
	assert.True(t, errors.Is(err, apperrors.ValidationErr))

	_, err = svc.UpdateDoctorOptions(ctx, &model.Account{Role: model.RolePatient}, &model.UpdateDoctorRequest{})
	assert.True(t, errors.Is(err, apperrors.ForbiddenErr))
}

func TestDoctorListing(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()
	doctor := createDoctor(t, svc)
	_, err := svc.Create(ctx, &model.CreateAccountRequest{Name: "Ali Rahimi", Phone: strPtr("9125556666"), Role: model.RolePatient})
	require.NoError(t, err)

	doctors, err := svc.ListDoctors(ctx, "Cardiology", model.Pagination{})
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, doctor.ID, doctors[0].ID)

	doctors, err = svc.ListDoctors(ctx, "urology", model.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, doctors)

	profile, err := svc.GetDoctor(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.Reviews)

	_, err = svc.GetDoctor(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.NotFoundErr))
}

func TestDeactivateHidesAccount(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()
	doctor := createDoctor(t, svc)

	require.NoError(t, svc.Deactivate(ctx, doctor.ID))
	_, err := svc.Get(ctx, doctor.ID)
	assert.True(t, errors.Is(err, apperrors.NotFoundErr))
}

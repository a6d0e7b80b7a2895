package drug

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

func TestDrugLifecycle(t *testing.T) {
	svc := NewService(memory.NewStore().Drugs(), clock.NewManaged(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	created, err := svc.Create(ctx, &model.Drug{Name: " Amoxicillin ", Category: "Antibiotic"})
	require.NoError(t, err)
	assert.Equal(t, "amoxicillin", created.Name)
	assert.Equal(t, model.DefaultDrugImage, created.Image)

	_, err = svc.Create(ctx, &model.Drug{Name: "AMOXICILLIN", Category: "antibiotic"})
	assert.True(t, errors.Is(err, apperrors.DuplicateKeyErr))

	_, err = svc.Create(ctx, &model.Drug{Name: "ibuprofen"})
	assert.True(t, errors.Is(err, apperrors.ValidationErr))

	list, err := svc.List(ctx, &model.DrugFilter{Name: "AMOX"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	category := "Penicillin"
	updated, err := svc.Update(ctx, created.ID.Hex(), &model.UpdateDrugRequest{Category: &category})
	require.NoError(t, err)
	assert.Equal(t, "penicillin", updated.Category)

	require.NoError(t, svc.Delete(ctx, created.ID.Hex()))
	_, err = svc.Get(ctx, created.ID.Hex())
	assert.True(t, errors.Is(err, apperrors.NotFoundErr))

	_, err = svc.Get(ctx, "not-an-object-id")
	assert.True(t, errors.Is(err, apperrors.NotFoundErr))
}

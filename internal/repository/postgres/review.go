package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

const reviewColumns = `id, patient_id, doctor_id, rating, comment, created_at, updated_at`

func (r *reviewRepository) Create(ctx context.Context, review *model.Review) error {
	query := `
		INSERT INTO reviews (id, patient_id, doctor_id, rating, comment, created_at, updated_at)
		VALUES (:id, :patient_id, :doctor_id, :rating, :comment, :created_at, :updated_at)`

	if _, err := r.GetDB().NamedExecContext(ctx, query, review); err != nil {
		return translate(err, "review")
	}
	return nil
}

func (r *reviewRepository) Get(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	var review model.Review
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE id = $1`, reviewColumns)
	if err := r.GetDB().GetContext(ctx, &review, query, id); err != nil {
		return nil, translate(err, "review")
	}
	return &review, nil
}

func (r *reviewRepository) List(ctx context.Context, filter *model.ReviewFilter) ([]*model.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE TRUE`, reviewColumns)
	args := []interface{}{}

	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		query += fmt.Sprintf(" AND doctor_id = $%d", len(args))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	args = append(args, filter.Limit(), filter.Offset())
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var reviews []*model.Review
	if err := r.GetDB().SelectContext(ctx, &reviews, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// Update only touches reviews owned by review.PatientID; the doctor never changes.
func (r *reviewRepository) Update(ctx context.Context, review *model.Review) error {
	query := fmt.Sprintf(`
		UPDATE reviews SET rating = $3, comment = $4, updated_at = NOW()
		WHERE id = $1 AND patient_id = $2
		RETURNING %s`, reviewColumns)

	if err := r.GetDB().GetContext(ctx, review, query, review.ID, review.PatientID, review.Rating, review.Comment); err != nil {
		return translate(err, "review")
	}
	return nil
}

func (r *reviewRepository) Delete(ctx context.Context, id, patientID uuid.UUID) (*model.Review, error) {
	var review model.Review
	query := fmt.Sprintf(`DELETE FROM reviews WHERE id = $1 AND patient_id = $2 RETURNING %s`, reviewColumns)
	if err := r.GetDB().GetContext(ctx, &review, query, id, patientID); err != nil {
		return nil, translate(err, "review")
	}
	return &review, nil
}

// Stats is the rating aggregate for one doctor, defaulting to 1 and 0 when
// there are no reviews.
func (r *reviewRepository) Stats(ctx context.Context, doctorID uuid.UUID) (model.RatingStats, error) {
	query := `
		SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 1)::float8 AS average, COUNT(*) AS quantity
		FROM reviews
		WHERE doctor_id = $1`

	var stats model.RatingStats
	if err := r.GetDB().GetContext(ctx, &stats, query, doctorID); err != nil {
		return model.RatingStats{}, fmt.Errorf("failed to aggregate ratings: %w", err)
	}
	return stats, nil
}

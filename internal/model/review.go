package model

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/pkg/validator"
)

type Review struct {
	Base
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id" db:"doctor_id"`
	Rating    int       `json:"rating" db:"rating" validate:"gte=1,lte=5"`
	Comment   string    `json:"comment" db:"comment" validate:"min=10,max=300"`
}

func (r *Review) Normalize() {
	r.Comment = strings.TrimSpace(r.Comment)
}

func (r *Review) Validate() error {
	r.Normalize()
	return validator.Validate(r)
}

// RatingStats is the aggregate kept on the doctor's options.
type RatingStats struct {
	Average  float64 `db:"average"`
	Quantity int     `db:"quantity"`
}

type ReviewFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Pagination
}

type CreateReviewRequest struct {
	DoctorID uuid.UUID `json:"doctor" binding:"required"`
	Rating   int       `json:"rating" binding:"required"`
	Comment  string    `json:"comment" binding:"required"`
}

type UpdateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

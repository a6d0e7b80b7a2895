package model

import (
	"time"

	"github.com/google/uuid"
)

type Visit struct {
	Base
	PatientID     uuid.UUID      `json:"patient_id" db:"patient_id"`
	DoctorID      uuid.UUID      `json:"doctor_id" db:"doctor_id"`
	DateTime      time.Time      `json:"date_time" db:"date_time"`
	Closed        bool           `json:"closed" db:"closed"`
	Prescriptions []Prescription `json:"prescriptions,omitempty" db:"-"`
}

type Prescription struct {
	ID        uuid.UUID `json:"id" db:"id"`
	VisitID   uuid.UUID `json:"-" db:"visit_id"`
	Drug      string    `json:"drug" db:"drug" validate:"required,max=100"`
	Count     int       `json:"count" db:"count" validate:"gte=1"`
	Usage     string    `json:"usage" db:"usage" validate:"max=200"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// VisitScope restricts which visits a lookup or mutation may match. Nil
// fields are not constrained.
type VisitScope struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Closed    *bool
}

// OpenFor scopes to a patient's visits that are still open.
func OpenFor(patientID uuid.UUID) VisitScope {
	open := false
	return VisitScope{PatientID: &patientID, Closed: &open}
}

type VisitFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Closed    *bool
	From      *time.Time
	To        *time.Time
	Pagination
}

// VisitReminder is an open visit joined with what a reminder needs.
type VisitReminder struct {
	VisitID      uuid.UUID `json:"visit_id" db:"visit_id"`
	DateTime     time.Time `json:"date_time" db:"date_time"`
	PatientName  *string   `json:"patient_name" db:"patient_name"`
	PatientEmail *string   `json:"patient_email" db:"patient_email"`
	DoctorName   *string   `json:"doctor_name" db:"doctor_name"`
}

type BookVisitRequest struct {
	DoctorID *uuid.UUID `json:"doctor"`
	DateTime *time.Time `json:"date_time"`
}

type RescheduleVisitRequest struct {
	DateTime *time.Time `json:"date_time"`
}

type AddPrescriptionsRequest struct {
	Prescriptions []Prescription `json:"prescriptions" binding:"required,min=1"`
}

// Slot is a bookable instant on a doctor's calendar.
type Slot struct {
	DateTime time.Time `json:"date_time"`
	Booked   bool      `json:"booked"`
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

const visitColumns = `id, patient_id, doctor_id, date_time, closed, created_at, updated_at`

// scopeClause renders the optional scope as extra AND conditions, numbering
// placeholders after the ones already in args.
func scopeClause(scope model.VisitScope, args []interface{}) (string, []interface{}) {
	var conds []string
	if scope.PatientID != nil {
		args = append(args, *scope.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if scope.DoctorID != nil {
		args = append(args, *scope.DoctorID)
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if scope.Closed != nil {
		args = append(args, *scope.Closed)
		conds = append(conds, fmt.Sprintf("closed = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conds, " AND "), args
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) error {
	query := `
		INSERT INTO visits (id, patient_id, doctor_id, date_time, closed, created_at, updated_at)
		VALUES (:id, :patient_id, :doctor_id, :date_time, :closed, :created_at, :updated_at)`

	if _, err := r.GetDB().NamedExecContext(ctx, query, visit); err != nil {
		return translate(err, "visit")
	}
	return nil
}

func (r *visitRepository) Get(ctx context.Context, id uuid.UUID, scope model.VisitScope) (*model.Visit, error) {
	cond, args := scopeClause(scope, []interface{}{id})
	query := fmt.Sprintf(`SELECT %s FROM visits WHERE id = $1%s`, visitColumns, cond)

	var visit model.Visit
	if err := r.GetDB().GetContext(ctx, &visit, query, args...); err != nil {
		return nil, translate(err, "visit")
	}
	return &visit, nil
}

func (r *visitRepository) List(ctx context.Context, filter *model.VisitFilter) ([]*model.Visit, error) {
	cond, args := scopeClause(model.VisitScope{
		PatientID: filter.PatientID,
		DoctorID:  filter.DoctorID,
		Closed:    filter.Closed,
	}, nil)
	query := fmt.Sprintf(`SELECT %s FROM visits WHERE TRUE%s`, visitColumns, cond)

	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND date_time >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND date_time < $%d", len(args))
	}
	args = append(args, filter.Limit(), filter.Offset())
	query += fmt.Sprintf(" ORDER BY date_time LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var visits []*model.Visit
	if err := r.GetDB().SelectContext(ctx, &visits, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

func (r *visitRepository) ListForPatientDoctor(ctx context.Context, patientID, doctorID uuid.UUID, from, to time.Time) ([]*model.Visit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM visits
		WHERE patient_id = $1 AND doctor_id = $2 AND date_time >= $3 AND date_time < $4`, visitColumns)

	var visits []*model.Visit
	if err := r.GetDB().SelectContext(ctx, &visits, query, patientID, doctorID, from, to); err != nil {
		return nil, fmt.Errorf("failed to query same-day visits: %w", err)
	}
	return visits, nil
}

func (r *visitRepository) BookedTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	var times []time.Time
	err := r.GetDB().SelectContext(ctx, &times,
		`SELECT date_time FROM visits WHERE doctor_id = $1 AND date_time >= $2 AND date_time < $3 ORDER BY date_time`,
		doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query booked times: %w", err)
	}
	return times, nil
}

func (r *visitRepository) Reschedule(ctx context.Context, id uuid.UUID, scope model.VisitScope, dateTime time.Time) (*model.Visit, error) {
	cond, args := scopeClause(scope, []interface{}{id, dateTime})
	query := fmt.Sprintf(`
		UPDATE visits SET date_time = $2, updated_at = NOW()
		WHERE id = $1%s
		RETURNING %s`, cond, visitColumns)

	var visit model.Visit
	if err := r.GetDB().GetContext(ctx, &visit, query, args...); err != nil {
		return nil, translate(err, "visit")
	}
	return &visit, nil
}

func (r *visitRepository) Delete(ctx context.Context, id uuid.UUID, scope model.VisitScope) error {
	cond, args := scopeClause(scope, []interface{}{id})

	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM visits WHERE id = $1`+cond, args...)
	if err != nil {
		return fmt.Errorf("failed to delete visit: %w", err)
	}
	return mustAffect(res, "visit")
}

func (r *visitRepository) Close(ctx context.Context, id, doctorID uuid.UUID) (*model.Visit, error) {
	query := fmt.Sprintf(`
		UPDATE visits SET closed = TRUE, updated_at = NOW()
		WHERE id = $1 AND doctor_id = $2 AND closed = FALSE
		RETURNING %s`, visitColumns)

	var visit model.Visit
	if err := r.GetDB().GetContext(ctx, &visit, query, id, doctorID); err != nil {
		return nil, translate(err, "visit")
	}
	return &visit, nil
}

func (r *visitRepository) HasClosedVisit(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.GetDB().GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM visits WHERE patient_id = $1 AND doctor_id = $2 AND closed = TRUE)`,
		patientID, doctorID)
	if err != nil {
		return false, fmt.Errorf("failed to check closed visits: %w", err)
	}
	return exists, nil
}

func (r *visitRepository) AddPrescriptions(ctx context.Context, visitID, doctorID uuid.UUID, items []model.Prescription) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var owned bool
		if err := tx.GetContext(ctx, &owned,
			`SELECT EXISTS (SELECT 1 FROM visits WHERE id = $1 AND doctor_id = $2)`,
			visitID, doctorID); err != nil {
			return fmt.Errorf("failed to check visit: %w", err)
		}
		if !owned {
			return apperrors.NotFound("visit", nil)
		}

		query := `
			INSERT INTO prescriptions (id, visit_id, drug, count, usage, created_at)
			VALUES (:id, :visit_id, :drug, :count, :usage, :created_at)`
		for i := range items {
			items[i].VisitID = visitID
			if _, err := tx.NamedExecContext(ctx, query, &items[i]); err != nil {
				return fmt.Errorf("failed to add prescription: %w", err)
			}
		}
		return nil
	})
}

func (r *visitRepository) ListPrescriptions(ctx context.Context, visitID uuid.UUID) ([]model.Prescription, error) {
	var items []model.Prescription
	err := r.GetDB().SelectContext(ctx, &items,
		`SELECT id, visit_id, drug, count, usage, created_at FROM prescriptions WHERE visit_id = $1 ORDER BY created_at`,
		visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return items, nil
}

func (r *visitRepository) DeletePrescription(ctx context.Context, visitID, doctorID, prescriptionID uuid.UUID) error {
	query := `
		DELETE FROM prescriptions p
		USING visits v
		WHERE p.visit_id = v.id AND p.id = $1 AND v.id = $2 AND v.doctor_id = $3`

	res, err := r.GetDB().ExecContext(ctx, query, prescriptionID, visitID, doctorID)
	if err != nil {
		return fmt.Errorf("failed to delete prescription: %w", err)
	}
	return mustAffect(res, "prescription")
}

func (r *visitRepository) ListReminders(ctx context.Context, from, to time.Time) ([]*model.VisitReminder, error) {
	query := `
		SELECT v.id AS visit_id, v.date_time, p.name AS patient_name, p.email AS patient_email,
			d.name AS doctor_name
		FROM visits v
		JOIN accounts p ON p.id = v.patient_id AND p.active = TRUE
		JOIN accounts d ON d.id = v.doctor_id
		WHERE v.closed = FALSE AND v.date_time >= $1 AND v.date_time < $2
		ORDER BY v.date_time`

	var reminders []*model.VisitReminder
	if err := r.GetDB().SelectContext(ctx, &reminders, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

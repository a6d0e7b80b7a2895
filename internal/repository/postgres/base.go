package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

const uniqueViolation = "23505"

// uniqueFields maps constraint names to the field reported to clients.
var uniqueFields = map[string]string{
	"accounts_phone_key":                "phone",
	"accounts_new_phone_key":            "phone",
	"accounts_email_key":                "email",
	"accounts_id_card_key":              "id card",
	"reviews_doctor_id_patient_id_key":  "review",
	"visits_doctor_id_date_time_key":    "visit time",
	"credentials_reset_token_hash_key":  "token",
	"credentials_verify_token_hash_key": "token",
}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// translate turns driver errors into AppErrors the API can surface.
// A taken (doctor, date_time) pair is a booking race, not a generic duplicate.
func translate(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(resource, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == "visits_doctor_id_date_time_key" {
			return apperrors.SlotConflict(err)
		}
		field, ok := uniqueFields[pqErr.Constraint]
		if !ok {
			field = resource
		}
		return apperrors.DuplicateKey(field, err)
	}
	return err
}

// mustAffect reports NotFound when a scoped write matched nothing.
func mustAffect(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(resource, nil)
	}
	return nil
}

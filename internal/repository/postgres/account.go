package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
)

const accountColumns = `id, name, phone, new_phone, email, email_verified, id_card, birthday,
	photo, role, active, doctor_id, doctor_options, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO accounts (
				id, name, phone, email, email_verified, id_card, birthday, photo,
				role, active, doctor_id, doctor_options, created_at, updated_at
			) VALUES (
				:id, :name, :phone, :email, :email_verified, :id_card, :birthday, :photo,
				:role, :active, :doctor_id, :doctor_options, :created_at, :updated_at
			)`
		if _, err := tx.NamedExecContext(ctx, query, account); err != nil {
			return translate(err, "account")
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (account_id) VALUES ($1)`, account.ID); err != nil {
			return fmt.Errorf("failed to create credential: %w", err)
		}
		return nil
	})
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.getBy(ctx, "id", id)
}

func (r *accountRepository) GetByPhone(ctx context.Context, phone string) (*model.Account, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.getBy(ctx, "email", strings.ToLower(email))
}

func (r *accountRepository) getBy(ctx context.Context, column string, value interface{}) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s = $1 AND active = TRUE`, accountColumns, column)

	var account model.Account
	if err := r.GetDB().GetContext(ctx, &account, query, value); err != nil {
		return nil, translate(err, "account")
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context, filter *model.AccountFilter) ([]*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE active = TRUE`, accountColumns)
	args := []interface{}{}

	if filter.Role != "" {
		args = append(args, filter.Role)
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if filter.Specification != "" {
		args = append(args, filter.Specification)
		query += fmt.Sprintf(" AND doctor_options->>'specification' = $%d", len(args))
	}

	args = append(args, filter.Limit(), filter.Offset())
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var accounts []*model.Account
	if err := r.GetDB().SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) UpdateProfile(ctx context.Context, account *model.Account) error {
	query := `
		UPDATE accounts
		SET name = :name, email = :email, email_verified = :email_verified,
			id_card = :id_card, birthday = :birthday, photo = :photo, updated_at = NOW()
		WHERE id = :id AND active = TRUE`

	res, err := r.GetDB().NamedExecContext(ctx, query, account)
	if err != nil {
		return translate(err, "account")
	}
	return mustAffect(res, "account")
}

func (r *accountRepository) UpdateDoctorOptions(ctx context.Context, id uuid.UUID, opts *model.DoctorOptions) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET doctor_options = $2::jsonb || jsonb_build_object(
				'ratings_average', COALESCE(doctor_options->'ratings_average', to_jsonb(1.0)),
				'ratings_quantity', COALESCE(doctor_options->'ratings_quantity', to_jsonb(0))
			),
			updated_at = NOW()
		WHERE id = $1 AND role = 'doctor' AND active = TRUE
		RETURNING %s`, accountColumns)

	var account model.Account
	if err := r.GetDB().GetContext(ctx, &account, query, id, opts); err != nil {
		return nil, translate(err, "doctor")
	}
	return &account, nil
}

func (r *accountRepository) UpdateRatings(ctx context.Context, doctorID uuid.UUID, stats model.RatingStats) error {
	query := `
		UPDATE accounts
		SET doctor_options = COALESCE(doctor_options, '{}'::jsonb) || jsonb_build_object(
				'ratings_average', $2::numeric,
				'ratings_quantity', $3::int
			),
			updated_at = NOW()
		WHERE id = $1 AND role = 'doctor'`

	res, err := r.GetDB().ExecContext(ctx, query, doctorID, stats.Average, stats.Quantity)
	if err != nil {
		return fmt.Errorf("failed to update ratings: %w", err)
	}
	return mustAffect(res, "doctor")
}

func (r *accountRepository) SetPendingPhone(ctx context.Context, id uuid.UUID, phone *string) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE accounts SET new_phone = $2, updated_at = NOW() WHERE id = $1 AND active = TRUE`, id, phone)
	if err != nil {
		return translate(err, "account")
	}
	return mustAffect(res, "account")
}

func (r *accountRepository) ApplyPendingPhone(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET phone = new_phone, new_phone = NULL, updated_at = NOW()
		WHERE id = $1 AND new_phone IS NOT NULL AND active = TRUE
		RETURNING %s`, accountColumns)

	var account model.Account
	if err := r.GetDB().GetContext(ctx, &account, query, id); err != nil {
		return nil, translate(err, "pending phone")
	}
	return &account, nil
}

func (r *accountRepository) SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE accounts SET email_verified = $2, updated_at = NOW() WHERE id = $1 AND active = TRUE`, id, verified)
	if err != nil {
		return fmt.Errorf("failed to update email verification: %w", err)
	}
	return mustAffect(res, "account")
}

func (r *accountRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE accounts SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active = TRUE`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	return mustAffect(res, "account")
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type tokenColumns struct {
	hash    string
	expires string
}

var tokenColumnsByKind = map[model.TokenKind]tokenColumns{
	model.TokenPasswordReset: {hash: "reset_token_hash", expires: "reset_token_expires_at"},
	model.TokenEmailVerify:   {hash: "verify_token_hash", expires: "verify_token_expires_at"},
}

func columnsFor(kind model.TokenKind) (tokenColumns, error) {
	cols, ok := tokenColumnsByKind[kind]
	if !ok {
		return tokenColumns{}, fmt.Errorf("unknown token kind %q", kind)
	}
	return cols, nil
}

func (r *credentialRepository) Get(ctx context.Context, accountID uuid.UUID) (*model.Credential, error) {
	query := `
		SELECT account_id, password_hash, password_changed_at, otp_hash, otp_expires_at,
			reset_token_hash, reset_token_expires_at, verify_token_hash, verify_token_expires_at
		FROM credentials
		WHERE account_id = $1`

	var cred model.Credential
	if err := r.GetDB().GetContext(ctx, &cred, query, accountID); err != nil {
		return nil, translate(err, "credential")
	}
	return &cred, nil
}

func (r *credentialRepository) SetPassword(ctx context.Context, accountID uuid.UUID, hash string, changedAt time.Time) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE credentials SET password_hash = $2, password_changed_at = $3 WHERE account_id = $1`,
		accountID, hash, changedAt)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return mustAffect(res, "credential")
}

func (r *credentialRepository) SetOTP(ctx context.Context, accountID uuid.UUID, hash string, expiresAt time.Time) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE credentials SET otp_hash = $2, otp_expires_at = $3 WHERE account_id = $1`,
		accountID, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return mustAffect(res, "credential")
}

func (r *credentialRepository) ClearOTP(ctx context.Context, accountID uuid.UUID, hash string) (bool, error) {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE credentials SET otp_hash = NULL, otp_expires_at = NULL WHERE account_id = $1 AND otp_hash = $2`,
		accountID, hash)
	if err != nil {
		return false, fmt.Errorf("failed to clear otp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *credentialRepository) SetToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind, hash string, expiresAt time.Time) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE credentials SET %s = $2, %s = $3 WHERE account_id = $1`, cols.hash, cols.expires)

	res, err := r.GetDB().ExecContext(ctx, query, accountID, hash, expiresAt)
	if err != nil {
		return translate(err, "credential")
	}
	return mustAffect(res, "credential")
}

func (r *credentialRepository) ClearToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE credentials SET %s = NULL, %s = NULL WHERE account_id = $1`, cols.hash, cols.expires)

	if _, err := r.GetDB().ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

func (r *credentialRepository) ConsumeToken(ctx context.Context, kind model.TokenKind, hash string, now time.Time) (uuid.UUID, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return uuid.Nil, err
	}
	query := fmt.Sprintf(`
		UPDATE credentials c
		SET %[1]s = NULL, %[2]s = NULL
		FROM accounts a
		WHERE a.id = c.account_id AND a.active = TRUE
			AND c.%[1]s = $1 AND c.%[2]s > $2
		RETURNING c.account_id`, cols.hash, cols.expires)

	var accountID uuid.UUID
	if err := r.GetDB().GetContext(ctx, &accountID, query, hash, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, apperrors.NotFound("token", nil)
		}
		return uuid.Nil, fmt.Errorf("failed to consume token: %w", err)
	}
	return accountID, nil
}

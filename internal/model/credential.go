package model

import (
	"time"

	"github.com/google/uuid"
)

// Credential holds the secret material of one account. Every secret is
// stored hashed; OTP and tokens carry their own expiry.
type Credential struct {
	AccountID           uuid.UUID  `db:"account_id"`
	PasswordHash        *string    `db:"password_hash"`
	PasswordChangedAt   *time.Time `db:"password_changed_at"`
	OTPHash             *string    `db:"otp_hash"`
	OTPExpiresAt        *time.Time `db:"otp_expires_at"`
	ResetTokenHash      *string    `db:"reset_token_hash"`
	ResetTokenExpiresAt *time.Time `db:"reset_token_expires_at"`
	VerifyTokenHash     *string    `db:"verify_token_hash"`
	VerifyTokenExpires  *time.Time `db:"verify_token_expires_at"`
}

func (c *Credential) HasPassword() bool {
	return c.PasswordHash != nil && *c.PasswordHash != ""
}

// TokenKind selects which time-boxed token slot is used.
type TokenKind string

const (
	TokenPasswordReset TokenKind = "password_reset"
	TokenEmailVerify   TokenKind = "email_verify"
)

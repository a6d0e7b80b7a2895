package password

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

const (
	MinLength = 8
	MaxLength = 64

	DefaultResetExpiry  = 10 * time.Minute
	DefaultVerifyExpiry = 20 * time.Minute

	// changeSkew backdates passwordChangedAt so a session minted in the same
	// second as the change still counts as issued after it.
	changeSkew = time.Second
)

type Service struct {
	creds   repository.CredentialRepository
	hasher  security.PasswordHasher
	clock   clock.Clock
	metrics *metrics.Metrics
	expiry  map[model.TokenKind]time.Duration
}

func NewService(
	creds repository.CredentialRepository,
	hasher security.PasswordHasher,
	clk clock.Clock,
	m *metrics.Metrics,
	resetExpiry, verifyExpiry time.Duration,
) *Service {
	if resetExpiry <= 0 {
		resetExpiry = DefaultResetExpiry
	}
	if verifyExpiry <= 0 {
		verifyExpiry = DefaultVerifyExpiry
	}
	return &Service{
		creds:   creds,
		hasher:  hasher,
		clock:   clk,
		metrics: m,
		expiry: map[model.TokenKind]time.Duration{
			model.TokenPasswordReset: resetExpiry,
			model.TokenEmailVerify:   verifyExpiry,
		},
	}
}

// CheckPolicy validates a new password and its confirmation.
func CheckPolicy(plaintext, confirm string) error {
	if plaintext == "" {
		return apperrors.MissingFields("password")
	}
	if confirm == "" {
		return apperrors.MissingFields("password_confirm")
	}
	if n := utf8.RuneCountInString(plaintext); n < MinLength || n > MaxLength {
		return apperrors.Validation(fmt.Sprintf("password must be between %d and %d characters", MinLength, MaxLength))
	}
	if plaintext != confirm {
		return apperrors.PasswordConfirmMismatch()
	}
	return nil
}

// SetPassword checks the policy, stores a fresh hash and stamps the change
// time, which invalidates every session issued before it.
func (s *Service) SetPassword(ctx context.Context, accountID uuid.UUID, plaintext, confirm string) error {
	if err := CheckPolicy(plaintext, confirm); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	changedAt := s.clock.Now().Add(-changeSkew)
	if err := s.creds.SetPassword(ctx, accountID, hash, changedAt); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}

// VerifyPassword reports PasswordMismatch when the account has no password
// or the candidate is wrong.
func (s *Service) VerifyPassword(ctx context.Context, accountID uuid.UUID, candidate string) error {
	cred, err := s.creds.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !cred.HasPassword() {
		return apperrors.PasswordMismatch("")
	}
	if err := s.hasher.Compare(*cred.PasswordHash, candidate); err != nil {
		return apperrors.PasswordMismatch("")
	}
	return nil
}

// HasPassword is false for phone-only accounts.
func (s *Service) HasPassword(ctx context.Context, accountID uuid.UUID) (bool, error) {
	cred, err := s.creds.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	return cred.HasPassword(), nil
}

// PasswordChangedAt feeds the session staleness check.
func (s *Service) PasswordChangedAt(ctx context.Context, accountID uuid.UUID) (*time.Time, error) {
	cred, err := s.creds.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return cred.PasswordChangedAt, nil
}

// IssueToken stores the hash of a new random token of kind and returns the
// plaintext for delivery. A previous token of the same kind is replaced.
func (s *Service) IssueToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind) (string, error) {
	expiry, ok := s.expiry[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	plain, hash, err := security.NewToken()
	if err != nil {
		return "", err
	}
	if err := s.creds.SetToken(ctx, accountID, kind, hash, s.clock.Now().Add(expiry)); err != nil {
		return "", fmt.Errorf("failed to store %s token: %w", kind, err)
	}

	s.metrics.TokensIssued.WithLabelValues(string(kind)).Inc()
	return plain, nil
}

// RevokeToken clears a token that could not be delivered.
func (s *Service) RevokeToken(ctx context.Context, accountID uuid.UUID, kind model.TokenKind) error {
	return s.creds.ClearToken(ctx, accountID, kind)
}

// ConsumeToken returns the owner of an unexpired token and clears it, so a
// token works at most once whatever the caller does next.
func (s *Service) ConsumeToken(ctx context.Context, kind model.TokenKind, plain string) (uuid.UUID, error) {
	if plain == "" {
		return uuid.Nil, apperrors.NotFound("token", nil)
	}
	accountID, err := s.creds.ConsumeToken(ctx, kind, security.HashToken(plain), s.clock.Now())
	if err != nil {
		return uuid.Nil, err
	}
	return accountID, nil
}

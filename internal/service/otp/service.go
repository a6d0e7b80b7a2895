package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

const (
	CodeDigits    = 6
	DefaultExpiry = 10 * time.Minute
)

type Service struct {
	creds   repository.CredentialRepository
	hasher  security.PasswordHasher
	sender  notification.SMSSender
	clock   clock.Clock
	metrics *metrics.Metrics
	expiry  time.Duration
}

func NewService(
	creds repository.CredentialRepository,
	hasher security.PasswordHasher,
	sender notification.SMSSender,
	clk clock.Clock,
	m *metrics.Metrics,
	expiry time.Duration,
) *Service {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Service{creds: creds, hasher: hasher, sender: sender, clock: clk, metrics: m, expiry: expiry}
}

// Issue replaces any pending code for the account with a fresh one and
// sends it to destination. Only the hash is stored.
func (s *Service) Issue(ctx context.Context, accountID uuid.UUID, destination string) error {
	code, err := security.NewNumericCode(CodeDigits)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("failed to hash otp: %w", err)
	}

	if err := s.creds.SetOTP(ctx, accountID, hash, s.clock.Now().Add(s.expiry)); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.expiry.Minutes()))
	if err := s.sender.SendSMS(ctx, destination, body); err != nil {
		if _, clearErr := s.creds.ClearOTP(ctx, accountID, hash); clearErr != nil {
			return fmt.Errorf("failed to roll back otp after send error %v: %w", err, clearErr)
		}
		return apperrors.InternalMessage("There was an error sending the code. Try again later", err)
	}

	s.metrics.OTPIssued.Inc()
	return nil
}

// Verify checks candidate against the pending code without consuming it and
// returns the stored hash for the caller to clear. Expiry is checked before
// the hash so an expired code is reported as such even when correct.
func (s *Service) Verify(ctx context.Context, accountID uuid.UUID, candidate string) (string, error) {
	cred, err := s.creds.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if cred.OTPHash == nil || cred.OTPExpiresAt == nil {
		s.metrics.OTPVerifications.WithLabelValues("mismatch").Inc()
		return "", apperrors.OTPMismatch()
	}

	if !s.clock.Now().Before(*cred.OTPExpiresAt) {
		s.metrics.OTPVerifications.WithLabelValues("expired").Inc()
		if _, err := s.creds.ClearOTP(ctx, accountID, *cred.OTPHash); err != nil {
			return "", err
		}
		return "", apperrors.OTPExpired()
	}

	if err := s.hasher.Compare(*cred.OTPHash, candidate); err != nil {
		s.metrics.OTPVerifications.WithLabelValues("mismatch").Inc()
		return "", apperrors.OTPMismatch()
	}

	return *cred.OTPHash, nil
}

// Consume verifies candidate and clears the code in one conditional write.
// Of two concurrent requests with the same code only one gets through.
func (s *Service) Consume(ctx context.Context, accountID uuid.UUID, candidate string) error {
	hash, err := s.Verify(ctx, accountID, candidate)
	if err != nil {
		return err
	}

	cleared, err := s.creds.ClearOTP(ctx, accountID, hash)
	if err != nil {
		return err
	}
	if !cleared {
		s.metrics.OTPVerifications.WithLabelValues("mismatch").Inc()
		return apperrors.OTPMismatch()
	}

	s.metrics.OTPVerifications.WithLabelValues("ok").Inc()
	return nil
}

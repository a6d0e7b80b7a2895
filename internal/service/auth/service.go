package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/otp"
	"github.com/jwalitptl/clinic-api/internal/service/password"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const (
	DefaultResendCooldown = time.Minute
	minPhoneLength        = 10

	resetPath  = "/api/v1/auth/reset-password/"
	verifyPath = "/api/v1/auth/verify-email/"
)

type Service struct {
	accounts  repository.AccountRepository
	otp       *otp.Service
	passwords *password.Service
	issuer    auth.SessionIssuer
	mail      email.Service
	clock     clock.Clock
	metrics   *metrics.Metrics
	cooldown  *cache.Cache
	baseURL   string
}

func NewService(
	accounts repository.AccountRepository,
	otpSvc *otp.Service,
	passwords *password.Service,
	issuer auth.SessionIssuer,
	mail email.Service,
	clk clock.Clock,
	m *metrics.Metrics,
	resendCooldown time.Duration,
	baseURL string,
) *Service {
	if resendCooldown <= 0 {
		resendCooldown = DefaultResendCooldown
	}
	return &Service{
		accounts:  accounts,
		otp:       otpSvc,
		passwords: passwords,
		issuer:    issuer,
		mail:      mail,
		clock:     clk,
		metrics:   m,
		cooldown:  cache.New(resendCooldown, 2*resendCooldown),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// RequestOTP sends a login code to phone, creating a patient account for an
// unknown number. When req.NewPhone is set the caller must be logged in and
// the code goes to the new number, which is held as pending until
// UpdatePhone confirms it.
func (s *Service) RequestOTP(ctx context.Context, actor *model.Account, req *model.RequestOTPRequest) error {
	var (
		account     *model.Account
		destination string
		err         error
	)

	if req.NewPhone != "" {
		if actor == nil {
			return apperrors.Unauthenticated(nil)
		}
		destination = model.NormalizePhone(req.NewPhone)
		if err := checkPhone(destination); err != nil {
			return err
		}
		if actor.Phone != nil && *actor.Phone == destination {
			return apperrors.BadRequest("This is already your phone number", nil)
		}
		if _, err := s.accounts.GetByPhone(ctx, destination); err == nil {
			return apperrors.DuplicateKey("phone", nil)
		} else if !apperrors.Is(err, apperrors.NotFoundErr) {
			return err
		}
		if err := s.accounts.SetPendingPhone(ctx, actor.ID, &destination); err != nil {
			return err
		}
		account = actor
	} else {
		if req.Phone == "" {
			return apperrors.MissingFields("phone")
		}
		destination = model.NormalizePhone(req.Phone)
		if err := checkPhone(destination); err != nil {
			return err
		}
		account, err = s.findOrCreateByPhone(ctx, destination)
		if err != nil {
			return err
		}
	}

	// Add fails while the key is still cached.
	if err := s.cooldown.Add(destination, struct{}{}, cache.DefaultExpiration); err != nil {
		return apperrors.TooManyRequests()
	}
	if err := s.otp.Issue(ctx, account.ID, destination); err != nil {
		s.cooldown.Delete(destination)
		return err
	}
	return nil
}

func checkPhone(phone string) error {
	if len(phone) < minPhoneLength {
		return apperrors.Validation(fmt.Sprintf("phone must be at least %d digits", minPhoneLength))
	}
	return nil
}

func (s *Service) findOrCreateByPhone(ctx context.Context, phone string) (*model.Account, error) {
	account, err := s.accounts.GetByPhone(ctx, phone)
	if err == nil {
		return account, nil
	}
	if !apperrors.Is(err, apperrors.NotFoundErr) {
		return nil, err
	}

	now := s.clock.Now()
	account = &model.Account{
		Base:   model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Phone:  &phone,
		Photo:  model.DefaultPhoto,
		Role:   model.RolePatient,
		Active: true,
	}
	if err := account.Validate(now); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// LoginPhone consumes the pending code of the phone's account.
func (s *Service) LoginPhone(ctx context.Context, req *model.PhoneLoginRequest) (*model.SessionResponse, error) {
	account, err := s.accounts.GetByPhone(ctx, model.NormalizePhone(req.Phone))
	if err != nil {
		s.metrics.Logins.WithLabelValues("phone", "failed").Inc()
		return nil, err
	}
	if err := s.otp.Consume(ctx, account.ID, req.OTP); err != nil {
		s.metrics.Logins.WithLabelValues("phone", "failed").Inc()
		return nil, err
	}

	s.metrics.Logins.WithLabelValues("phone", "ok").Inc()
	return s.startSession(account)
}

func (s *Service) SignupEmail(ctx context.Context, req *model.EmailSignupRequest) (*model.SessionResponse, error) {
	if err := password.CheckPolicy(req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	name := strings.TrimSpace(req.Name)
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	account := &model.Account{
		Base:   model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:   &name,
		Email:  &addr,
		Photo:  model.DefaultPhoto,
		Role:   model.RolePatient,
		Active: true,
	}
	if err := account.Validate(now); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	if err := s.passwords.SetPassword(ctx, account.ID, req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}

	if err := s.mail.SendWelcome(ctx, addr, name); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("account_id", account.ID.String()).Msg("failed to send welcome email")
	}
	return s.startSession(account)
}

func (s *Service) LoginEmail(ctx context.Context, req *model.EmailLoginRequest) (*model.SessionResponse, error) {
	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		s.metrics.Logins.WithLabelValues("email", "failed").Inc()
		if apperrors.Is(err, apperrors.NotFoundErr) {
			return nil, apperrors.PasswordMismatch("")
		}
		return nil, err
	}
	if err := s.passwords.VerifyPassword(ctx, account.ID, req.Password); err != nil {
		s.metrics.Logins.WithLabelValues("email", "failed").Inc()
		return nil, err
	}

	s.metrics.Logins.WithLabelValues("email", "ok").Inc()
	return s.startSession(account)
}

// ForgotPassword mails a reset link. The token is revoked when the mail
// cannot be sent.
func (s *Service) ForgotPassword(ctx context.Context, req *model.ForgotPasswordRequest) error {
	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		return err
	}

	token, err := s.passwords.IssueToken(ctx, account.ID, model.TokenPasswordReset)
	if err != nil {
		return err
	}
	if err := s.mail.SendPasswordReset(ctx, *account.Email, s.baseURL+resetPath+token); err != nil {
		return s.revoke(ctx, account.ID, model.TokenPasswordReset, err)
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token string, req *model.ResetPasswordRequest) (*model.SessionResponse, error) {
	if err := password.CheckPolicy(req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}

	accountID, err := s.passwords.ConsumeToken(ctx, model.TokenPasswordReset, token)
	if err != nil {
		return nil, apperrors.BadRequest("Token is invalid or has expired", err)
	}
	if err := s.passwords.SetPassword(ctx, accountID, req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.startSession(account)
}

// UpdatePassword replaces the password of a logged-in account. The current
// session becomes stale, so a fresh one is returned.
func (s *Service) UpdatePassword(ctx context.Context, actor *model.Account, req *model.UpdatePasswordRequest) (*model.SessionResponse, error) {
	if err := s.passwords.VerifyPassword(ctx, actor.ID, req.CurrentPassword); err != nil {
		return nil, apperrors.PasswordMismatch("Your current password is wrong")
	}
	if err := s.passwords.SetPassword(ctx, actor.ID, req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}
	return s.startSession(actor)
}

// SetPassword is for phone-only accounts adding a first password.
func (s *Service) SetPassword(ctx context.Context, actor *model.Account, req *model.SetPasswordRequest) (*model.SessionResponse, error) {
	has, err := s.passwords.HasPassword(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, apperrors.Forbidden("You already have a password. Use update password instead")
	}
	if err := s.passwords.SetPassword(ctx, actor.ID, req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}
	return s.startSession(actor)
}

// UpdatePhone confirms the pending phone with the code sent to it.
func (s *Service) UpdatePhone(ctx context.Context, actor *model.Account, req *model.UpdatePhoneRequest) (*model.Account, error) {
	if actor.NewPhone == nil {
		return nil, apperrors.BadRequest("Request a code for the new phone number first", nil)
	}
	if err := s.otp.Consume(ctx, actor.ID, req.OTP); err != nil {
		return nil, err
	}
	return s.accounts.ApplyPendingPhone(ctx, actor.ID)
}

// RequestEmailVerification mails a verification link to the account's email.
func (s *Service) RequestEmailVerification(ctx context.Context, actor *model.Account) error {
	if actor.Email == nil {
		return apperrors.BadRequest("Add an email address to your profile first", nil)
	}
	if actor.EmailVerified {
		return apperrors.BadRequest("Your email is already verified", nil)
	}

	token, err := s.passwords.IssueToken(ctx, actor.ID, model.TokenEmailVerify)
	if err != nil {
		return err
	}
	if err := s.mail.SendVerification(ctx, *actor.Email, s.baseURL+verifyPath+token); err != nil {
		return s.revoke(ctx, actor.ID, model.TokenEmailVerify, err)
	}
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	accountID, err := s.passwords.ConsumeToken(ctx, model.TokenEmailVerify, token)
	if err != nil {
		return apperrors.BadRequest("Token is invalid or has expired", err)
	}
	return s.accounts.SetEmailVerified(ctx, accountID, true)
}

func (s *Service) revoke(ctx context.Context, accountID uuid.UUID, kind model.TokenKind, sendErr error) error {
	if err := s.passwords.RevokeToken(ctx, accountID, kind); err != nil {
		return fmt.Errorf("failed to revoke token after send error %v: %w", sendErr, err)
	}
	return apperrors.InternalMessage("There was an error sending the email. Try again later", sendErr)
}

// Authenticate resolves a bearer token to its active account, rejecting
// sessions issued before the last password change.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, apperrors.Unauthenticated(nil)
	}
	session, err := s.issuer.Verify(token)
	if err != nil {
		return nil, apperrors.Unauthenticated(err)
	}

	account, err := s.accounts.Get(ctx, session.AccountID)
	if apperrors.Is(err, apperrors.NotFoundErr) {
		return nil, apperrors.AccountGone(err)
	}
	if err != nil {
		return nil, err
	}

	changedAt, err := s.passwords.PasswordChangedAt(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if auth.IsStale(changedAt, session.IssuedAt) {
		return nil, apperrors.SessionStale()
	}
	return account, nil
}

func (s *Service) startSession(account *model.Account) (*model.SessionResponse, error) {
	token, _, err := s.issuer.Issue(account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &model.SessionResponse{Token: token, Account: account}, nil
}

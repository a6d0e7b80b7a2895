package auth

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/service/otp"
	"github.com/jwalitptl/clinic-api/internal/service/password"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

var codePattern = regexp.MustCompile(`\d{6}`)

type smsOutbox struct {
	mu   sync.Mutex
	sent map[string]string
}

func (o *smsOutbox) SendSMS(ctx context.Context, to, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[to] = codePattern.FindString(body)
	return nil
}

func (o *smsOutbox) code(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[to]
}

type mailOutbox struct {
	links []string
	fail  error
}

func (m *mailOutbox) record(link string) error {
	if m.fail != nil {
		return m.fail
	}
	m.links = append(m.links, link)
	return nil
}

func (m *mailOutbox) SendPasswordReset(ctx context.Context, to, link string) error {
	return m.record(link)
}

func (m *mailOutbox) SendVerification(ctx context.Context, to, link string) error {
	return m.record(link)
}

func (m *mailOutbox) SendWelcome(ctx context.Context, to, name string) error { return nil }

func (m *mailOutbox) SendReminder(ctx context.Context, to, name, doctor string, at time.Time) error {
	return nil
}

func (m *mailOutbox) lastToken() string {
	link := m.links[len(m.links)-1]
	return link[strings.LastIndex(link, "/")+1:]
}

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *clock.Managed
	sms   *smsOutbox
	mail  *mailOutbox
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManaged(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	m := metrics.New(prometheus.NewRegistry())
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	sms := &smsOutbox{sent: map[string]string{}}
	mail := &mailOutbox{}

	issuer, err := auth.NewJWTIssuer("test-secret", 24*time.Hour, clk.Now)
	require.NoError(t, err)

	svc := NewService(
		store.Accounts(),
		otp.NewService(store.Credentials(), hasher, sms, clk, m, 0),
		password.NewService(store.Credentials(), hasher, clk, m, 0, 0),
		issuer, mail, clk, m, time.Minute, "http://clinic.test/",
	)
	return &fixture{svc: svc, store: store, clock: clk, sms: sms, mail: mail}
}

func (f *fixture) signup(t *testing.T) *model.SessionResponse {
	t.Helper()
	res, err := f.svc.SignupEmail(context.Background(), &model.EmailSignupRequest{
		Name:            "Sara Ahmadi",
		Email:           "Sara@Example.com",
		Password:        "password123",
		PasswordConfirm: "password123",
	})
	require.NoError(t, err)
	return res
}

func TestPhoneLoginCreatesPatient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{Phone: "+98 912 123 4567"}))
	code := f.sms.code("9121234567")
	require.Len(t, code, 6)

	res, err := f.svc.LoginPhone(ctx, &model.PhoneLoginRequest{Phone: "09121234567", OTP: code})
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, res.Account.Role)
	assert.Equal(t, "9121234567", *res.Account.Phone)

	account, err := f.svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, account.ID)

	_, err = f.svc.LoginPhone(ctx, &model.PhoneLoginRequest{Phone: "9121234567", OTP: code})
	assert.True(t, errors.Is(err, apperrors.OTPMismatchErr))
}

func TestRequestOTPValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{})
	assert.True(t, errors.Is(err, apperrors.MissingFieldsErr))

	err = f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{Phone: "0912"})
	assert.True(t, errors.Is(err, apperrors.ValidationErr))

	err = f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{NewPhone: "9121234567"})
	assert.True(t, errors.Is(err, apperrors.UnauthenticatedErr))
}

func TestRequestOTPCooldown(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := &model.RequestOTPRequest{Phone: "9121234567"}

	require.NoError(t, f.svc.RequestOTP(ctx, nil, req))
	err := f.svc.RequestOTP(ctx, nil, req)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 429, appErr.StatusCode())

	// Another number is not affected.
	assert.NoError(t, f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{Phone: "9127654321"}))
}

func TestEmailSignupAndLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.signup(t)
	assert.Equal(t, "sara@example.com", *res.Account.Email)

	_, err := f.svc.SignupEmail(ctx, &model.EmailSignupRequest{
		Name: "Sara Ahmadi", Email: "sara@example.com", Password: "password123", PasswordConfirm: "password123",
	})
	assert.True(t, errors.Is(err, apperrors.DuplicateKeyErr))

	_, err = f.svc.LoginEmail(ctx, &model.EmailLoginRequest{Email: "sara@example.com", Password: "password123"})
	assert.NoError(t, err)

	_, err = f.svc.LoginEmail(ctx, &model.EmailLoginRequest{Email: "sara@example.com", Password: "wrong-pass"})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrPasswordMismatch, appErr.Code)
	assert.Equal(t, 401, appErr.StatusCode())

	_, err = f.svc.LoginEmail(ctx, &model.EmailLoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, apperrors.PasswordMismatchErr))
}

func TestSignupConfirmMismatch(t *testing.T) {
	f := setup(t)

	_, err := f.svc.SignupEmail(context.Background(), &model.EmailSignupRequest{
		Name: "Sara Ahmadi", Email: "sara@example.com", Password: "password123", PasswordConfirm: "password321",
	})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.StatusCode())
}

func TestForgotAndResetPassword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.signup(t)

	require.NoError(t, f.svc.ForgotPassword(ctx, &model.ForgotPasswordRequest{Email: "sara@example.com"}))
	require.Len(t, f.mail.links, 1)
	assert.True(t, strings.HasPrefix(f.mail.links[0], "http://clinic.test/api/v1/auth/reset-password/"))
	token := f.mail.lastToken()

	reset := &model.ResetPasswordRequest{Password: "newpassword1", PasswordConfirm: "newpassword1"}
	res, err := f.svc.ResetPassword(ctx, token, reset)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	_, err = f.svc.ResetPassword(ctx, token, reset)
	assert.Error(t, err)

	_, err = f.svc.LoginEmail(ctx, &model.EmailLoginRequest{Email: "sara@example.com", Password: "newpassword1"})
	assert.NoError(t, err)
}

func TestResetTokenExpires(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.signup(t)

	require.NoError(t, f.svc.ForgotPassword(ctx, &model.ForgotPasswordRequest{Email: "sara@example.com"}))
	f.clock.WarpForward(password.DefaultResetExpiry + time.Second)

	_, err := f.svc.ResetPassword(ctx, f.mail.lastToken(),
		&model.ResetPasswordRequest{Password: "newpassword1", PasswordConfirm: "newpassword1"})
	assert.Error(t, err)
}

func TestForgotPasswordRollsBackOnMailFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.signup(t)
	f.mail.fail = errors.New("smtp down")

	err := f.svc.ForgotPassword(ctx, &model.ForgotPasswordRequest{Email: "sara@example.com"})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 500, appErr.StatusCode())

	cred, err := f.store.Credentials().Get(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.Nil(t, cred.ResetTokenHash)
	assert.Nil(t, cred.ResetTokenExpiresAt)
}

func TestUpdatePasswordStalesOldSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.signup(t)
	f.clock.WarpForward(10 * time.Second)

	_, err := f.svc.UpdatePassword(ctx, res.Account, &model.UpdatePasswordRequest{
		CurrentPassword: "wrong-pass", Password: "newpassword1", PasswordConfirm: "newpassword1",
	})
	assert.True(t, errors.Is(err, apperrors.PasswordMismatchErr))

	fresh, err := f.svc.UpdatePassword(ctx, res.Account, &model.UpdatePasswordRequest{
		CurrentPassword: "password123", Password: "newpassword1", PasswordConfirm: "newpassword1",
	})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, res.Token)
	assert.True(t, errors.Is(err, apperrors.SessionStaleErr))

	_, err = f.svc.Authenticate(ctx, fresh.Token)
	assert.NoError(t, err)
}

func TestSetPasswordOnlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{Phone: "9121234567"}))
	res, err := f.svc.LoginPhone(ctx, &model.PhoneLoginRequest{Phone: "9121234567", OTP: f.sms.code("9121234567")})
	require.NoError(t, err)

	req := &model.SetPasswordRequest{Password: "password123", PasswordConfirm: "password123"}
	_, err = f.svc.SetPassword(ctx, res.Account, req)
	require.NoError(t, err)

	_, err = f.svc.SetPassword(ctx, res.Account, req)
	assert.True(t, errors.Is(err, apperrors.ForbiddenErr))
}

func TestUpdatePhone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{Phone: "9121234567"}))
	res, err := f.svc.LoginPhone(ctx, &model.PhoneLoginRequest{Phone: "9121234567", OTP: f.sms.code("9121234567")})
	require.NoError(t, err)

	_, err = f.svc.UpdatePhone(ctx, res.Account, &model.UpdatePhoneRequest{OTP: "123456"})
	assert.Error(t, err)

	require.NoError(t, f.svc.RequestOTP(ctx, res.Account, &model.RequestOTPRequest{NewPhone: "09127654321"}))
	actor, err := f.store.Accounts().Get(ctx, res.Account.ID)
	require.NoError(t, err)

	updated, err := f.svc.UpdatePhone(ctx, actor, &model.UpdatePhoneRequest{OTP: f.sms.code("9127654321")})
	require.NoError(t, err)
	assert.Equal(t, "9127654321", *updated.Phone)
	assert.Nil(t, updated.NewPhone)
}

func TestRequestOTPNewPhoneTaken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{Phone: "9121234567"}))
	require.NoError(t, f.svc.RequestOTP(ctx, nil, &model.RequestOTPRequest{Phone: "9127654321"}))
	other, err := f.store.Accounts().GetByPhone(ctx, "9127654321")
	require.NoError(t, err)

	err = f.svc.RequestOTP(ctx, other, &model.RequestOTPRequest{NewPhone: "9121234567"})
	assert.True(t, errors.Is(err, apperrors.DuplicateKeyErr))
}

func TestVerifyEmail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.signup(t)

	require.NoError(t, f.svc.RequestEmailVerification(ctx, res.Account))
	token := f.mail.lastToken()

	require.NoError(t, f.svc.VerifyEmail(ctx, token))
	account, err := f.store.Accounts().Get(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.True(t, account.EmailVerified)

	assert.Error(t, f.svc.VerifyEmail(ctx, token))

	err = f.svc.RequestEmailVerification(ctx, account)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res := f.signup(t)

	_, err := f.svc.Authenticate(ctx, "")
	assert.True(t, errors.Is(err, apperrors.UnauthenticatedErr))

	_, err = f.svc.Authenticate(ctx, "garbage")
	assert.True(t, errors.Is(err, apperrors.UnauthenticatedErr))

	require.NoError(t, f.store.Accounts().Deactivate(ctx, res.Account.ID))
	_, err = f.svc.Authenticate(ctx, res.Token)
	assert.True(t, errors.Is(err, apperrors.UnauthenticatedErr))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode())
	assert.Equal(t, "The user belonging to this token no longer exists", appErr.Message)
}

package otp

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

var codePattern = regexp.MustCompile(`\d{6}`)

type captureSender struct {
	mu   sync.Mutex
	last string
	err  error
}

func (s *captureSender) SendSMS(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.last = codePattern.FindString(body)
	return nil
}

func (s *captureSender) code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type fixture struct {
	svc    *Service
	sender *captureSender
	clock  *clock.Managed
	store  *memory.Store
	id     uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	phone := "9120000000"
	acc := &model.Account{Base: model.Base{ID: uuid.New()}, Phone: &phone, Role: model.RolePatient, Active: true}
	require.NoError(t, store.Accounts().Create(context.Background(), acc))

	clk := clock.NewManaged(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	sender := &captureSender{}
	svc := NewService(store.Credentials(), security.NewBcryptHasher(bcrypt.MinCost), sender, clk,
		metrics.New(prometheus.NewRegistry()), 0)
	return &fixture{svc: svc, sender: sender, clock: clk, store: store, id: acc.ID}
}

func TestIssueStoresOnlyHash(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, f.id, "9120000000"))
	code := f.sender.code()
	assert.Len(t, code, CodeDigits)

	cred, err := f.store.Credentials().Get(ctx, f.id)
	require.NoError(t, err)
	require.NotNil(t, cred.OTPHash)
	assert.NotEqual(t, code, *cred.OTPHash)
	assert.Equal(t, f.clock.Now().Add(DefaultExpiry), *cred.OTPExpiresAt)
}

func TestConsumeSucceedsExactlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, f.id, "9120000000"))
	code := f.sender.code()

	assert.NoError(t, f.svc.Consume(ctx, f.id, code))

	err := f.svc.Consume(ctx, f.id, code)
	assert.True(t, errors.Is(err, apperrors.OTPMismatchErr))
}

func TestConsumeWrongCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, f.id, "9120000000"))
	wrong := "000000"
	if f.sender.code() == wrong {
		wrong = "111111"
	}

	err := f.svc.Consume(ctx, f.id, wrong)
	assert.True(t, errors.Is(err, apperrors.OTPMismatchErr))

	// A wrong guess leaves the pending code usable.
	assert.NoError(t, f.svc.Consume(ctx, f.id, f.sender.code()))
}

func TestConsumeWithoutPendingCode(t *testing.T) {
	f := setup(t)

	err := f.svc.Consume(context.Background(), f.id, "123456")
	assert.True(t, errors.Is(err, apperrors.OTPMismatchErr))
}

func TestExpiredCodeIsClearedAndRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, f.id, "9120000000"))
	code := f.sender.code()
	f.clock.WarpForward(DefaultExpiry)

	err := f.svc.Consume(ctx, f.id, code)
	assert.True(t, errors.Is(err, apperrors.OTPExpiredErr))

	cred, err := f.store.Credentials().Get(ctx, f.id)
	require.NoError(t, err)
	assert.Nil(t, cred.OTPHash)

	err = f.svc.Consume(ctx, f.id, code)
	assert.True(t, errors.Is(err, apperrors.OTPMismatchErr))
}

func TestReissueReplacesPendingCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, f.id, "9120000000"))
	first := f.sender.code()
	require.NoError(t, f.svc.Issue(ctx, f.id, "9120000000"))
	second := f.sender.code()

	if first != second {
		err := f.svc.Consume(ctx, f.id, first)
		assert.True(t, errors.Is(err, apperrors.OTPMismatchErr))
	}
	assert.NoError(t, f.svc.Consume(ctx, f.id, second))
}

func TestSendFailureRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.sender.err = errors.New("gateway down")

	err := f.svc.Issue(ctx, f.id, "9120000000")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 500, appErr.StatusCode())

	cred, err := f.store.Credentials().Get(ctx, f.id)
	require.NoError(t, err)
	assert.Nil(t, cred.OTPHash)
}

func TestConcurrentConsumeOnlyOneWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, f.id, "9120000000"))
	code := f.sender.code()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.svc.Consume(ctx, f.id, code); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}

package email

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/config"
)

type recorder struct {
	to, subject, body string
}

func (r *recorder) Send(ctx context.Context, to, subject, body string) error {
	r.to, r.subject, r.body = to, subject, body
	return nil
}

func TestServiceTemplates(t *testing.T) {
	rec := &recorder{}
	svc := NewService(rec)
	ctx := context.Background()

	require.NoError(t, svc.SendPasswordReset(ctx, "a@example.com", "http://x/reset/abc"))
	assert.Equal(t, "a@example.com", rec.to)
	assert.Contains(t, rec.body, "http://x/reset/abc")

	require.NoError(t, svc.SendVerification(ctx, "a@example.com", "http://x/verify/abc"))
	assert.Equal(t, "Verify your email", rec.subject)

	at := time.Date(2025, 1, 7, 8, 15, 0, 0, time.UTC)
	require.NoError(t, svc.SendReminder(ctx, "a@example.com", "Sara", "Dr. Karimi", at))
	assert.True(t, strings.Contains(rec.body, "Tuesday 7 January 08:15"), rec.body)
}

func TestLogSenderRequiresRecipient(t *testing.T) {
	s := NewLogSender(zerolog.Nop())
	assert.Error(t, s.Send(context.Background(), "", "s", "b"))
	assert.NoError(t, s.Send(context.Background(), "a@example.com", "s", "b"))
}

func TestNewSenderFallsBackToLog(t *testing.T) {
	_, ok := NewSender(config.EmailConfig{}, zerolog.Nop()).(*logSender)
	assert.True(t, ok)
}

func TestSMTPBreakerOpensAfterFailures(t *testing.T) {
	// Grab a free port and close it so every dial is refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	s := NewSMTPSender(config.EmailConfig{Host: "127.0.0.1", Port: port, From: "clinic@example.com"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, s.Send(ctx, "a@example.com", "s", "b"))
	}
	err = s.Send(ctx, "a@example.com", "s", "b")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "got %v", err)
}

package email

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-api/internal/config"
)

// Sender delivers one message. Everything else in this package is built on it.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Service interface {
	SendPasswordReset(ctx context.Context, to, link string) error
	SendVerification(ctx context.Context, to, link string) error
	SendWelcome(ctx context.Context, to, name string) error
	SendReminder(ctx context.Context, to, name, doctor string, at time.Time) error
}

type service struct {
	sender Sender
}

func NewService(sender Sender) Service {
	return &service{sender: sender}
}

func (s *service) SendPasswordReset(ctx context.Context, to, link string) error {
	body := fmt.Sprintf("Forgot your password? Set a new one here: %s\n"+
		"The link is valid for 10 minutes. If you didn't ask for this, ignore this email.", link)
	return s.sender.Send(ctx, to, "Your password reset link", body)
}

func (s *service) SendVerification(ctx context.Context, to, link string) error {
	body := fmt.Sprintf("Confirm your email address here: %s\nThe link is valid for 20 minutes.", link)
	return s.sender.Send(ctx, to, "Verify your email", body)
}

func (s *service) SendWelcome(ctx context.Context, to, name string) error {
	return s.sender.Send(ctx, to, "Welcome to the clinic", fmt.Sprintf("Hi %s, your account is ready.", name))
}

func (s *service) SendReminder(ctx context.Context, to, name, doctor string, at time.Time) error {
	body := fmt.Sprintf("Hi %s, this is a reminder of your visit with %s on %s.",
		name, doctor, at.Format("Monday 2 January 15:04"))
	return s.sender.Send(ctx, to, "Visit reminder", body)
}

// smtpSender sends through gomail. A run of failures opens the breaker so
// callers fail fast while the SMTP server is down.
type smtpSender struct {
	dialer  *gomail.Dialer
	from    string
	breaker *gobreaker.CircuitBreaker
}

func NewSMTPSender(cfg config.EmailConfig) Sender {
	return &smtpSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "smtp",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("email recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.dialer.DialAndSend(m)
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type logSender struct {
	logger zerolog.Logger
}

// NewLogSender writes messages to the log. Used when no SMTP host is set.
func NewLogSender(logger zerolog.Logger) Sender {
	return &logSender{logger: logger.With().Str("channel", "email").Logger()}
}

func (s *logSender) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("email recipient is required")
	}
	s.logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email dispatched")
	return nil
}

// NewSender picks SMTP when a host is configured.
func NewSender(cfg config.EmailConfig, logger zerolog.Logger) Sender {
	if cfg.Host == "" {
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}

package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SMSSender delivers short text messages to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// logSender writes messages to the log instead of a gateway. It is the only
// sender until an SMS provider is contracted.
type logSender struct {
	logger zerolog.Logger
}

func NewLogSMSSender(logger zerolog.Logger) SMSSender {
	return &logSender{logger: logger.With().Str("channel", "sms").Logger()}
}

func (s *logSender) SendSMS(ctx context.Context, to, body string) error {
	if to == "" {
		return fmt.Errorf("sms recipient is required")
	}
	s.logger.Info().Str("to", to).Str("body", body).Msg("sms dispatched")
	return nil
}

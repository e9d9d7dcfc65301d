package notify

import (
	"context"

	"account-api/internal/observability"
)

// LogSender stands in for Brevo when no API key is configured. Every
// message is written to the log instead of being delivered, which is
// what local development wants.
type LogSender struct {
	log *observability.Logger
}

func NewLogSender(log *observability.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.log.Info("email (not delivered, no provider configured)", map[string]any{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, phoneNumber, message string) error {
	s.log.Info("sms (not delivered, no provider configured)", map[string]any{
		"to":      phoneNumber,
		"message": message,
	})
	return nil
}

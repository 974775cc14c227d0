// Package notify carries customer-visible notifications out of the billing
// and webhook paths. Sends are fire-and-forget from the caller's point of
// view but run on a bounded pool so saturation is observable instead of
// silently dropped.
package notify

import (
	"context"

	"go.uber.org/zap"
)

type EmailKind string

const (
	EmailInvoiceCreated  EmailKind = "invoice_created"
	EmailPaymentReceipt  EmailKind = "payment_receipt"
	EmailPaymentFailed   EmailKind = "payment_failed"
	EmailTrialReminder   EmailKind = "trial_reminder"
	EmailSubCanceled    EmailKind = "subscription_canceled"
)

// EmailSender is the external email collaborator. Failures are logged by
// callers and never block a state transition.
type EmailSender interface {
	Send(ctx context.Context, kind EmailKind, data map[string]string) error
}

// LogEmailSender stands in for the real template/delivery service; it
// records every send in the structured log.
type LogEmailSender struct {
	logger *zap.Logger
}

func NewLogEmailSender(logger *zap.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(ctx context.Context, kind EmailKind, data map[string]string) error {
	fields := make([]zap.Field, 0, len(data)+1)
	fields = append(fields, zap.String("kind", string(kind)))
	for k, v := range data {
		fields = append(fields, zap.String(k, v))
	}
	s.logger.Info("email queued", fields...)
	return nil
}

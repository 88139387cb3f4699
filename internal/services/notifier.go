package services

import (
	"context"
	"fmt"
	"time"

	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/sendgrid"
)

// ReceiptNotifier sends post-payment emails. Delivery is best effort
// and runs after the ledger transaction commits; a failed send never
// rolls back a recorded payment.
type ReceiptNotifier interface {
	SendReceipt(ctx context.Context, payment *types.Payment, project *types.Project, recipientEmail string)
}

type receiptNotifier struct {
	log    *logger.Logger
	mailer sendgrid.Client
}

func NewReceiptNotifier(log *logger.Logger, mailer sendgrid.Client) ReceiptNotifier {
	return &receiptNotifier{log: log.With("service", "ReceiptNotifier"), mailer: mailer}
}

func (rn *receiptNotifier) SendReceipt(ctx context.Context, payment *types.Payment, project *types.Project, recipientEmail string) {
	if recipientEmail == "" {
		rn.log.Warn("receipt skipped, no recipient", "payment_id", payment.ID)
		return
	}

	subject := fmt.Sprintf("Payment received for %q", project.Topic)
	body := fmt.Sprintf(
		"We received your payment of %.2f %s (reference %s).\n\nYour project %q is now unlocked and work is underway.\n",
		payment.Amount, payment.Currency, payment.Reference, project.Topic,
	)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if _, err := rn.mailer.Send(sendCtx, sendgrid.SendEmailRequest{
		To:      []sendgrid.EmailAddress{{Email: recipientEmail}},
		Subject: subject,
		Text:    body,
	}); err != nil {
		rn.log.Warn("receipt send failed", "payment_id", payment.ID, "error", err)
		return
	}
	rn.log.Info("receipt sent", "payment_id", payment.ID, "project_id", project.ID)
}

type noopNotifier struct {
	log *logger.Logger
}

// NewNoopNotifier stands in when no mail credentials are configured.
func NewNoopNotifier(log *logger.Logger) ReceiptNotifier {
	return &noopNotifier{log: log.With("service", "ReceiptNotifier")}
}

func (nn *noopNotifier) SendReceipt(_ context.Context, payment *types.Payment, project *types.Project, _ string) {
	nn.log.Debug("receipt suppressed (mailer disabled)", "payment_id", payment.ID, "project_id", project.ID)
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/thesisdesk/thesisdesk-backend/internal/clients/redis"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/billing"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/user"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

// PaymentEvent is the gateway webhook envelope. Amount arrives in
// minor currency units (kobo/cents); the ledger stores major units.
type PaymentEvent struct {
	Event string           `json:"event"`
	Data  PaymentEventData `json:"data"`
}

type PaymentEventData struct {
	Reference string               `json:"reference"`
	Amount    int64                `json:"amount"`
	Currency  string               `json:"currency"`
	Channel   string               `json:"channel"`
	Status    string               `json:"status"`
	PaidAt    *time.Time           `json:"paid_at,omitempty"`
	Customer  PaymentEventCustomer `json:"customer"`
	Metadata  PaymentEventMetadata `json:"metadata"`
}

type PaymentEventCustomer struct {
	Email string `json:"email"`
}

type PaymentEventMetadata struct {
	ProjectID string `json:"project_id"`
}

type RecordPaymentResult struct {
	Payment          *types.Payment
	Project          *types.Project
	AlreadyProcessed bool
	// RecipientEmail is resolved inside the transaction so the receipt
	// can be sent after commit without another lookup.
	RecipientEmail string
}

// BillingService records gateway payments exactly once per reference
// and applies their side effects (unlock, mode, lock) in the same
// transaction as the ledger insert.
type BillingService interface {
	RecordPayment(ctx context.Context, event PaymentEvent, raw []byte) (*RecordPaymentResult, error)
	GetPayment(ctx context.Context, owner types.Owner, reference string) (*types.Payment, error)
}

type billingService struct {
	db          *gorm.DB
	log         *logger.Logger
	paymentRepo billing.PaymentRepo
	projectRepo project.ProjectRepo
	userRepo    user.UserRepo
	lockService LockService
	notifier    ReceiptNotifier
	cache       redis.Cache
}

func NewBillingService(
	db *gorm.DB,
	log *logger.Logger,
	paymentRepo billing.PaymentRepo,
	projectRepo project.ProjectRepo,
	userRepo user.UserRepo,
	lockService LockService,
	notifier ReceiptNotifier,
	cache redis.Cache,
) BillingService {
	serviceLog := log.With("service", "BillingService")
	return &billingService{
		db:          db,
		log:         serviceLog,
		paymentRepo: paymentRepo,
		projectRepo: projectRepo,
		userRepo:    userRepo,
		lockService: lockService,
		notifier:    notifier,
		cache:       cache,
	}
}

func (bs *billingService) RecordPayment(ctx context.Context, event PaymentEvent, raw []byte) (*RecordPaymentResult, error) {
	ctx, span := otel.Tracer("billing").Start(ctx, "RecordPayment")
	defer span.End()

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return nil, apierr.Validation(fmt.Errorf("payment event has no reference"))
	}
	span.SetAttributes(attribute.String("payment.reference", reference))

	projectID, err := uuid.Parse(strings.TrimSpace(event.Data.Metadata.ProjectID))
	if err != nil {
		return nil, apierr.UnprocessablePayment("missing_project_reference",
			fmt.Errorf("payment %s carries no usable project id: %w", reference, err))
	}

	result := &RecordPaymentResult{}
	if err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Fast path for redeliveries; the unique index below is what
		// actually guarantees exactly-once under concurrency.
		if existing, err := bs.paymentRepo.GetByReference(ctx, tx, reference); err != nil {
			return err
		} else if existing != nil {
			result.Payment = existing
			result.AlreadyProcessed = true
			return nil
		}

		p, err := bs.projectRepo.GetByIDForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p == nil {
			return apierr.UnprocessablePayment("missing_project_reference",
				fmt.Errorf("payment %s references unknown project %s", reference, projectID))
		}

		payerID, payerEmail, err := bs.resolvePayer(ctx, tx, p, event.Data.Customer.Email)
		if err != nil {
			return err
		}

		payment := &types.Payment{
			Reference:       reference,
			Amount:          float64(event.Data.Amount) / 100,
			Currency:        strings.ToUpper(strings.TrimSpace(event.Data.Currency)),
			Channel:         event.Data.Channel,
			Status:          types.PaymentSuccess,
			GatewayResponse: datatypes.JSON(raw),
			UserID:          payerID,
			ProjectID:       p.ID,
			PaidAt:          event.Data.PaidAt,
		}

		created, err := bs.paymentRepo.InsertOnce(ctx, tx, payment)
		if err != nil {
			return err
		}
		if !created {
			existing, err := bs.paymentRepo.GetByReference(ctx, tx, reference)
			if err != nil {
				return err
			}
			result.Payment = existing
			result.AlreadyProcessed = true
			return nil
		}

		// An anonymous project is claimed by its payer in the same
		// transaction as the payment that unlocks it.
		if p.UserID == nil {
			if err := bs.projectRepo.BindUser(ctx, tx, p.ID, payerID); err != nil {
				return err
			}
			p.UserID = &payerID
			p.AnonymousID = nil
		}

		fields := map[string]any{"is_unlocked": true}
		if p.Status == types.StatusOutlineGenerated {
			fields["status"] = types.StatusResearchInProgress
			p.Status = types.StatusResearchInProgress
		}
		if tier, ok := ResolveTier(payment.Amount); ok {
			mode := tier.Mode
			fields["mode"] = mode
			p.Mode = &mode
		} else {
			bs.log.Warn("payment amount matches no tier, mode left unset",
				"reference", reference, "amount", payment.Amount)
		}
		if err := bs.projectRepo.UpdateFields(ctx, tx, p.ID, fields); err != nil {
			return err
		}
		p.IsUnlocked = true

		if err := bs.lockService.Lock(ctx, tx, p.ID); err != nil {
			return err
		}
		p.IsLocked = true

		result.Payment = payment
		result.Project = p
		result.RecipientEmail = payerEmail
		return nil
	}); err != nil {
		return nil, err
	}

	if result.AlreadyProcessed {
		bs.log.Info("payment already processed", "reference", reference)
		return result, nil
	}

	bs.cache.Delete(ctx, progressCacheKey(result.Project.ID))
	// Fire and forget: the payment is committed, so a slow or failing
	// mailer must not hold up the gateway's webhook response.
	go bs.notifier.SendReceipt(context.WithoutCancel(ctx), result.Payment, result.Project, result.RecipientEmail)
	bs.log.Info("payment recorded",
		"reference", reference,
		"project_id", result.Project.ID,
		"amount", result.Payment.Amount,
		"currency", result.Payment.Currency,
	)
	return result, nil
}

// resolvePayer determines which user the payment belongs to: the
// project's bound user when one exists, otherwise the gateway customer
// email matched against known accounts.
func (bs *billingService) resolvePayer(ctx context.Context, tx *gorm.DB, p *types.Project, customerEmail string) (uuid.UUID, string, error) {
	if p.UserID != nil {
		found, err := bs.userRepo.GetByIDs(ctx, tx, []uuid.UUID{*p.UserID})
		if err != nil {
			return uuid.Nil, "", err
		}
		email := customerEmail
		if len(found) == 1 {
			email = found[0].Email
		}
		return *p.UserID, email, nil
	}

	payer, err := bs.userRepo.GetByEmail(ctx, tx, customerEmail)
	if err != nil {
		return uuid.Nil, "", err
	}
	if payer == nil {
		return uuid.Nil, "", apierr.UnprocessablePayment("unresolved_payer",
			fmt.Errorf("project %s has no bound user and customer email matches no account", p.ID))
	}
	return payer.ID, payer.Email, nil
}

func (bs *billingService) GetPayment(ctx context.Context, owner types.Owner, reference string) (*types.Payment, error) {
	payment, err := bs.paymentRepo.GetByReference(ctx, nil, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apierr.NotFound(fmt.Errorf("payment %s not found", reference))
	}
	if userID, ok := owner.UserID(); !ok || userID != payment.UserID {
		// Hidden rather than forbidden; references are not guessable.
		return nil, apierr.NotFound(fmt.Errorf("payment %s not found", reference))
	}
	return payment, nil
}

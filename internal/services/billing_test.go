package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/thesisdesk/thesisdesk-backend/internal/clients/redis"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/billing"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/testutil"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/user"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
)

// Receipts are delivered off the request goroutine, so the recorder is
// locked and exposes a channel for tests to wait on.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	ch   chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan string, 8)}
}

func (rn *recordingNotifier) SendReceipt(_ context.Context, payment *types.Payment, _ *types.Project, recipient string) {
	entry := payment.Reference + "->" + recipient
	rn.mu.Lock()
	rn.sent = append(rn.sent, entry)
	rn.mu.Unlock()
	rn.ch <- entry
}

func (rn *recordingNotifier) receipts() []string {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return append([]string(nil), rn.sent...)
}

func (rn *recordingNotifier) waitForReceipt(t *testing.T) string {
	t.Helper()
	select {
	case entry := <-rn.ch:
		return entry
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for receipt")
		return ""
	}
}

func newBillingFixture(t *testing.T, tx *gorm.DB) (BillingService, *recordingNotifier) {
	t.Helper()
	log := testutil.Logger(t)
	projectRepo := project.NewProjectRepo(tx, log)
	notifier := newRecordingNotifier()
	svc := NewBillingService(
		tx,
		log,
		billing.NewPaymentRepo(tx, log),
		projectRepo,
		user.NewUserRepo(tx, log),
		NewLockService(tx, log, projectRepo),
		notifier,
		redis.NewNoopCache(),
	)
	return svc, notifier
}

func successEvent(reference string, amountMinor int64, projectID, email string) PaymentEvent {
	return PaymentEvent{
		Event: "charge.success",
		Data: PaymentEventData{
			Reference: reference,
			Amount:    amountMinor,
			Currency:  "NGN",
			Channel:   "card",
			Status:    "success",
			Customer:  PaymentEventCustomer{Email: email},
			Metadata:  PaymentEventMetadata{ProjectID: projectID},
		},
	}
}

func TestRecordPaymentUnlocksAndLocksExactlyOnce(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, ctx, tx, "buyer@example.com")
	p := testutil.SeedProject(t, ctx, tx, types.AnonymousOwner("sess-pay"), "Waste to energy")

	svc, notifier := newBillingFixture(t, tx)

	event := successEvent("PSK_123", 1500000, p.ID.String(), "Buyer@Example.com")
	raw := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":"PSK_123","amount":1500000,"metadata":{"project_id":%q}}}`, p.ID))

	first, err := svc.RecordPayment(ctx, event, raw)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if first.AlreadyProcessed {
		t.Fatalf("first delivery must not report duplicate")
	}
	if first.Payment.Amount != 15000 {
		t.Fatalf("expected amount normalized to 15000, got %v", first.Payment.Amount)
	}

	second, err := svc.RecordPayment(ctx, event, raw)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if !second.AlreadyProcessed {
		t.Fatalf("redelivery must report already processed")
	}
	if second.Payment.ID != first.Payment.ID {
		t.Fatalf("redelivery must return the original row")
	}

	var count int64
	if err := tx.Model(&types.Payment{}).Where("reference = ?", "PSK_123").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one payment row, got %d", count)
	}

	var got types.Project
	if err := tx.Where("id = ?", p.ID).First(&got).Error; err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if !got.IsLocked || !got.IsUnlocked {
		t.Fatalf("expected project locked and unlocked, got locked=%v unlocked=%v", got.IsLocked, got.IsUnlocked)
	}
	if got.Status != types.StatusResearchInProgress {
		t.Fatalf("expected status advanced, got %s", got.Status)
	}
	if got.Mode == nil || *got.Mode != types.ModeDIY {
		t.Fatalf("expected DIY mode from 15000 amount, got %v", got.Mode)
	}
	if got.UserID == nil || *got.UserID != u.ID {
		t.Fatalf("expected anonymous project claimed by payer")
	}
	if got.AnonymousID != nil {
		t.Fatalf("expected anonymous session cleared")
	}

	notifier.waitForReceipt(t)
	if got := notifier.receipts(); len(got) != 1 {
		t.Fatalf("expected one receipt, got %d", len(got))
	}
}

func TestRecordPaymentLinkageFailures(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	p := testutil.SeedProject(t, ctx, tx, types.AnonymousOwner("sess-orphan"), "Rainwater harvesting")
	svc, notifier := newBillingFixture(t, tx)

	_, err := svc.RecordPayment(ctx, successEvent("PSK_no_proj", 1500000, "", "a@b.com"), []byte("{}"))
	assertCode(t, err, "missing_project_reference")

	_, err = svc.RecordPayment(ctx, successEvent("PSK_bad_proj", 1500000, "7b6d1a1e-0000-0000-0000-000000000000", "a@b.com"), []byte("{}"))
	assertCode(t, err, "missing_project_reference")

	// Anonymous project, customer email matches no account.
	_, err = svc.RecordPayment(ctx, successEvent("PSK_no_payer", 1500000, p.ID.String(), "nobody@example.com"), []byte("{}"))
	assertCode(t, err, "unresolved_payer")

	if got := notifier.receipts(); len(got) != 0 {
		t.Fatalf("no receipts expected for failed linkage, got %d", len(got))
	}
}

type stuckNotifier struct {
	started chan struct{}
	release chan struct{}
}

func (sn *stuckNotifier) SendReceipt(context.Context, *types.Payment, *types.Project, string) {
	close(sn.started)
	<-sn.release
}

func TestRecordPaymentDoesNotBlockOnReceiptDelivery(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "slowmail@example.com")
	p := testutil.SeedProject(t, ctx, tx, types.AuthenticatedOwner(u.ID), "Moringa supplements")

	notifier := &stuckNotifier{started: make(chan struct{}), release: make(chan struct{})}
	defer close(notifier.release)

	projectRepo := project.NewProjectRepo(tx, log)
	svc := NewBillingService(
		tx,
		log,
		billing.NewPaymentRepo(tx, log),
		projectRepo,
		user.NewUserRepo(tx, log),
		NewLockService(tx, log, projectRepo),
		notifier,
		redis.NewNoopCache(),
	)

	done := make(chan error, 1)
	go func() {
		_, err := svc.RecordPayment(ctx, successEvent("PSK_slow", 1500000, p.ID.String(), u.Email), []byte("{}"))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("RecordPayment must return while the mailer is still in flight")
	}

	select {
	case <-notifier.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("receipt delivery was never attempted")
	}
}

func TestRecordPaymentUnknownTierLeavesModeUnset(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, ctx, tx, "oddamount@example.com")
	p := testutil.SeedProject(t, ctx, tx, types.AuthenticatedOwner(u.ID), "Shea butter export")
	svc, _ := newBillingFixture(t, tx)

	// 330 major units matches no tier band.
	if _, err := svc.RecordPayment(ctx, successEvent("PSK_odd", 33000, p.ID.String(), u.Email), []byte("{}")); err != nil {
		t.Fatalf("record: %v", err)
	}

	var got types.Project
	if err := tx.Where("id = ?", p.ID).First(&got).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Mode != nil {
		t.Fatalf("expected mode unset for unmatched amount, got %v", *got.Mode)
	}
	if !got.IsUnlocked || !got.IsLocked {
		t.Fatalf("payment must still unlock and lock the project")
	}
}

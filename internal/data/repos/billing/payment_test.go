package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/testutil"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
)

func TestPaymentRepoInsertOnceIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewPaymentRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "payer@example.com")
	p := testutil.SeedProject(t, ctx, tx, types.AuthenticatedOwner(u.ID), "Cocoa yields")

	first := &types.Payment{
		Reference: "PSK_once_1",
		Amount:    15000,
		Currency:  "NGN",
		Status:    types.PaymentSuccess,
		UserID:    u.ID,
		ProjectID: p.ID,
	}
	created, err := repo.InsertOnce(ctx, tx, first)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !created {
		t.Fatalf("expected first insert to create a row")
	}

	dup := &types.Payment{
		Reference: "PSK_once_1",
		Amount:    25000,
		Currency:  "NGN",
		Status:    types.PaymentSuccess,
		UserID:    u.ID,
		ProjectID: p.ID,
	}
	created, err = repo.InsertOnce(ctx, tx, dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate reference to be a no-op")
	}

	stored, err := repo.GetByReference(ctx, tx, "PSK_once_1")
	if err != nil {
		t.Fatalf("get by reference: %v", err)
	}
	if stored == nil {
		t.Fatalf("expected stored payment")
	}
	if stored.Amount != 15000 {
		t.Fatalf("expected original amount preserved, got %v", stored.Amount)
	}

	var count int64
	if err := tx.Model(&types.Payment{}).Where("reference = ?", "PSK_once_1").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
}

func TestPaymentRepoGetByReferenceMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewPaymentRepo(db, testutil.Logger(t))

	got, err := repo.GetByReference(context.Background(), tx, "PSK_does_not_exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown reference")
	}
}

func TestPaymentRepoGetByProjectIDs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewPaymentRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "history@example.com")
	p := testutil.SeedProject(t, ctx, tx, types.AuthenticatedOwner(u.ID), "Solar microgrids")
	testutil.SeedPayment(t, ctx, tx, "PSK_hist_1", u.ID, p.ID)

	payments, err := repo.GetByProjectIDs(ctx, tx, []uuid.UUID{p.ID})
	if err != nil {
		t.Fatalf("get by project ids: %v", err)
	}
	if len(payments) != 1 || payments[0].Reference != "PSK_hist_1" {
		t.Fatalf("expected the seeded payment, got %d rows", len(payments))
	}
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, owner types.Owner, topic string) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:     uuid.New(),
		Topic:  topic,
		Status: types.StatusOutlineGenerated,
	}
	if userID, ok := owner.UserID(); ok {
		p.UserID = &userID
	} else if anonID, ok := owner.AnonymousID(); ok {
		p.AnonymousID = &anonID
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedLockedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, owner types.Owner, topic string) *types.Project {
	tb.Helper()
	p := SeedProject(tb, ctx, tx, owner, topic)
	now := time.Now().UTC()
	if err := tx.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"is_locked":   true,
			"locked_at":   now,
			"is_unlocked": true,
			"status":      types.StatusResearchInProgress,
		}).Error; err != nil {
		tb.Fatalf("lock seeded project: %v", err)
	}
	p.IsLocked = true
	p.LockedAt = &now
	p.IsUnlocked = true
	p.Status = types.StatusResearchInProgress
	return p
}

func SeedPayment(tb testing.TB, ctx context.Context, tx *gorm.DB, reference string, userID, projectID uuid.UUID) *types.Payment {
	tb.Helper()
	pay := &types.Payment{
		ID:        uuid.New(),
		Reference: reference,
		Amount:    15000,
		Currency:  "NGN",
		Status:    types.PaymentSuccess,
		UserID:    userID,
		ProjectID: projectID,
	}
	if err := tx.WithContext(ctx).Create(pay).Error; err != nil {
		tb.Fatalf("seed payment: %v", err)
	}
	return pay
}

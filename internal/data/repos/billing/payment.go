package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/pgerr"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

type PaymentRepo interface {
	// InsertOnce persists the payment unless a row with the same
	// reference already exists. Returns created=false when the insert
	// was a no-op, which the ledger treats as "already processed".
	InsertOnce(ctx context.Context, tx *gorm.DB, payment *types.Payment) (created bool, err error)
	GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*types.Payment, error)
	GetByProjectIDs(ctx context.Context, tx *gorm.DB, projectIDs []uuid.UUID) ([]*types.Payment, error)
}

type paymentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPaymentRepo(db *gorm.DB, baseLog *logger.Logger) PaymentRepo {
	repoLog := baseLog.With("repo", "PaymentRepo")
	return &paymentRepo{db: db, log: repoLog}
}

func (pr *paymentRepo) InsertOnce(ctx context.Context, tx *gorm.DB, payment *types.Payment) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	result := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).
		Create(payment)
	if result.Error != nil {
		// A concurrent duplicate can still race the conflict clause on
		// some planner paths; treat 23505 the same as DoNothing.
		if pgerr.IsUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (pr *paymentRepo) GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*types.Payment, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var result types.Payment
	err := transaction.WithContext(ctx).
		Where("reference = ?", reference).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (pr *paymentRepo) GetByProjectIDs(ctx context.Context, tx *gorm.DB, projectIDs []uuid.UUID) ([]*types.Payment, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*types.Payment
	if len(projectIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("project_id IN ?", projectIDs).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

package switchreq

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/pgerr"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

type SwitchRequestRepo interface {
	// Create inserts a pending request. The partial unique index on
	// (project_id) WHERE status='pending' makes a concurrent duplicate
	// surface as conflict=true rather than a second open request.
	Create(ctx context.Context, tx *gorm.DB, request *types.TopicSwitchRequest) (conflict bool, err error)
	GetByID(ctx context.Context, tx *gorm.DB, requestID uuid.UUID) (*types.TopicSwitchRequest, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, requestID uuid.UUID) (*types.TopicSwitchRequest, error)
	GetPendingByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.TopicSwitchRequest, error)
	Resolve(ctx context.Context, tx *gorm.DB, requestID uuid.UUID, status types.SwitchRequestStatus, resolvedAt time.Time, resolvedBy *uuid.UUID) error
}

type switchRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSwitchRequestRepo(db *gorm.DB, baseLog *logger.Logger) SwitchRequestRepo {
	repoLog := baseLog.With("repo", "SwitchRequestRepo")
	return &switchRequestRepo{db: db, log: repoLog}
}

func (sr *switchRequestRepo) Create(ctx context.Context, tx *gorm.DB, request *types.TopicSwitchRequest) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	if err := transaction.WithContext(ctx).Create(request).Error; err != nil {
		if pgerr.IsUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (sr *switchRequestRepo) GetByID(ctx context.Context, tx *gorm.DB, requestID uuid.UUID) (*types.TopicSwitchRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var result types.TopicSwitchRequest
	err := transaction.WithContext(ctx).
		Where("id = ?", requestID).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (sr *switchRequestRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, requestID uuid.UUID) (*types.TopicSwitchRequest, error) {
	var result types.TopicSwitchRequest

	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", requestID).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (sr *switchRequestRepo) GetPendingByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.TopicSwitchRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var result types.TopicSwitchRequest
	err := transaction.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, types.SwitchPending).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (sr *switchRequestRepo) Resolve(ctx context.Context, tx *gorm.DB, requestID uuid.UUID, status types.SwitchRequestStatus, resolvedAt time.Time, resolvedBy *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.TopicSwitchRequest{}).
		Where("id = ?", requestID).
		Updates(map[string]any{
			"status":      status,
			"resolved_at": resolvedAt,
			"resolved_by": resolvedBy,
		}).Error
}

package project

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

type ProjectRepo interface {
	Create(ctx context.Context, tx *gorm.DB, projects []*types.Project) ([]*types.Project, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, projectIDs []uuid.UUID) ([]*types.Project, error)
	// GetByIDForUpdate takes a row lock so read-modify-write on the JSON
	// progress blobs serializes per project. Callers must hold a tx.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.Project, error)
	GetByOwner(ctx context.Context, tx *gorm.DB, owner types.Owner) ([]*types.Project, error)
	GetLockedByOwner(ctx context.Context, tx *gorm.DB, owner types.Owner) (*types.Project, error)
	SetLockState(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, locked bool, lockedAt *time.Time) error
	BindUser(ctx context.Context, tx *gorm.DB, projectID, userID uuid.UUID) error
	UpdateFields(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, fields map[string]any) error
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	repoLog := baseLog.With("repo", "ProjectRepo")
	return &projectRepo{db: db, log: repoLog}
}

func (pr *projectRepo) Create(ctx context.Context, tx *gorm.DB, projects []*types.Project) ([]*types.Project, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	if len(projects) == 0 {
		return []*types.Project{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&projects).Error; err != nil {
		return nil, err
	}

	return projects, nil
}

func (pr *projectRepo) GetByIDs(ctx context.Context, tx *gorm.DB, projectIDs []uuid.UUID) ([]*types.Project, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*types.Project

	if len(projectIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", projectIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *projectRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.Project, error) {
	var result types.Project

	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", projectID).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (pr *projectRepo) GetByOwner(ctx context.Context, tx *gorm.DB, owner types.Owner) ([]*types.Project, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*types.Project

	query := transaction.WithContext(ctx)
	if userID, ok := owner.UserID(); ok {
		query = query.Where("user_id = ?", userID)
	} else if anonID, ok := owner.AnonymousID(); ok {
		query = query.Where("user_id IS NULL AND anonymous_id = ?", anonID)
	} else {
		return results, nil
	}

	if err := query.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *projectRepo) GetLockedByOwner(ctx context.Context, tx *gorm.DB, owner types.Owner) (*types.Project, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	query := transaction.WithContext(ctx).Where("is_locked = ?", true)
	if userID, ok := owner.UserID(); ok {
		query = query.Where("user_id = ?", userID)
	} else if anonID, ok := owner.AnonymousID(); ok {
		query = query.Where("user_id IS NULL AND anonymous_id = ?", anonID)
	} else {
		return nil, nil
	}

	var result types.Project
	err := query.First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (pr *projectRepo) SetLockState(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, locked bool, lockedAt *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"is_locked": locked,
			"locked_at": lockedAt,
		}).Error
}

func (pr *projectRepo) BindUser(ctx context.Context, tx *gorm.DB, projectID, userID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"user_id":      userID,
			"anonymous_id": nil,
		}).Error
}

func (pr *projectRepo) UpdateFields(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, fields map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if len(fields) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", projectID).
		Updates(fields).Error
}

package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

// LockService owns the lock/unlock transitions. Locking only ever
// follows a successful payment or a switch-approval re-lock; the
// one-locked-project-per-owner invariant is enforced where projects
// are created or claimed, via GetLockedProject.
type LockService interface {
	Lock(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error
	Unlock(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error
	GetLockedProject(ctx context.Context, tx *gorm.DB, owner types.Owner) (*types.Project, error)
}

type lockService struct {
	db          *gorm.DB
	log         *logger.Logger
	projectRepo project.ProjectRepo
}

func NewLockService(db *gorm.DB, log *logger.Logger, projectRepo project.ProjectRepo) LockService {
	serviceLog := log.With("service", "LockService")
	return &lockService{db: db, log: serviceLog, projectRepo: projectRepo}
}

// Lock is idempotent: re-locking a locked project just refreshes
// locked_at, which callers treat as a no-op.
func (ls *lockService) Lock(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error {
	now := time.Now().UTC()
	if err := ls.projectRepo.SetLockState(ctx, tx, projectID, true, &now); err != nil {
		ls.log.Error("failed to lock project", "project_id", projectID, "error", err)
		return err
	}
	ls.log.Info("project locked", "project_id", projectID)
	return nil
}

func (ls *lockService) Unlock(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error {
	if err := ls.projectRepo.SetLockState(ctx, tx, projectID, false, nil); err != nil {
		ls.log.Error("failed to unlock project", "project_id", projectID, "error", err)
		return err
	}
	ls.log.Info("project unlocked", "project_id", projectID)
	return nil
}

func (ls *lockService) GetLockedProject(ctx context.Context, tx *gorm.DB, owner types.Owner) (*types.Project, error) {
	return ls.projectRepo.GetLockedByOwner(ctx, tx, owner)
}

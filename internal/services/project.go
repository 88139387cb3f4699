package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

type CreateProjectInput struct {
	Topic string
	Twist string
}

type ProjectService interface {
	CreateProject(ctx context.Context, owner types.Owner, input CreateProjectInput) (*types.Project, error)
	GetProject(ctx context.Context, owner types.Owner, projectID uuid.UUID) (*types.Project, error)
	ListProjects(ctx context.Context, owner types.Owner) ([]*types.Project, error)
	// ClaimProject moves an anonymous project onto the authenticated
	// caller, clearing the session identity.
	ClaimProject(ctx context.Context, userID uuid.UUID, anonymousID string, projectID uuid.UUID) (*types.Project, error)
}

type projectService struct {
	db          *gorm.DB
	log         *logger.Logger
	projectRepo project.ProjectRepo
	lockService LockService
}

func NewProjectService(db *gorm.DB, log *logger.Logger, projectRepo project.ProjectRepo, lockService LockService) ProjectService {
	serviceLog := log.With("service", "ProjectService")
	return &projectService{db: db, log: serviceLog, projectRepo: projectRepo, lockService: lockService}
}

func (ps *projectService) CreateProject(ctx context.Context, owner types.Owner, input CreateProjectInput) (*types.Project, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, apierr.Validation(fmt.Errorf("topic is required"))
	}
	if owner.IsZero() {
		return nil, apierr.Unauthorized(fmt.Errorf("no caller identity"))
	}

	var out *types.Project
	if err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// An owner with a locked project is committed to it; starting a
		// fresh one has to wait for an approved topic switch.
		locked, err := ps.lockService.GetLockedProject(ctx, tx, owner)
		if err != nil {
			return err
		}
		if locked != nil {
			return apierr.Conflict("project_already_locked",
				fmt.Errorf("owner already holds locked project %s", locked.ID))
		}

		p := &types.Project{
			Topic:  topic,
			Twist:  strings.TrimSpace(input.Twist),
			Status: types.StatusOutlineGenerated,
		}
		if userID, ok := owner.UserID(); ok {
			p.UserID = &userID
		} else if anonID, ok := owner.AnonymousID(); ok {
			p.AnonymousID = &anonID
		}

		created, err := ps.projectRepo.Create(ctx, tx, []*types.Project{p})
		if err != nil {
			return err
		}
		out = created[0]
		return nil
	}); err != nil {
		return nil, err
	}

	ps.log.Info("project created", "project_id", out.ID)
	return out, nil
}

func (ps *projectService) GetProject(ctx context.Context, owner types.Owner, projectID uuid.UUID) (*types.Project, error) {
	found, err := ps.projectRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 || !owner.Owns(found[0]) {
		return nil, apierr.NotFound(fmt.Errorf("project %s not found", projectID))
	}
	return found[0], nil
}

func (ps *projectService) ListProjects(ctx context.Context, owner types.Owner) ([]*types.Project, error) {
	if owner.IsZero() {
		return nil, apierr.Unauthorized(fmt.Errorf("no caller identity"))
	}
	return ps.projectRepo.GetByOwner(ctx, nil, owner)
}

func (ps *projectService) ClaimProject(ctx context.Context, userID uuid.UUID, anonymousID string, projectID uuid.UUID) (*types.Project, error) {
	if strings.TrimSpace(anonymousID) == "" {
		return nil, apierr.Validation(fmt.Errorf("anonymous session id is required to claim"))
	}

	var out *types.Project
	if err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := ps.projectRepo.GetByIDForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		anonOwner := types.AnonymousOwner(anonymousID)
		if p == nil || !anonOwner.Owns(p) {
			return apierr.NotFound(fmt.Errorf("project %s not found for this session", projectID))
		}

		// Claiming a locked project would let a user hold two locks; the
		// invariant is per owner, and the claim changes the owner.
		if p.IsLocked {
			authOwner := types.AuthenticatedOwner(userID)
			if existing, err := ps.lockService.GetLockedProject(ctx, tx, authOwner); err != nil {
				return err
			} else if existing != nil {
				return apierr.Conflict("project_already_locked",
					fmt.Errorf("caller already holds locked project %s", existing.ID))
			}
		}

		if err := ps.projectRepo.BindUser(ctx, tx, p.ID, userID); err != nil {
			return err
		}
		p.UserID = &userID
		p.AnonymousID = nil
		out = p
		return nil
	}); err != nil {
		return nil, err
	}

	ps.log.Info("project claimed", "project_id", out.ID)
	return out, nil
}

package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/switchreq"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

type CreateSwitchRequestInput struct {
	Reason      string
	Explanation *string
	ProofURL    *string
	Fee         *float64
}

// TopicSwitchService runs the pending -> approved|denied workflow that
// reopens a locked project. Approval unlocks; denial records the
// resolution and leaves the lock in place.
type TopicSwitchService interface {
	CreateRequest(ctx context.Context, owner types.Owner, projectID uuid.UUID, input CreateSwitchRequestInput) (*types.TopicSwitchRequest, error)
	ReviewRequest(ctx context.Context, reviewer types.Owner, requestID uuid.UUID, decision types.SwitchRequestStatus) (*types.TopicSwitchRequest, error)
}

type topicSwitchService struct {
	db          *gorm.DB
	log         *logger.Logger
	requestRepo switchreq.SwitchRequestRepo
	lockService LockService
}

func NewTopicSwitchService(db *gorm.DB, log *logger.Logger, requestRepo switchreq.SwitchRequestRepo, lockService LockService) TopicSwitchService {
	serviceLog := log.With("service", "TopicSwitchService")
	return &topicSwitchService{db: db, log: serviceLog, requestRepo: requestRepo, lockService: lockService}
}

func (ts *topicSwitchService) CreateRequest(ctx context.Context, owner types.Owner, projectID uuid.UUID, input CreateSwitchRequestInput) (*types.TopicSwitchRequest, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, apierr.Validation(fmt.Errorf("reason is required"))
	}
	userID, ok := owner.UserID()
	if !ok {
		// Locked projects are always bound to a user, so an anonymous
		// session can never legitimately open one of these.
		return nil, apierr.Forbidden(fmt.Errorf("topic switch requires an authenticated owner"))
	}

	var out *types.TopicSwitchRequest
	if err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := ts.lockService.GetLockedProject(ctx, tx, owner)
		if err != nil {
			return err
		}
		if p == nil || p.ID != projectID {
			// Distinguish "not yours" from "not locked" by looking at the
			// actual project row.
			if err := ts.classifyCreateFailure(ctx, tx, owner, projectID); err != nil {
				return err
			}
			return apierr.Conflict("project_not_locked",
				fmt.Errorf("project %s is not locked", projectID))
		}

		request := &types.TopicSwitchRequest{
			ProjectID:   projectID,
			UserID:      userID,
			Reason:      strings.TrimSpace(input.Reason),
			Explanation: input.Explanation,
			ProofURL:    input.ProofURL,
			Fee:         input.Fee,
			Status:      types.SwitchPending,
		}
		conflict, err := ts.requestRepo.Create(ctx, tx, request)
		if err != nil {
			return err
		}
		if conflict {
			return apierr.Conflict("request_already_pending",
				fmt.Errorf("project %s already has a pending switch request", projectID))
		}
		out = request
		return nil
	}); err != nil {
		return nil, err
	}

	ts.log.Info("switch request created", "request_id", out.ID, "project_id", projectID)
	return out, nil
}

// classifyCreateFailure returns the precise error for a create that
// cannot proceed: not_found for missing/foreign projects, forbidden for
// someone else's project. A nil return means the project is the
// caller's but unlocked.
func (ts *topicSwitchService) classifyCreateFailure(ctx context.Context, tx *gorm.DB, owner types.Owner, projectID uuid.UUID) error {
	var p types.Project
	err := tx.WithContext(ctx).Where("id = ?", projectID).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apierr.NotFound(fmt.Errorf("project %s not found", projectID))
		}
		return err
	}
	if !owner.Owns(&p) {
		return apierr.Forbidden(fmt.Errorf("project %s does not belong to the caller", projectID))
	}
	return nil
}

func (ts *topicSwitchService) ReviewRequest(ctx context.Context, reviewer types.Owner, requestID uuid.UUID, decision types.SwitchRequestStatus) (*types.TopicSwitchRequest, error) {
	if decision != types.SwitchApproved && decision != types.SwitchDenied {
		return nil, apierr.Validation(fmt.Errorf("decision must be %q or %q", types.SwitchApproved, types.SwitchDenied))
	}
	reviewerID, ok := reviewer.UserID()
	if !ok {
		return nil, apierr.Forbidden(fmt.Errorf("review requires an authenticated reviewer"))
	}

	var out *types.TopicSwitchRequest
	if err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := ts.requestRepo.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return apierr.New(http.StatusNotFound, "request_not_found",
				fmt.Errorf("switch request %s not found", requestID))
		}
		if request.Status != types.SwitchPending {
			return apierr.Conflict("request_already_resolved",
				fmt.Errorf("switch request %s already %s", requestID, request.Status))
		}

		now := time.Now().UTC()
		if err := ts.requestRepo.Resolve(ctx, tx, requestID, decision, now, &reviewerID); err != nil {
			return err
		}
		if decision == types.SwitchApproved {
			if err := ts.lockService.Unlock(ctx, tx, request.ProjectID); err != nil {
				return err
			}
		}

		request.Status = decision
		request.ResolvedAt = &now
		request.ResolvedBy = &reviewerID
		out = request
		return nil
	}); err != nil {
		return nil, err
	}

	ts.log.Info("switch request resolved",
		"request_id", out.ID,
		"project_id", out.ProjectID,
		"decision", string(decision),
	)
	return out, nil
}

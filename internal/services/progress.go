package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/thesisdesk/thesisdesk-backend/internal/clients/redis"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

type UpdateProgressInput struct {
	Milestone types.Milestone
	Phase     types.Phase
	Details   *types.MilestoneDetails
	Metadata  map[string]any
}

type ProgressSnapshot struct {
	ProjectID           uuid.UUID      `json:"id"`
	ProgressPercentage  int            `json:"progress_percentage"`
	ContentProgress     datatypes.JSON `json:"content_progress"`
	Milestones          datatypes.JSON `json:"milestones"`
	TimeTracking        datatypes.JSON `json:"time_tracking"`
	EstimatedCompletion *time.Time     `json:"estimated_completion,omitempty"`
	ActualCompletion    *time.Time     `json:"actual_completion,omitempty"`
}

// ProgressService appends milestones and maintains the derived
// progress fields. Updates for the same project serialize on a row
// lock; the milestone log itself is append-only.
type ProgressService interface {
	UpdateProgress(ctx context.Context, owner types.Owner, projectID uuid.UUID, input UpdateProgressInput) (*types.Project, error)
	GetProgress(ctx context.Context, owner types.Owner, projectID uuid.UUID) (*ProgressSnapshot, error)
}

type progressService struct {
	db          *gorm.DB
	log         *logger.Logger
	projectRepo project.ProjectRepo
	cache       redis.Cache
}

func NewProgressService(db *gorm.DB, log *logger.Logger, projectRepo project.ProjectRepo, cache redis.Cache) ProgressService {
	serviceLog := log.With("service", "ProgressService")
	return &progressService{db: db, log: serviceLog, projectRepo: projectRepo, cache: cache}
}

func (ps *progressService) UpdateProgress(ctx context.Context, owner types.Owner, projectID uuid.UUID, input UpdateProgressInput) (*types.Project, error) {
	if !input.Milestone.Valid() {
		return nil, apierr.Validation(fmt.Errorf("unknown milestone %q", input.Milestone))
	}
	if !input.Phase.Valid() {
		return nil, apierr.Validation(fmt.Errorf("unknown phase %q", input.Phase))
	}

	var out *types.Project
	if err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := ps.projectRepo.GetByIDForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p == nil || !owner.Owns(p) {
			return apierr.New(http.StatusNotFound, "not_found", fmt.Errorf("project %s not found", projectID))
		}

		cp, err := decodeContentProgress(p.ContentProgress)
		if err != nil {
			return fmt.Errorf("decode content progress: %w", err)
		}
		milestones, err := decodeMilestones(p.Milestones)
		if err != nil {
			return fmt.Errorf("decode milestones: %w", err)
		}
		tt, err := decodeTimeTracking(p.TimeTracking)
		if err != nil {
			return fmt.Errorf("decode time tracking: %w", err)
		}

		now := time.Now().UTC()

		// The log grows no matter what happens to the derived view.
		milestones = append(milestones, types.MilestoneEntry{
			Milestone: input.Milestone,
			Phase:     input.Phase,
			Timestamp: now,
			Details:   input.Details,
			Metadata:  input.Metadata,
		})

		fields := map[string]any{}
		applyMilestone(cp, input.Milestone, now, input.Details)
		if input.Milestone == types.MilestoneProjectComplete && p.ActualCompletion == nil {
			fields["actual_completion"] = now
		}

		if input.Details != nil && input.Details.TimeSpent > 0 {
			key := string(input.Phase)
			if tt[key] == nil {
				tt[key] = &types.PhaseTime{}
			}
			tt[key].TotalTime += input.Details.TimeSpent
		}

		pct := Percentage(cp)

		cpRaw, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("encode content progress: %w", err)
		}
		msRaw, err := json.Marshal(milestones)
		if err != nil {
			return fmt.Errorf("encode milestones: %w", err)
		}
		ttRaw, err := json.Marshal(tt)
		if err != nil {
			return fmt.Errorf("encode time tracking: %w", err)
		}

		fields["content_progress"] = datatypes.JSON(cpRaw)
		fields["milestones"] = datatypes.JSON(msRaw)
		fields["time_tracking"] = datatypes.JSON(ttRaw)
		fields["progress_percentage"] = pct

		if err := ps.projectRepo.UpdateFields(ctx, tx, p.ID, fields); err != nil {
			return err
		}

		p.ContentProgress = datatypes.JSON(cpRaw)
		p.Milestones = datatypes.JSON(msRaw)
		p.TimeTracking = datatypes.JSON(ttRaw)
		p.ProgressPercentage = pct
		if v, ok := fields["actual_completion"].(time.Time); ok {
			p.ActualCompletion = &v
		}
		out = p
		return nil
	}); err != nil {
		return nil, err
	}

	ps.cache.Delete(ctx, progressCacheKey(projectID))
	ps.log.Info("progress updated",
		"project_id", out.ID,
		"milestone", string(input.Milestone),
		"phase", string(input.Phase),
		"progress_percentage", out.ProgressPercentage,
	)
	return out, nil
}

func (ps *progressService) GetProgress(ctx context.Context, owner types.Owner, projectID uuid.UUID) (*ProgressSnapshot, error) {
	key := progressCacheKey(projectID)
	if raw, ok := ps.cache.Get(ctx, key); ok {
		var snap ProgressSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			// Ownership still has to hold for the caller at hand.
			if owned, err := ps.ownerHolds(ctx, owner, projectID); err == nil && owned {
				return &snap, nil
			}
		}
	}

	found, err := ps.projectRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 || !owner.Owns(found[0]) {
		return nil, apierr.New(http.StatusNotFound, "not_found", fmt.Errorf("project %s not found", projectID))
	}
	p := found[0]

	snap := &ProgressSnapshot{
		ProjectID:           p.ID,
		ProgressPercentage:  p.ProgressPercentage,
		ContentProgress:     p.ContentProgress,
		Milestones:          p.Milestones,
		TimeTracking:        p.TimeTracking,
		EstimatedCompletion: p.EstimatedCompletion,
		ActualCompletion:    p.ActualCompletion,
	}
	if raw, err := json.Marshal(snap); err == nil {
		ps.cache.Set(ctx, key, raw)
	}
	return snap, nil
}

func (ps *progressService) ownerHolds(ctx context.Context, owner types.Owner, projectID uuid.UUID) (bool, error) {
	found, err := ps.projectRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil {
		return false, err
	}
	return len(found) == 1 && owner.Owns(found[0]), nil
}

func progressCacheKey(projectID uuid.UUID) string {
	return "progress:" + projectID.String()
}

// applyMilestone merges one milestone into the materialized view. One
// case per Milestone variant; a chapter milestone without a chapterId
// leaves the view untouched (the log entry above still stands).
func applyMilestone(cp *types.ContentProgress, m types.Milestone, now time.Time, details *types.MilestoneDetails) {
	switch m {
	case types.MilestoneOutlineGenerated:
		cp.Outline = &types.PhaseProgress{Completed: true, Timestamp: now}
	case types.MilestoneResearchInProgress:
		cp.Research = &types.PhaseProgress{Status: "in_progress", Timestamp: now}
	case types.MilestoneResearchComplete:
		cp.Research = &types.PhaseProgress{Completed: true, Timestamp: now}
	case types.MilestoneWritingInProgress:
		cp.Writing = &types.PhaseProgress{Status: "in_progress", Timestamp: now}
	case types.MilestoneChapterWritingStarted:
		if details == nil || details.ChapterID == "" {
			return
		}
		if cp.Chapters == nil {
			cp.Chapters = map[string]*types.ChapterProgress{}
		}
		started := now
		cp.Chapters[details.ChapterID] = &types.ChapterProgress{
			Status:    "in_progress",
			Title:     details.ChapterTitle,
			StartedAt: &started,
		}
	case types.MilestoneChapterWritingCompleted:
		if details == nil || details.ChapterID == "" {
			return
		}
		if cp.Chapters == nil {
			cp.Chapters = map[string]*types.ChapterProgress{}
		}
		ch := cp.Chapters[details.ChapterID]
		if ch == nil {
			ch = &types.ChapterProgress{Title: details.ChapterTitle}
			cp.Chapters[details.ChapterID] = ch
		}
		completed := now
		ch.Completed = true
		ch.Status = "completed"
		ch.CompletedAt = &completed
		ch.TimeSpent = details.TimeSpent
	case types.MilestoneAbstractGenerated:
		cp.Abstract = &types.PhaseProgress{Completed: true, Timestamp: now}
	case types.MilestoneProjectComplete:
		cp.Overall = &types.PhaseProgress{Completed: true, Timestamp: now}
	}
}

// Percentage derives the completion percentage from the materialized
// view. Four phases carry equal weight; once any chapters exist they
// take a fixed 40% bucket and the phases share the remaining 60%.
// Deterministic by construction: same input, same output.
func Percentage(cp *types.ContentProgress) int {
	completed := 0
	for _, ph := range []*types.PhaseProgress{cp.Outline, cp.Research, cp.Writing, cp.Abstract} {
		if ph != nil && ph.Completed {
			completed++
		}
	}

	if len(cp.Chapters) > 0 {
		done := 0
		for _, ch := range cp.Chapters {
			if ch != nil && ch.Completed {
				done++
			}
		}
		chapterFraction := float64(done) / float64(len(cp.Chapters))
		return int(math.Round(float64(completed)/4*60 + chapterFraction*40))
	}
	return int(math.Round(float64(completed) / 4 * 100))
}

func decodeContentProgress(raw datatypes.JSON) (*types.ContentProgress, error) {
	cp := &types.ContentProgress{}
	if len(raw) == 0 {
		return cp, nil
	}
	if err := json.Unmarshal(raw, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func decodeMilestones(raw datatypes.JSON) ([]types.MilestoneEntry, error) {
	var out []types.MilestoneEntry
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeTimeTracking(raw datatypes.JSON) (types.TimeTracking, error) {
	out := types.TimeTracking{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

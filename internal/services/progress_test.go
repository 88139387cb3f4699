package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thesisdesk/thesisdesk-backend/internal/clients/redis"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/testutil"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
)

func phaseDone(ts time.Time) *types.PhaseProgress {
	return &types.PhaseProgress{Completed: true, Timestamp: ts}
}

func TestPercentagePhasesOnly(t *testing.T) {
	now := time.Now()
	cp := &types.ContentProgress{
		Outline:  phaseDone(now),
		Research: phaseDone(now),
		Abstract: phaseDone(now),
	}
	if got := Percentage(cp); got != 75 {
		t.Fatalf("expected 75, got %d", got)
	}
}

func TestPercentageWithChapters(t *testing.T) {
	now := time.Now()
	cp := &types.ContentProgress{
		Outline:  phaseDone(now),
		Research: phaseDone(now),
		Abstract: phaseDone(now),
		Chapters: map[string]*types.ChapterProgress{
			"ch1": {Completed: true},
			"ch2": {Completed: true},
			"ch3": {},
			"ch4": {},
		},
	}
	// 3/4*60 + 2/4*40 = 45 + 20
	if got := Percentage(cp); got != 65 {
		t.Fatalf("expected 65, got %d", got)
	}
}

func TestPercentageEmptyAndComplete(t *testing.T) {
	if got := Percentage(&types.ContentProgress{}); got != 0 {
		t.Fatalf("expected 0 for empty progress, got %d", got)
	}
	now := time.Now()
	full := &types.ContentProgress{
		Outline:  phaseDone(now),
		Research: phaseDone(now),
		Writing:  phaseDone(now),
		Abstract: phaseDone(now),
	}
	if got := Percentage(full); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestPercentageDeterministic(t *testing.T) {
	now := time.Now()
	cp := &types.ContentProgress{
		Outline: phaseDone(now),
		Chapters: map[string]*types.ChapterProgress{
			"a": {Completed: true},
			"b": {},
			"c": {},
		},
	}
	first := Percentage(cp)
	for i := 0; i < 50; i++ {
		if got := Percentage(cp); got != first {
			t.Fatalf("recompute %d diverged: %d != %d", i, got, first)
		}
	}
}

func TestApplyMilestoneChapterWithoutIDIsNoOp(t *testing.T) {
	cp := &types.ContentProgress{}
	applyMilestone(cp, types.MilestoneChapterWritingCompleted, time.Now(), &types.MilestoneDetails{ChapterTitle: "orphan"})
	if len(cp.Chapters) != 0 {
		t.Fatalf("expected no chapter entry without a chapter id")
	}
	applyMilestone(cp, types.MilestoneChapterWritingStarted, time.Now(), nil)
	if len(cp.Chapters) != 0 {
		t.Fatalf("expected no chapter entry without details")
	}
}

func TestUpdateProgressAppendsAndDerives(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "progress@example.com")
	owner := types.AuthenticatedOwner(u.ID)
	p := testutil.SeedProject(t, ctx, tx, owner, "Irrigation scheduling")

	// The service opens savepoints on the test transaction, so all
	// writes stay invisible outside this test.
	svc := NewProgressService(tx, log, project.NewProjectRepo(tx, log), redis.NewNoopCache())

	steps := []struct {
		milestone types.Milestone
		phase     types.Phase
		want      int
	}{
		{types.MilestoneOutlineGenerated, types.PhaseOutline, 25},
		{types.MilestoneResearchInProgress, types.PhaseResearch, 25},
		{types.MilestoneResearchComplete, types.PhaseResearch, 50},
		{types.MilestoneAbstractGenerated, types.PhaseAbstract, 75},
	}
	for i, step := range steps {
		got, err := svc.UpdateProgress(ctx, owner, p.ID, UpdateProgressInput{
			Milestone: step.milestone,
			Phase:     step.phase,
		})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got.ProgressPercentage != step.want {
			t.Fatalf("step %d: expected %d%%, got %d%%", i, step.want, got.ProgressPercentage)
		}
	}

	// Chapters pull the phases into the 60% bucket.
	for _, ch := range []string{"ch1", "ch2", "ch3", "ch4"} {
		if _, err := svc.UpdateProgress(ctx, owner, p.ID, UpdateProgressInput{
			Milestone: types.MilestoneChapterWritingStarted,
			Phase:     types.PhaseChapters,
			Details:   &types.MilestoneDetails{ChapterID: ch},
		}); err != nil {
			t.Fatalf("start %s: %v", ch, err)
		}
	}
	var last *types.Project
	for _, ch := range []string{"ch1", "ch2"} {
		var err error
		last, err = svc.UpdateProgress(ctx, owner, p.ID, UpdateProgressInput{
			Milestone: types.MilestoneChapterWritingCompleted,
			Phase:     types.PhaseChapters,
			Details:   &types.MilestoneDetails{ChapterID: ch, TimeSpent: 10},
		})
		if err != nil {
			t.Fatalf("complete %s: %v", ch, err)
		}
	}
	if last.ProgressPercentage != 65 {
		t.Fatalf("expected 65%% after 2/4 chapters, got %d%%", last.ProgressPercentage)
	}

	var entries []types.MilestoneEntry
	if err := json.Unmarshal(last.Milestones, &entries); err != nil {
		t.Fatalf("decode milestones: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 log entries, got %d", len(entries))
	}
	if entries[0].Milestone != types.MilestoneOutlineGenerated {
		t.Fatalf("expected first entry preserved, got %s", entries[0].Milestone)
	}

	var tt types.TimeTracking
	if err := json.Unmarshal(last.TimeTracking, &tt); err != nil {
		t.Fatalf("decode time tracking: %v", err)
	}
	if tt["chapters"] == nil || tt["chapters"].TotalTime != 20 {
		t.Fatalf("expected 20 accumulated on chapters phase, got %+v", tt["chapters"])
	}
}

func TestUpdateProgressRejectsUnknownTagsAndForeignProjects(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "stranger@example.com")
	p := testutil.SeedProject(t, ctx, tx, types.AnonymousOwner("sess-own"), "Poultry disease")

	svc := NewProgressService(tx, log, project.NewProjectRepo(tx, log), redis.NewNoopCache())

	_, err := svc.UpdateProgress(ctx, types.AnonymousOwner("sess-own"), p.ID, UpdateProgressInput{
		Milestone: "NOT_A_MILESTONE",
		Phase:     types.PhaseOutline,
	})
	assertCode(t, err, "validation_error")

	_, err = svc.UpdateProgress(ctx, types.AuthenticatedOwner(u.ID), p.ID, UpdateProgressInput{
		Milestone: types.MilestoneOutlineGenerated,
		Phase:     types.PhaseOutline,
	})
	assertCode(t, err, "not_found")
}

func TestUpdateProgressSerializesConcurrentWriters(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)

	// Committed rows on the pooled connection, so the two writers race
	// on real row locks instead of sharing one test transaction.
	anonID := "sess-race"
	p := &types.Project{
		AnonymousID: &anonID,
		Topic:       "Concurrent appends",
		Status:      types.StatusOutlineGenerated,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	t.Cleanup(func() {
		db.Unscoped().Where("id = ?", p.ID).Delete(&types.Project{})
	})

	owner := types.AnonymousOwner(anonID)
	svc := NewProgressService(db, log, project.NewProjectRepo(db, log), redis.NewNoopCache())

	const writers = 2
	const perWriter = 5
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := svc.UpdateProgress(ctx, owner, p.ID, UpdateProgressInput{
					Milestone: types.MilestoneResearchInProgress,
					Phase:     types.PhaseResearch,
				}); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	var got types.Project
	if err := db.WithContext(ctx).Where("id = ?", p.ID).First(&got).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	var entries []types.MilestoneEntry
	if err := json.Unmarshal(got.Milestones, &entries); err != nil {
		t.Fatalf("decode milestones: %v", err)
	}
	// Without the row lock the read-merge-write loses entries.
	if len(entries) != writers*perWriter {
		t.Fatalf("expected %d log entries, got %d", writers*perWriter, len(entries))
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %q, got nil", code)
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected apierr, got %T: %v", err, err)
	}
	if ae.Code != code {
		t.Fatalf("expected code %q, got %q (%v)", code, ae.Code, err)
	}
}

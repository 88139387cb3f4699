package services

import (
	"context"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/testutil"
	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
)

func newProjectFixture(t *testing.T, tx *gorm.DB) ProjectService {
	t.Helper()
	log := testutil.Logger(t)
	projectRepo := project.NewProjectRepo(tx, log)
	return NewProjectService(tx, log, projectRepo, NewLockService(tx, log, projectRepo))
}

func TestCreateProjectBlockedByExistingLock(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, ctx, tx, "committed@example.com")
	owner := types.AuthenticatedOwner(u.ID)
	locked := testutil.SeedLockedProject(t, ctx, tx, owner, "Committed topic")

	svc := newProjectFixture(t, tx)

	_, err := svc.CreateProject(ctx, owner, CreateProjectInput{Topic: "Second thoughts"})
	assertCode(t, err, "project_already_locked")
	if !strings.Contains(err.Error(), locked.ID.String()) {
		t.Fatalf("error should name the locked project, got: %v", err)
	}

	// An unrelated owner is unaffected.
	p, err := svc.CreateProject(ctx, types.AnonymousOwner("fresh-session"), CreateProjectInput{Topic: "Fresh topic"})
	if err != nil {
		t.Fatalf("create for fresh session: %v", err)
	}
	if p.Status != types.StatusOutlineGenerated {
		t.Fatalf("expected initial status, got %s", p.Status)
	}
}

func TestClaimProjectMovesOwnership(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, ctx, tx, "claimant@example.com")
	p := testutil.SeedProject(t, ctx, tx, types.AnonymousOwner("sess-claim"), "Hydroponics")

	svc := newProjectFixture(t, tx)

	claimed, err := svc.ClaimProject(ctx, u.ID, "sess-claim", p.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.UserID == nil || *claimed.UserID != u.ID {
		t.Fatalf("expected user bound after claim")
	}
	if claimed.AnonymousID != nil {
		t.Fatalf("expected anonymous id cleared")
	}

	projects, err := svc.ListProjects(ctx, types.AuthenticatedOwner(u.ID))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != p.ID {
		t.Fatalf("expected claimed project in caller's list")
	}
}

func TestClaimProjectGuards(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, ctx, tx, "greedy@example.com")
	testutil.SeedLockedProject(t, ctx, tx, types.AuthenticatedOwner(u.ID), "Existing committed work")
	lockedAnon := testutil.SeedLockedProject(t, ctx, tx, types.AnonymousOwner("sess-greedy"), "Anon committed work")

	svc := newProjectFixture(t, tx)

	// Claiming a second locked project would break the one-lock rule.
	_, err := svc.ClaimProject(ctx, u.ID, "sess-greedy", lockedAnon.ID)
	assertCode(t, err, "project_already_locked")

	// Wrong session cannot claim someone else's anonymous project.
	p := testutil.SeedProject(t, ctx, tx, types.AnonymousOwner("sess-a"), "Sesame farming")
	_, err = svc.ClaimProject(ctx, u.ID, "sess-b", p.ID)
	assertCode(t, err, "not_found")
}

func TestGetProjectOwnershipScoped(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	p := testutil.SeedProject(t, ctx, tx, types.AnonymousOwner("sess-mine"), "Catfish ponds")
	svc := newProjectFixture(t, tx)

	got, err := svc.GetProject(ctx, types.AnonymousOwner("sess-mine"), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("expected own project")
	}

	_, err = svc.GetProject(ctx, types.AnonymousOwner("sess-theirs"), p.ID)
	assertCode(t, err, "not_found")
}

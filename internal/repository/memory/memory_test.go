package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
)

func seedUser(t *testing.T, store *Store, id, email string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &domain.User{
		ID:    id,
		Email: email,
		Role:  domain.RoleClient,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestCreateUserConflicts(t *testing.T) {
	store := New()
	seedUser(t, store, "u1", "a@example.com")

	err := store.CreateUser(context.Background(), &domain.User{ID: "u1", Email: "b@example.com"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected id conflict, got %v", err)
	}
	err = store.CreateUser(context.Background(), &domain.User{ID: "u2", Email: "A@Example.com"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected case-insensitive email conflict, got %v", err)
	}
}

func TestCreatePackageEnforcesMonthUniqueness(t *testing.T) {
	store := New()
	seedUser(t, store, "u1", "a@example.com")

	pkg := &domain.MonthlyPackage{ID: "p1", UserID: "u1", Month: 1, Year: 2026, Status: domain.StatusNeedStatements}
	if err := store.CreatePackage(context.Background(), pkg); err != nil {
		t.Fatalf("create package: %v", err)
	}
	dup := &domain.MonthlyPackage{ID: "p2", UserID: "u1", Month: 1, Year: 2026, Status: domain.StatusNeedStatements}
	if err := store.CreatePackage(context.Background(), dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	other := &domain.MonthlyPackage{ID: "p3", UserID: "u1", Month: 2, Year: 2026, Status: domain.StatusNeedStatements}
	if err := store.CreatePackage(context.Background(), other); err != nil {
		t.Fatalf("different month should not conflict: %v", err)
	}
}

func TestGetPackageForUserScoping(t *testing.T) {
	store := New()
	seedUser(t, store, "u1", "a@example.com")
	seedUser(t, store, "u2", "b@example.com")

	pkg := &domain.MonthlyPackage{ID: "p1", UserID: "u1", Month: 1, Year: 2026, Status: domain.StatusNeedStatements}
	if err := store.CreatePackage(context.Background(), pkg); err != nil {
		t.Fatalf("create package: %v", err)
	}

	if _, err := store.GetPackageForUser(context.Background(), "p1", "u1"); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := store.GetPackageForUser(context.Background(), "p1", "u2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for foreign user, got %v", err)
	}
}

func TestListPackagesNewestFirstWithCounts(t *testing.T) {
	store := New()
	seedUser(t, store, "u1", "a@example.com")
	ctx := context.Background()

	for _, p := range []struct {
		id    string
		month int
		year  int
	}{
		{"p-jan", 1, 2026},
		{"p-dec", 12, 2025},
		{"p-feb", 2, 2026},
	} {
		err := store.CreatePackage(ctx, &domain.MonthlyPackage{
			ID: p.id, UserID: "u1", Month: p.month, Year: p.year, Status: domain.StatusNeedStatements,
		})
		if err != nil {
			t.Fatalf("create package: %v", err)
		}
	}
	err := store.CreateStatement(ctx, &domain.Statement{
		ID: "s1", MonthlyPackageID: "p-feb", InstitutionName: "Chase",
		AccountLast4: "1234", InstitutionType: domain.InstitutionBank,
		FileURL: "mem://s1", FileName: "s1.pdf", UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create statement: %v", err)
	}

	summaries, err := store.ListPackagesForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list packages: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(summaries))
	}
	order := []string{"p-feb", "p-jan", "p-dec"}
	for i, want := range order {
		if summaries[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, summaries[i].ID)
		}
	}
	if summaries[0].StatementCount != 1 {
		t.Fatalf("expected count 1 for p-feb, got %d", summaries[0].StatementCount)
	}
}

func TestStatementScopingAndInstitutions(t *testing.T) {
	store := New()
	seedUser(t, store, "u1", "a@example.com")
	seedUser(t, store, "u2", "b@example.com")
	ctx := context.Background()

	for _, p := range []struct{ id, user string }{{"p1", "u1"}, {"p2", "u2"}} {
		err := store.CreatePackage(ctx, &domain.MonthlyPackage{
			ID: p.id, UserID: p.user, Month: 1, Year: 2026, Status: domain.StatusNeedStatements,
		})
		if err != nil {
			t.Fatalf("create package: %v", err)
		}
	}
	for _, s := range []struct{ id, pkg, inst string }{
		{"s1", "p1", "Chase"},
		{"s2", "p1", "Amex"},
		{"s3", "p2", "Wells Fargo"},
	} {
		err := store.CreateStatement(ctx, &domain.Statement{
			ID: s.id, MonthlyPackageID: s.pkg, InstitutionName: s.inst,
			AccountLast4: "1234", InstitutionType: domain.InstitutionBank,
			FileURL: "mem://" + s.id, FileName: s.id + ".pdf", UploadedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("create statement: %v", err)
		}
	}

	if _, err := store.GetStatement(ctx, "s1", "p2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected cross-package lookup to miss, got %v", err)
	}

	names, err := store.ListInstitutionsForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list institutions: %v", err)
	}
	if len(names) != 2 || names[0] != "Amex" || names[1] != "Chase" {
		t.Fatalf("unexpected institutions: %v", names)
	}
}

func TestResetDropsEverything(t *testing.T) {
	store := New()
	seedUser(t, store, "u1", "a@example.com")
	store.Reset()
	if _, err := store.GetUserByID(context.Background(), "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected empty store after reset, got %v", err)
	}
}

func TestClientSummariesOrderedByActivity(t *testing.T) {
	store := New()
	seedUser(t, store, "old", "old@example.com")
	seedUser(t, store, "recent", "recent@example.com")
	seedUser(t, store, "idle", "idle@example.com")
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.CreatePackage(ctx, &domain.MonthlyPackage{
		ID: "p-old", UserID: "old", Month: 1, Year: 2026, Status: domain.StatusFinished, CreatedAt: now.Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	err = store.CreatePackage(ctx, &domain.MonthlyPackage{
		ID: "p-recent", UserID: "recent", Month: 2, Year: 2026, Status: domain.StatusNeedStatements, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	summaries, err := store.ListClientSummaries(ctx)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != "recent" || summaries[1].ID != "old" || summaries[2].ID != "idle" {
		t.Fatalf("unexpected order: %s, %s, %s", summaries[0].ID, summaries[1].ID, summaries[2].ID)
	}
	if summaries[0].LatestPackageStatus != domain.StatusNeedStatements {
		t.Fatalf("unexpected latest status: %s", summaries[0].LatestPackageStatus)
	}
	if summaries[2].LatestPackageStatus != "" {
		t.Fatalf("idle client should have no latest status, got %s", summaries[2].LatestPackageStatus)
	}
}

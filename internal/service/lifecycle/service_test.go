package lifecycle

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/notify"
	"github.com/mybookkeepers/portal/internal/repository"
	"github.com/mybookkeepers/portal/internal/repository/memory"
	"github.com/mybookkeepers/portal/internal/service/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedClient(t *testing.T, store *memory.Store) auth.Caller {
	t.Helper()
	user := &domain.User{
		ID:          "client-1",
		Email:       "sarah@example.com",
		Name:        "Sarah Johnson",
		CompanyName: "Johnson Consulting",
		Role:        domain.RoleClient,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return auth.Caller{ID: user.ID, Role: user.Role, Email: user.Email}
}

func seedStatement(t *testing.T, store *memory.Store, packageID, id string) {
	t.Helper()
	err := store.CreateStatement(context.Background(), &domain.Statement{
		ID:               id,
		MonthlyPackageID: packageID,
		InstitutionName:  "Chase",
		AccountLast4:     "1234",
		InstitutionType:  domain.InstitutionBank,
		FileURL:          "mem://statements/" + id,
		FileName:         id + ".pdf",
		UploadedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed statement: %v", err)
	}
}

func TestCreateMonthValidatesPeriod(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	cases := []struct {
		name  string
		month int
		year  int
	}{
		{"month zero", 0, 2026},
		{"month thirteen", 13, 2026},
		{"year too early", 1, 2019},
		{"year too late", 1, 2101},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateMonth(context.Background(), caller, tc.month, tc.year)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateMonthConflictReturnsExisting(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	first, err := svc.CreateMonth(context.Background(), caller, 1, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}
	second, err := svc.CreateMonth(context.Background(), caller, 1, 2026)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("expected existing package returned on conflict")
	}
}

func TestSubmitRequiresStatements(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	pkg, err := svc.CreateMonth(context.Background(), caller, 3, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}
	if _, _, err := svc.Submit(context.Background(), caller, pkg.ID); !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestSubmitTransitionsAndQueuesNotice(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	pkg, err := svc.CreateMonth(context.Background(), caller, 3, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}
	seedStatement(t, store, pkg.ID, "stmt-1")
	seedStatement(t, store, pkg.ID, "stmt-2")

	updated, pending, err := svc.Submit(context.Background(), caller, pkg.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if updated.Status != domain.StatusCategorizing {
		t.Fatalf("expected categorizing, got %s", updated.Status)
	}
	if updated.SubmittedAt == nil {
		t.Fatalf("expected submitted_at to be stamped")
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending notification, got %d", len(pending))
	}
	notice := pending[0]
	if notice.Kind != notify.KindSubmission {
		t.Fatalf("expected submission notice, got %s", notice.Kind)
	}
	if notice.Month != "March" || notice.Year != 2026 {
		t.Fatalf("unexpected period: %s %d", notice.Month, notice.Year)
	}
	if len(notice.Statements) != 2 {
		t.Fatalf("expected 2 statement lines, got %d", len(notice.Statements))
	}
	if notice.ClientEmail != "sarah@example.com" {
		t.Fatalf("unexpected client email: %s", notice.ClientEmail)
	}
}

func TestSubmitOnlyFromCollectingState(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	pkg, err := svc.CreateMonth(context.Background(), caller, 4, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}
	seedStatement(t, store, pkg.ID, "stmt-1")

	if _, _, err := svc.Submit(context.Background(), caller, pkg.ID); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, _, err := svc.Submit(context.Background(), caller, pkg.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSubmitScopedToOwner(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	pkg, err := svc.CreateMonth(context.Background(), caller, 5, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}
	other := auth.Caller{ID: "someone-else", Role: domain.RoleClient}
	if _, _, err := svc.Submit(context.Background(), other, pkg.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for foreign caller, got %v", err)
	}
}

func TestSetStatusAllowsAnyDirection(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	pkg, err := svc.CreateMonth(context.Background(), caller, 6, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}

	for _, status := range []domain.PackageStatus{
		domain.StatusReconciled,
		domain.StatusNeedStatements,
		domain.StatusCategorized,
	} {
		updated, _, err := svc.SetStatus(context.Background(), caller.ID, pkg.ID, status)
		if err != nil {
			t.Fatalf("set status %s: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("expected %s, got %s", status, updated.Status)
		}
	}
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	pkg, err := svc.CreateMonth(context.Background(), caller, 7, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}
	_, _, err = svc.SetStatus(context.Background(), caller.ID, pkg.ID, "archived")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetStatusFinishedQueuesCompletionNotice(t *testing.T) {
	store := memory.New()
	caller := seedClient(t, store)
	svc := New(store, store, store, testLogger())

	pkg, err := svc.CreateMonth(context.Background(), caller, 8, 2026)
	if err != nil {
		t.Fatalf("create month: %v", err)
	}

	_, pending, err := svc.SetStatus(context.Background(), caller.ID, pkg.ID, domain.StatusFinished)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if len(pending) != 1 || pending[0].Kind != notify.KindCompletion {
		t.Fatalf("expected one completion notice, got %+v", pending)
	}

	// re-finishing queues another notice
	_, pending, err = svc.SetStatus(context.Background(), caller.ID, pkg.ID, domain.StatusFinished)
	if err != nil {
		t.Fatalf("re-finish: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected completion notice on re-finish, got %d", len(pending))
	}

	// non-finished statuses queue nothing
	_, pending, err = svc.SetStatus(context.Background(), caller.ID, pkg.ID, domain.StatusReconciling)
	if err != nil {
		t.Fatalf("set reconciling: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no notice, got %d", len(pending))
	}
}

func TestListForClientRejectsBookkeeperID(t *testing.T) {
	store := memory.New()
	seedClient(t, store)
	bk := &domain.User{ID: "bk-1", Email: "books@example.com", Role: domain.RoleBookkeeper}
	if err := store.CreateUser(context.Background(), bk); err != nil {
		t.Fatalf("seed bookkeeper: %v", err)
	}
	svc := New(store, store, store, testLogger())

	if _, err := svc.ListForClient(context.Background(), "bk-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for bookkeeper id, got %v", err)
	}
	if _, err := svc.ListForClient(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

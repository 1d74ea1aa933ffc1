package statement

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/mybookkeepers/portal/internal/blob"
	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
	"github.com/mybookkeepers/portal/internal/repository/memory"
	"github.com/mybookkeepers/portal/internal/service/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*memory.Store, *blob.MemoryStore, Service, auth.Caller, *domain.MonthlyPackage) {
	t.Helper()
	store := memory.New()
	blobs := blob.NewMemoryStore()
	user := &domain.User{ID: "client-1", Email: "c@example.com", Role: domain.RoleClient}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	pkg := &domain.MonthlyPackage{
		ID:        "pkg-1",
		UserID:    user.ID,
		Month:     1,
		Year:      2026,
		Status:    domain.StatusNeedStatements,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreatePackage(context.Background(), pkg); err != nil {
		t.Fatalf("seed package: %v", err)
	}
	svc := New(store, store, blobs, testLogger())
	caller := auth.Caller{ID: user.ID, Role: user.Role, Email: user.Email}
	return store, blobs, svc, caller, pkg
}

func validInput() UploadInput {
	return UploadInput{
		InstitutionName: "Chase",
		AccountLast4:    "1234",
		InstitutionType: "bank",
		FileName:        "january.pdf",
		ContentType:     "application/pdf",
		Content:         []byte("%PDF-1.4 fake"),
	}
}

func TestUploadStoresFileAndMetadata(t *testing.T) {
	store, blobs, svc, caller, pkg := setup(t)

	stmt, err := svc.Upload(context.Background(), caller, pkg.ID, validInput())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if stmt.MonthlyPackageID != pkg.ID {
		t.Fatalf("unexpected package id %s", stmt.MonthlyPackageID)
	}
	if stmt.FileSize != int64(len("%PDF-1.4 fake")) {
		t.Fatalf("unexpected file size %d", stmt.FileSize)
	}

	content, err := blobs.Fetch(context.Background(), stmt.FileURL)
	if err != nil {
		t.Fatalf("fetch stored file: %v", err)
	}
	if !bytes.Equal(content, []byte("%PDF-1.4 fake")) {
		t.Fatalf("stored content mismatch")
	}

	persisted, err := store.GetStatement(context.Background(), stmt.ID, pkg.ID)
	if err != nil {
		t.Fatalf("load persisted statement: %v", err)
	}
	if persisted.InstitutionName != "Chase" || persisted.AccountLast4 != "1234" {
		t.Fatalf("unexpected persisted metadata: %+v", persisted)
	}
}

func TestUploadValidation(t *testing.T) {
	_, _, svc, caller, pkg := setup(t)

	cases := []struct {
		name   string
		mutate func(*UploadInput)
		field  string
	}{
		{"missing institution", func(in *UploadInput) { in.InstitutionName = "  " }, "institutionName"},
		{"institution too long", func(in *UploadInput) { in.InstitutionName = strings.Repeat("a", 201) }, "institutionName"},
		{"last4 too short", func(in *UploadInput) { in.AccountLast4 = "123" }, "accountLast4"},
		{"last4 letters", func(in *UploadInput) { in.AccountLast4 = "12ab" }, "accountLast4"},
		{"unknown type", func(in *UploadInput) { in.InstitutionType = "crypto" }, "institutionType"},
		{"bad content type", func(in *UploadInput) { in.ContentType = "application/zip" }, "file"},
		{"empty file", func(in *UploadInput) { in.Content = nil }, "file"},
		{"oversized file", func(in *UploadInput) { in.Content = make([]byte, MaxFileSize+1) }, "file"},
		{"missing file name", func(in *UploadInput) { in.FileName = "" }, "fileName"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			_, err := svc.Upload(context.Background(), caller, pkg.ID, input)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected field %q flagged, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestUploadAcceptsLongInstitutionNames(t *testing.T) {
	_, _, svc, caller, pkg := setup(t)

	input := validInput()
	input.InstitutionName = strings.Repeat("a", 150)
	if _, err := svc.Upload(context.Background(), caller, pkg.ID, input); err != nil {
		t.Fatalf("expected 150-char institution name accepted, got %v", err)
	}
}

func TestUploadGatedOnPackageStatus(t *testing.T) {
	store, _, svc, caller, pkg := setup(t)

	for _, status := range []domain.PackageStatus{
		domain.StatusCategorizing,
		domain.StatusCategorized,
		domain.StatusReconciling,
		domain.StatusReconciled,
		domain.StatusFinished,
	} {
		if err := store.SetPackageStatus(context.Background(), pkg.ID, status); err != nil {
			t.Fatalf("set status: %v", err)
		}
		if _, err := svc.Upload(context.Background(), caller, pkg.ID, validInput()); !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("status %s: expected invalid state, got %v", status, err)
		}
	}
}

func TestUploadScopedToOwner(t *testing.T) {
	_, _, svc, _, pkg := setup(t)
	other := auth.Caller{ID: "intruder", Role: domain.RoleClient}
	if _, err := svc.Upload(context.Background(), other, pkg.ID, validInput()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveDeletesFileAndRow(t *testing.T) {
	store, blobs, svc, caller, pkg := setup(t)

	stmt, err := svc.Upload(context.Background(), caller, pkg.ID, validInput())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := svc.Remove(context.Background(), caller, pkg.ID, stmt.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.GetStatement(context.Background(), stmt.ID, pkg.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected row gone, got %v", err)
	}
	if _, err := blobs.Fetch(context.Background(), stmt.FileURL); err == nil {
		t.Fatalf("expected stored file gone")
	}
}

func TestRemoveGatedOnPackageStatus(t *testing.T) {
	store, _, svc, caller, pkg := setup(t)

	stmt, err := svc.Upload(context.Background(), caller, pkg.ID, validInput())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.SetPackageStatus(context.Background(), pkg.ID, domain.StatusCategorizing); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := svc.Remove(context.Background(), caller, pkg.ID, stmt.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"statement.pdf", "statement.pdf"},
		{"../../etc/passwd", "passwd"},
		{"dir\\evil.pdf", "evil.pdf"},
		{"  spaced.pdf  ", "spaced.pdf"},
	}
	for _, tc := range cases {
		if got := sanitizeFileName(tc.in); got != tc.want {
			t.Fatalf("sanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

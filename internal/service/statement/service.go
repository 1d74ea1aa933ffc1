package statement

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/mybookkeepers/portal/internal/blob"
	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
	"github.com/mybookkeepers/portal/internal/service/auth"
)

// MaxFileSize is the upload size cap in bytes.
const MaxFileSize = 10 << 20

var last4Pattern = regexp.MustCompile(`^\d{4}$`)

var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"text/csv":        true,
	"image/png":       true,
	"image/jpeg":      true,
}

// UploadInput carries one statement upload.
type UploadInput struct {
	InstitutionName string
	AccountLast4    string
	InstitutionType string
	FileName        string
	ContentType     string
	Content         []byte
}

// Service manages statement uploads and removals. Both are gated on the
// owning package still collecting statements.
type Service struct {
	packages   repository.PackageRepository
	statements repository.StatementRepository
	blobs      blob.Store
	logger     *slog.Logger
}

// New constructs a Service.
func New(packages repository.PackageRepository, statements repository.StatementRepository, blobs blob.Store, logger *slog.Logger) Service {
	return Service{packages: packages, statements: statements, blobs: blobs, logger: logger}
}

// Upload stores a statement file and records its metadata under the
// caller's package.
func (s Service) Upload(ctx context.Context, caller auth.Caller, packageID string, input UploadInput) (*domain.Statement, error) {
	if err := validateUpload(input); err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetPackageForUser(ctx, packageID, caller.ID)
	if err != nil {
		return nil, err
	}
	if pkg.Status != domain.StatusNeedStatements {
		return nil, domain.ErrInvalidState
	}

	fileName := sanitizeFileName(input.FileName)
	key := fmt.Sprintf("statements/%s/%s/%s", caller.ID, pkg.ID, fileName)
	url, err := s.blobs.Put(ctx, key, input.ContentType, input.Content)
	if err != nil {
		return nil, fmt.Errorf("store statement file: %w", err)
	}

	stmt := &domain.Statement{
		ID:               uuid.NewString(),
		MonthlyPackageID: pkg.ID,
		InstitutionName:  strings.TrimSpace(input.InstitutionName),
		AccountLast4:     input.AccountLast4,
		InstitutionType:  domain.InstitutionType(input.InstitutionType),
		FileURL:          url,
		FileName:         fileName,
		FileSize:         int64(len(input.Content)),
		UploadedAt:       time.Now().UTC(),
	}
	if err := s.statements.CreateStatement(ctx, stmt); err != nil {
		if delErr := s.blobs.Delete(ctx, url); delErr != nil {
			s.logger.Error("failed to clean up orphaned file", "url", url, "error", delErr)
		}
		return nil, err
	}
	s.logger.Info("statement uploaded", "statement_id", stmt.ID, "package_id", pkg.ID, "size", stmt.FileSize)
	return stmt, nil
}

// Remove deletes a statement and its stored file from the caller's package.
func (s Service) Remove(ctx context.Context, caller auth.Caller, packageID, statementID string) error {
	pkg, err := s.packages.GetPackageForUser(ctx, packageID, caller.ID)
	if err != nil {
		return err
	}
	if pkg.Status != domain.StatusNeedStatements {
		return domain.ErrInvalidState
	}
	stmt, err := s.statements.GetStatement(ctx, statementID, pkg.ID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, stmt.FileURL); err != nil {
		s.logger.Error("failed to delete statement file", "url", stmt.FileURL, "error", err)
	}
	if err := s.statements.DeleteStatement(ctx, stmt.ID); err != nil {
		return err
	}
	s.logger.Info("statement removed", "statement_id", stmt.ID, "package_id", pkg.ID)
	return nil
}

func validateUpload(input UploadInput) error {
	fields := make(map[string]string)
	if strings.TrimSpace(input.InstitutionName) == "" {
		fields["institutionName"] = "Institution name is required"
	} else if len(strings.TrimSpace(input.InstitutionName)) > 200 {
		fields["institutionName"] = "Institution name must be at most 200 characters"
	}
	if !last4Pattern.MatchString(input.AccountLast4) {
		fields["accountLast4"] = "Account number must be exactly 4 digits"
	}
	if !domain.ValidInstitutionType(domain.InstitutionType(input.InstitutionType)) {
		fields["institutionType"] = "Unknown institution type"
	}
	if !allowedContentTypes[input.ContentType] {
		fields["file"] = "File must be a PDF, CSV, PNG, or JPEG"
	}
	if len(input.Content) == 0 {
		fields["file"] = "File is empty"
	} else if len(input.Content) > MaxFileSize {
		fields["file"] = "File must be 10MB or smaller"
	}
	if strings.TrimSpace(input.FileName) == "" {
		fields["fileName"] = "File name is required"
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

// sanitizeFileName strips path separators and control characters so the
// name is safe as a storage key segment and a zip entry.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package repository

import (
	"context"
	"time"

	"github.com/mybookkeepers/portal/internal/domain"
)

// UserRepository persists identity records.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUserProfile(ctx context.Context, user *domain.User) error
	ListClientSummaries(ctx context.Context) ([]domain.ClientSummary, error)
}

// PackageRepository persists monthly packages. Ownership-scoped lookups
// take the owner id so scope is re-verified on every call.
type PackageRepository interface {
	CreatePackage(ctx context.Context, pkg *domain.MonthlyPackage) error
	GetPackageForUser(ctx context.Context, packageID, userID string) (*domain.MonthlyPackage, error)
	FindPackageByMonth(ctx context.Context, userID string, month, year int) (*domain.MonthlyPackage, error)
	ListPackagesForUser(ctx context.Context, userID string) ([]domain.PackageSummary, error)
	SetPackageStatus(ctx context.Context, packageID string, status domain.PackageStatus) error
	MarkPackageSubmitted(ctx context.Context, packageID string, submittedAt time.Time) error
}

// StatementRepository persists uploaded statement metadata.
type StatementRepository interface {
	CreateStatement(ctx context.Context, stmt *domain.Statement) error
	GetStatement(ctx context.Context, statementID, packageID string) (*domain.Statement, error)
	ListStatementsByPackage(ctx context.Context, packageID string) ([]domain.Statement, error)
	DeleteStatement(ctx context.Context, statementID string) error
	ListInstitutionsForUser(ctx context.Context, userID string) ([]string, error)
}

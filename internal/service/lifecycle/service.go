package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/notify"
	"github.com/mybookkeepers/portal/internal/repository"
	"github.com/mybookkeepers/portal/internal/service/auth"
)

// Year bounds accepted when opening a month.
const (
	MinYear = 2020
	MaxYear = 2100
)

// PackageDetail is a package together with its statements.
type PackageDetail struct {
	domain.MonthlyPackage
	Statements []domain.Statement `json:"statements"`
}

// Service owns the package lifecycle: opening months, the client submit
// transition, and bookkeeper status changes. Operations that trigger email
// return the pending notifications for the caller to dispatch after the
// response is committed.
type Service struct {
	users      repository.UserRepository
	packages   repository.PackageRepository
	statements repository.StatementRepository
	logger     *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, packages repository.PackageRepository, statements repository.StatementRepository, logger *slog.Logger) Service {
	return Service{users: users, packages: packages, statements: statements, logger: logger}
}

// CreateMonth opens a new package for the caller's month. If the month is
// already open the existing package is returned along with ErrConflict so
// the route layer can answer idempotently.
func (s Service) CreateMonth(ctx context.Context, caller auth.Caller, month, year int) (*domain.MonthlyPackage, error) {
	fields := make(map[string]string)
	if month < 1 || month > 12 {
		fields["month"] = "Month must be between 1 and 12"
	}
	if year < MinYear || year > MaxYear {
		fields["year"] = fmt.Sprintf("Year must be between %d and %d", MinYear, MaxYear)
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}

	pkg := &domain.MonthlyPackage{
		ID:        uuid.NewString(),
		UserID:    caller.ID,
		Month:     month,
		Year:      year,
		Status:    domain.StatusNeedStatements,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.packages.CreatePackage(ctx, pkg); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			existing, findErr := s.packages.FindPackageByMonth(ctx, caller.ID, month, year)
			if findErr != nil {
				return nil, findErr
			}
			return existing, repository.ErrConflict
		}
		return nil, err
	}
	s.logger.Info("month opened", "package_id", pkg.ID, "user_id", caller.ID, "month", month, "year", year)
	return pkg, nil
}

// List returns the caller's packages, newest period first.
func (s Service) List(ctx context.Context, caller auth.Caller) ([]domain.PackageSummary, error) {
	return s.packages.ListPackagesForUser(ctx, caller.ID)
}

// Get returns one of the caller's packages with its statements.
func (s Service) Get(ctx context.Context, caller auth.Caller, packageID string) (*PackageDetail, error) {
	return s.detail(ctx, packageID, caller.ID)
}

// GetForClient returns a client's package with its statements, for
// bookkeeper views.
func (s Service) GetForClient(ctx context.Context, clientID, packageID string) (*PackageDetail, error) {
	return s.detail(ctx, packageID, clientID)
}

func (s Service) detail(ctx context.Context, packageID, ownerID string) (*PackageDetail, error) {
	pkg, err := s.packages.GetPackageForUser(ctx, packageID, ownerID)
	if err != nil {
		return nil, err
	}
	stmts, err := s.statements.ListStatementsByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	return &PackageDetail{MonthlyPackage: *pkg, Statements: stmts}, nil
}

// ListForClient returns a client's packages for bookkeeper views. The
// client id is verified to exist and to hold the client role.
func (s Service) ListForClient(ctx context.Context, clientID string) ([]domain.PackageSummary, error) {
	client, err := s.users.GetUserByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.Role != domain.RoleClient {
		return nil, repository.ErrNotFound
	}
	return s.packages.ListPackagesForUser(ctx, clientID)
}

// Submit hands the caller's package off for bookkeeping. Only a package
// still collecting statements can be submitted, and it must hold at least
// one. On success a submission notice is pending for the bookkeeper inbox.
func (s Service) Submit(ctx context.Context, caller auth.Caller, packageID string) (*domain.MonthlyPackage, []notify.Notification, error) {
	pkg, err := s.packages.GetPackageForUser(ctx, packageID, caller.ID)
	if err != nil {
		return nil, nil, err
	}
	if pkg.Status != domain.StatusNeedStatements {
		return nil, nil, domain.ErrInvalidTransition
	}
	stmts, err := s.statements.ListStatementsByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(stmts) == 0 {
		return nil, nil, domain.ErrPreconditionFailed
	}

	now := time.Now().UTC()
	if err := s.packages.MarkPackageSubmitted(ctx, pkg.ID, now); err != nil {
		return nil, nil, err
	}
	pkg.Status = domain.StatusCategorizing
	pkg.SubmittedAt = &now
	s.logger.Info("package submitted", "package_id", pkg.ID, "user_id", caller.ID, "statements", len(stmts))

	user, err := s.users.GetUserByID(ctx, caller.ID)
	if err != nil {
		// the transition already committed; skip the notice rather than fail
		s.logger.Error("failed to load submitter for notice", "user_id", caller.ID, "error", err)
		return pkg, nil, nil
	}
	lines := make([]notify.StatementLine, 0, len(stmts))
	for _, st := range stmts {
		lines = append(lines, notify.StatementLine{
			InstitutionName: st.InstitutionName,
			AccountLast4:    st.AccountLast4,
			InstitutionType: string(st.InstitutionType),
			FileName:        st.FileName,
		})
	}
	pending := []notify.Notification{{
		Kind:        notify.KindSubmission,
		ClientName:  user.Name,
		ClientEmail: user.Email,
		CompanyName: user.CompanyName,
		Month:       domain.MonthName(pkg.Month),
		Year:        pkg.Year,
		Statements:  lines,
	}}
	return pkg, pending, nil
}

// SetStatus moves a client's package to any lifecycle state. Bookkeepers
// may move packages backward as well as forward. Setting finished queues
// exactly one completion notice to the client, even when re-finishing.
func (s Service) SetStatus(ctx context.Context, clientID, packageID string, status domain.PackageStatus) (*domain.MonthlyPackage, []notify.Notification, error) {
	if !domain.ValidPackageStatus(status) {
		return nil, nil, domain.NewValidationError(map[string]string{
			"status": "Unknown status",
		})
	}
	pkg, err := s.packages.GetPackageForUser(ctx, packageID, clientID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.packages.SetPackageStatus(ctx, pkg.ID, status); err != nil {
		return nil, nil, err
	}
	s.logger.Info("status changed", "package_id", pkg.ID, "from", string(pkg.Status), "to", string(status))
	pkg.Status = status

	if status != domain.StatusFinished {
		return pkg, nil, nil
	}
	client, err := s.users.GetUserByID(ctx, clientID)
	if err != nil {
		s.logger.Error("failed to load client for notice", "user_id", clientID, "error", err)
		return pkg, nil, nil
	}
	pending := []notify.Notification{{
		Kind:        notify.KindCompletion,
		ClientName:  client.Name,
		ClientEmail: client.Email,
		CompanyName: client.CompanyName,
		Month:       domain.MonthName(pkg.Month),
		Year:        pkg.Year,
	}}
	return pkg, pending, nil
}

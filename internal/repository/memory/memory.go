package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
)

// Store is a process-local implementation of the persistence interfaces,
// used in development mock mode and as a test double. Lifecycle is
// explicit: construct with New, wipe with Reset.
type Store struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	packages   map[string]domain.MonthlyPackage
	statements map[string]domain.Statement
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

// Reset drops all stored entities.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Store) reset() {
	s.users = make(map[string]domain.User)
	s.packages = make(map[string]domain.MonthlyPackage)
	s.statements = make(map[string]domain.Statement)
}

// ensure Store satisfies interfaces.
var (
	_ repository.UserRepository      = (*Store)(nil)
	_ repository.PackageRepository   = (*Store)(nil)
	_ repository.StatementRepository = (*Store)(nil)
)

// CreateUser inserts an identity record.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrConflict
		}
	}
	s.users[user.ID] = *user
	return nil
}

// GetUserByID retrieves a user by identifier.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateUserProfile persists the editable profile fields.
func (s *Store) UpdateUserProfile(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Name = user.Name
	existing.CompanyName = user.CompanyName
	existing.QBOName = user.QBOName
	existing.Phone = user.Phone
	existing.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = existing
	user.UpdatedAt = existing.UpdatedAt
	return nil
}

// ListClientSummaries aggregates statement counts and latest activity per client.
func (s *Store) ListClientSummaries(ctx context.Context) ([]domain.ClientSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.ClientSummary, 0)
	for _, user := range s.users {
		if user.Role != domain.RoleClient {
			continue
		}
		summary := domain.ClientSummary{
			ID:          user.ID,
			Name:        user.Name,
			Email:       user.Email,
			CompanyName: user.CompanyName,
		}
		var latest *domain.MonthlyPackage
		for _, pkg := range s.packages {
			if pkg.UserID != user.ID {
				continue
			}
			p := pkg
			summary.StatementCount += s.countStatements(pkg.ID)
			if latest == nil || p.Year > latest.Year || (p.Year == latest.Year && p.Month > latest.Month) {
				latest = &p
			}
			if summary.LatestActivity == nil || pkg.CreatedAt.After(*summary.LatestActivity) {
				created := pkg.CreatedAt
				summary.LatestActivity = &created
			}
		}
		if latest != nil {
			summary.LatestPackageStatus = latest.Status
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LatestActivity, summaries[j].LatestActivity
		if a == nil && b == nil {
			return false
		}
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
	return summaries, nil
}

func (s *Store) countStatements(packageID string) int {
	count := 0
	for _, stmt := range s.statements {
		if stmt.MonthlyPackageID == packageID {
			count++
		}
	}
	return count
}

// CreatePackage inserts a monthly package, enforcing (user, month, year) uniqueness.
func (s *Store) CreatePackage(ctx context.Context, pkg *domain.MonthlyPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[pkg.UserID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range s.packages {
		if existing.UserID == pkg.UserID && existing.Month == pkg.Month && existing.Year == pkg.Year {
			return repository.ErrConflict
		}
	}
	s.packages[pkg.ID] = *pkg
	return nil
}

// GetPackageForUser fetches a package only when it belongs to the given user.
func (s *Store) GetPackageForUser(ctx context.Context, packageID, userID string) (*domain.MonthlyPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, ok := s.packages[packageID]
	if !ok || pkg.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &pkg, nil
}

// FindPackageByMonth locates a user's package for one calendar month.
func (s *Store) FindPackageByMonth(ctx context.Context, userID string, month, year int) (*domain.MonthlyPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pkg := range s.packages {
		if pkg.UserID == userID && pkg.Month == month && pkg.Year == year {
			p := pkg
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListPackagesForUser returns package summaries ordered newest first.
func (s *Store) ListPackagesForUser(ctx context.Context, userID string) ([]domain.PackageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.PackageSummary, 0)
	for _, pkg := range s.packages {
		if pkg.UserID != userID {
			continue
		}
		summaries = append(summaries, domain.PackageSummary{
			ID:             pkg.ID,
			Month:          pkg.Month,
			Year:           pkg.Year,
			Status:         pkg.Status,
			StatementCount: s.countStatements(pkg.ID),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Year != summaries[j].Year {
			return summaries[i].Year > summaries[j].Year
		}
		return summaries[i].Month > summaries[j].Month
	})
	return summaries, nil
}

// SetPackageStatus overwrites a package's lifecycle status.
func (s *Store) SetPackageStatus(ctx context.Context, packageID string, status domain.PackageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[packageID]
	if !ok {
		return repository.ErrNotFound
	}
	pkg.Status = status
	s.packages[packageID] = pkg
	return nil
}

// MarkPackageSubmitted advances a package to categorizing and stamps submission time.
func (s *Store) MarkPackageSubmitted(ctx context.Context, packageID string, submittedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[packageID]
	if !ok {
		return repository.ErrNotFound
	}
	pkg.Status = domain.StatusCategorizing
	pkg.SubmittedAt = &submittedAt
	s.packages[packageID] = pkg
	return nil
}

// CreateStatement inserts uploaded statement metadata.
func (s *Store) CreateStatement(ctx context.Context, stmt *domain.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[stmt.MonthlyPackageID]; !ok {
		return repository.ErrNotFound
	}
	s.statements[stmt.ID] = *stmt
	return nil
}

// GetStatement fetches a statement scoped to its owning package.
func (s *Store) GetStatement(ctx context.Context, statementID, packageID string) (*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stmt, ok := s.statements[statementID]
	if !ok || stmt.MonthlyPackageID != packageID {
		return nil, repository.ErrNotFound
	}
	return &stmt, nil
}

// ListStatementsByPackage returns a package's statements in upload order.
func (s *Store) ListStatementsByPackage(ctx context.Context, packageID string) ([]domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statements := make([]domain.Statement, 0)
	for _, stmt := range s.statements {
		if stmt.MonthlyPackageID == packageID {
			statements = append(statements, stmt)
		}
	}
	sort.Slice(statements, func(i, j int) bool {
		return statements[i].UploadedAt.Before(statements[j].UploadedAt)
	})
	return statements, nil
}

// DeleteStatement removes a statement row.
func (s *Store) DeleteStatement(ctx context.Context, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statements[statementID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.statements, statementID)
	return nil
}

// ListInstitutionsForUser returns the distinct institution names across a
// user's uploaded statements.
func (s *Store) ListInstitutionsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, stmt := range s.statements {
		pkg, ok := s.packages[stmt.MonthlyPackageID]
		if !ok || pkg.UserID != userID {
			continue
		}
		seen[stmt.InstitutionName] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

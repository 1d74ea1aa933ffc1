package account

import (
	"context"
	"strings"

	"log/slog"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
	"github.com/mybookkeepers/portal/internal/service/auth"
)

// UpdateProfileInput holds the editable profile fields.
type UpdateProfileInput struct {
	Name        string `json:"name"`
	CompanyName string `json:"companyName"`
	QBOName     string `json:"qboName"`
	Phone       string `json:"phone"`
}

// Service manages user profiles and the bookkeeper's client roster.
type Service struct {
	users      repository.UserRepository
	statements repository.StatementRepository
	logger     *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, statements repository.StatementRepository, logger *slog.Logger) Service {
	return Service{users: users, statements: statements, logger: logger}
}

// Get returns the caller's own profile.
func (s Service) Get(ctx context.Context, caller auth.Caller) (*domain.User, error) {
	return s.users.GetUserByID(ctx, caller.ID)
}

// UpdateProfile validates and persists the caller's profile fields.
func (s Service) UpdateProfile(ctx context.Context, caller auth.Caller, input UpdateProfileInput) (*domain.User, error) {
	if err := validateProfile(input); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	user.Name = strings.TrimSpace(input.Name)
	user.CompanyName = strings.TrimSpace(input.CompanyName)
	user.QBOName = strings.TrimSpace(input.QBOName)
	user.Phone = strings.TrimSpace(input.Phone)
	if err := s.users.UpdateUserProfile(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", "user_id", user.ID)
	return user, nil
}

func validateProfile(input UpdateProfileInput) error {
	fields := make(map[string]string)
	name := strings.TrimSpace(input.Name)
	if name == "" {
		fields["name"] = "Name is required"
	} else if len(name) > 100 {
		fields["name"] = "Name must be at most 100 characters"
	}
	company := strings.TrimSpace(input.CompanyName)
	if company == "" {
		fields["companyName"] = "Company name is required"
	} else if len(company) > 200 {
		fields["companyName"] = "Company name must be at most 200 characters"
	}
	if len(strings.TrimSpace(input.QBOName)) > 200 {
		fields["qboName"] = "QBO name must be at most 200 characters"
	}
	if len(strings.TrimSpace(input.Phone)) > 20 {
		fields["phone"] = "Phone must be at most 20 characters"
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

// Institutions returns the distinct institution names across the caller's
// own statements, ascending.
func (s Service) Institutions(ctx context.Context, caller auth.Caller) ([]string, error) {
	return s.statements.ListInstitutionsForUser(ctx, caller.ID)
}

// Client roster filters. no_uploads and incomplete are synthetic; any
// other non-empty value is matched against the latest package status.
const (
	FilterNoUploads  = "no_uploads"
	FilterIncomplete = "incomplete"
)

// ListClients returns client summaries matching the search text and filter,
// ordered by most recent activity.
func (s Service) ListClients(ctx context.Context, search, filter string) ([]domain.ClientSummary, error) {
	summaries, err := s.users.ListClientSummaries(ctx)
	if err != nil {
		return nil, err
	}

	search = strings.ToLower(strings.TrimSpace(search))
	filter = strings.TrimSpace(filter)

	result := make([]domain.ClientSummary, 0, len(summaries))
	for _, c := range summaries {
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		if filter != "" && !matchesFilter(c, filter) {
			continue
		}
		result = append(result, c)
	}
	return result, nil
}

func matchesSearch(c domain.ClientSummary, search string) bool {
	return strings.Contains(strings.ToLower(c.Name), search) ||
		strings.Contains(strings.ToLower(c.Email), search) ||
		strings.Contains(strings.ToLower(c.CompanyName), search)
}

func matchesFilter(c domain.ClientSummary, filter string) bool {
	switch filter {
	case FilterNoUploads:
		return c.StatementCount == 0
	case FilterIncomplete:
		return c.LatestPackageStatus == domain.StatusNeedStatements
	default:
		return string(c.LatestPackageStatus) == filter
	}
}

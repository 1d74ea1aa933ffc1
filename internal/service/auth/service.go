package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
	jwtpkg "github.com/mybookkeepers/portal/pkg/jwt"
)

// Caller is the authenticated identity resolved once per request and
// passed explicitly into every operation.
type Caller struct {
	ID    string
	Role  domain.Role
	Email string
}

// IsBookkeeper reports whether the caller holds the bookkeeper role.
func (c Caller) IsBookkeeper() bool {
	return c.Role == domain.RoleBookkeeper
}

// Service resolves session tokens into callers, provisioning identity
// records on first successful authentication.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	secret string
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, secret string) Service {
	return Service{users: users, logger: logger, secret: secret}
}

var errTokenRequired = errors.New("token required")

// Authorize validates a session token and returns the caller. Unknown
// user ids are provisioned from the token claims.
func (s Service) Authorize(ctx context.Context, token string) (Caller, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Caller{}, errTokenRequired
	}
	claims, err := jwtpkg.Parse(trimmed, s.secret)
	if err != nil {
		return Caller{}, err
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.provision(ctx, claims)
	}
	if err != nil {
		return Caller{}, err
	}
	return Caller{ID: user.ID, Role: user.Role, Email: user.Email}, nil
}

// provision creates the identity record on first login. A concurrent
// first login for the same email is treated as already provisioned.
func (s Service) provision(ctx context.Context, claims *jwtpkg.Claims) (*domain.User, error) {
	role := domain.Role(claims.Role)
	if role != domain.RoleClient && role != domain.RoleBookkeeper {
		role = domain.RoleClient
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:        claims.UserID,
		Email:     claims.Email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.users.GetUserByEmail(ctx, claims.Email)
		}
		return nil, err
	}
	s.logger.Info("user provisioned", "user_id", user.ID, "role", string(user.Role))
	return user, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository      = (*Repository)(nil)
	_ repository.PackageRepository   = (*Repository)(nil)
	_ repository.StatementRepository = (*Repository)(nil)
)

// CreateUser inserts an identity record.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, name, company_name, qbo_name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		nilIfEmpty(user.Name),
		nilIfEmpty(user.CompanyName),
		nilIfEmpty(user.QBOName),
		nilIfEmpty(user.Phone),
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)
	return mapPgError(err)
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, name, company_name, qbo_name, phone, role, created_at, updated_at
		FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, name, company_name, qbo_name, phone, role, created_at, updated_at
		FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u       domain.User
		name    sql.NullString
		company sql.NullString
		qbo     sql.NullString
		phone   sql.NullString
		role    string
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &company, &qbo, &phone, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Name = name.String
	u.CompanyName = company.String
	u.QBOName = qbo.String
	u.Phone = phone.String
	u.Role = domain.Role(role)
	return &u, nil
}

// UpdateUserProfile persists the editable profile fields.
func (r *Repository) UpdateUserProfile(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users
		SET name = $2, company_name = $3, qbo_name = $4, phone = $5, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	row := r.pool.QueryRow(ctx, query,
		user.ID,
		nilIfEmpty(user.Name),
		nilIfEmpty(user.CompanyName),
		nilIfEmpty(user.QBOName),
		nilIfEmpty(user.Phone),
	)
	var updatedAt time.Time
	if err := row.Scan(&updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return mapPgError(err)
	}
	user.UpdatedAt = updatedAt
	return nil
}

// ListClientSummaries aggregates statement counts and latest activity per client.
func (r *Repository) ListClientSummaries(ctx context.Context) ([]domain.ClientSummary, error) {
	const query = `SELECT u.id, u.name, u.email, u.company_name,
			COUNT(s.id) AS statement_count,
			MAX(mp.created_at) AS latest_activity
		FROM users u
		LEFT JOIN monthly_packages mp ON mp.user_id = u.id
		LEFT JOIN statements s ON s.monthly_package_id = mp.id
		WHERE u.role = 'client'
		GROUP BY u.id
		ORDER BY MAX(mp.created_at) DESC NULLS LAST`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.ClientSummary, 0)
	for rows.Next() {
		var (
			c        domain.ClientSummary
			name     sql.NullString
			company  sql.NullString
			activity sql.NullTime
		)
		if err := rows.Scan(&c.ID, &name, &c.Email, &company, &c.StatementCount, &activity); err != nil {
			return nil, err
		}
		c.Name = name.String
		c.CompanyName = company.String
		if activity.Valid {
			value := activity.Time.UTC()
			c.LatestActivity = &value
		}
		summaries = append(summaries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statuses, err := r.latestPackageStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].LatestPackageStatus = statuses[summaries[i].ID]
	}
	return summaries, nil
}

// latestPackageStatuses returns the status of each user's most recent package.
func (r *Repository) latestPackageStatuses(ctx context.Context) (map[string]domain.PackageStatus, error) {
	const query = `SELECT DISTINCT ON (user_id) user_id, status
		FROM monthly_packages
		ORDER BY user_id, year DESC, month DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]domain.PackageStatus)
	for rows.Next() {
		var userID, status string
		if err := rows.Scan(&userID, &status); err != nil {
			return nil, err
		}
		statuses[userID] = domain.PackageStatus(status)
	}
	return statuses, rows.Err()
}

// CreatePackage inserts a monthly package. A duplicate (user, month, year)
// surfaces as ErrConflict.
func (r *Repository) CreatePackage(ctx context.Context, pkg *domain.MonthlyPackage) error {
	const query = `INSERT INTO monthly_packages (id, user_id, month, year, status, submitted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		pkg.ID,
		pkg.UserID,
		pkg.Month,
		pkg.Year,
		string(pkg.Status),
		pkg.SubmittedAt,
		pkg.CreatedAt,
	)
	return mapPgError(err)
}

// GetPackageForUser fetches a package only when it belongs to the given user.
func (r *Repository) GetPackageForUser(ctx context.Context, packageID, userID string) (*domain.MonthlyPackage, error) {
	const query = `SELECT id, user_id, month, year, status, submitted_at, created_at
		FROM monthly_packages WHERE id = $1 AND user_id = $2`
	return r.scanPackage(r.pool.QueryRow(ctx, query, packageID, userID))
}

// FindPackageByMonth locates a user's package for one calendar month.
func (r *Repository) FindPackageByMonth(ctx context.Context, userID string, month, year int) (*domain.MonthlyPackage, error) {
	const query = `SELECT id, user_id, month, year, status, submitted_at, created_at
		FROM monthly_packages WHERE user_id = $1 AND month = $2 AND year = $3`
	return r.scanPackage(r.pool.QueryRow(ctx, query, userID, month, year))
}

func (r *Repository) scanPackage(row pgx.Row) (*domain.MonthlyPackage, error) {
	var (
		p           domain.MonthlyPackage
		status      string
		submittedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Month, &p.Year, &status, &submittedAt, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	p.Status = domain.PackageStatus(status)
	if submittedAt.Valid {
		value := submittedAt.Time.UTC()
		p.SubmittedAt = &value
	}
	return &p, nil
}

// ListPackagesForUser returns package summaries ordered newest first.
func (r *Repository) ListPackagesForUser(ctx context.Context, userID string) ([]domain.PackageSummary, error) {
	const query = `SELECT mp.id, mp.month, mp.year, mp.status, COUNT(s.id)
		FROM monthly_packages mp
		LEFT JOIN statements s ON s.monthly_package_id = mp.id
		WHERE mp.user_id = $1
		GROUP BY mp.id
		ORDER BY mp.year DESC, mp.month DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.PackageSummary, 0)
	for rows.Next() {
		var (
			s      domain.PackageSummary
			status string
		)
		if err := rows.Scan(&s.ID, &s.Month, &s.Year, &status, &s.StatementCount); err != nil {
			return nil, err
		}
		s.Status = domain.PackageStatus(status)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// SetPackageStatus overwrites a package's lifecycle status.
func (r *Repository) SetPackageStatus(ctx context.Context, packageID string, status domain.PackageStatus) error {
	const query = `UPDATE monthly_packages SET status = $2 WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, packageID, string(status))
	if err != nil {
		return mapPgError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkPackageSubmitted advances a package to categorizing and stamps submission time.
func (r *Repository) MarkPackageSubmitted(ctx context.Context, packageID string, submittedAt time.Time) error {
	const query = `UPDATE monthly_packages SET status = 'categorizing', submitted_at = $2 WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, packageID, submittedAt)
	if err != nil {
		return mapPgError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateStatement inserts uploaded statement metadata.
func (r *Repository) CreateStatement(ctx context.Context, stmt *domain.Statement) error {
	const query = `INSERT INTO statements (id, monthly_package_id, institution_name, account_last4, institution_type, file_url, file_name, file_size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		stmt.ID,
		stmt.MonthlyPackageID,
		stmt.InstitutionName,
		stmt.AccountLast4,
		string(stmt.InstitutionType),
		stmt.FileURL,
		stmt.FileName,
		stmt.FileSize,
		stmt.UploadedAt,
	)
	return mapPgError(err)
}

// GetStatement fetches a statement scoped to its owning package.
func (r *Repository) GetStatement(ctx context.Context, statementID, packageID string) (*domain.Statement, error) {
	const query = `SELECT id, monthly_package_id, institution_name, account_last4, institution_type, file_url, file_name, file_size, uploaded_at
		FROM statements WHERE id = $1 AND monthly_package_id = $2`
	row := r.pool.QueryRow(ctx, query, statementID, packageID)
	var (
		s        domain.Statement
		instType string
	)
	if err := row.Scan(&s.ID, &s.MonthlyPackageID, &s.InstitutionName, &s.AccountLast4, &instType, &s.FileURL, &s.FileName, &s.FileSize, &s.UploadedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	s.InstitutionType = domain.InstitutionType(instType)
	return &s, nil
}

// ListStatementsByPackage returns a package's statements in upload order.
func (r *Repository) ListStatementsByPackage(ctx context.Context, packageID string) ([]domain.Statement, error) {
	const query = `SELECT id, monthly_package_id, institution_name, account_last4, institution_type, file_url, file_name, file_size, uploaded_at
		FROM statements WHERE monthly_package_id = $1 ORDER BY uploaded_at ASC`
	rows, err := r.pool.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statements := make([]domain.Statement, 0)
	for rows.Next() {
		var (
			s        domain.Statement
			instType string
		)
		if err := rows.Scan(&s.ID, &s.MonthlyPackageID, &s.InstitutionName, &s.AccountLast4, &instType, &s.FileURL, &s.FileName, &s.FileSize, &s.UploadedAt); err != nil {
			return nil, err
		}
		s.InstitutionType = domain.InstitutionType(instType)
		statements = append(statements, s)
	}
	return statements, rows.Err()
}

// DeleteStatement removes a statement row.
func (r *Repository) DeleteStatement(ctx context.Context, statementID string) error {
	const query = `DELETE FROM statements WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, statementID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListInstitutionsForUser returns the distinct institution names across a
// user's uploaded statements.
func (r *Repository) ListInstitutionsForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT DISTINCT s.institution_name
		FROM statements s
		INNER JOIN monthly_packages mp ON mp.id = s.monthly_package_id
		WHERE mp.user_id = $1
		ORDER BY s.institution_name ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrConflict
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

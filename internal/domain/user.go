package domain

import "time"

// Role distinguishes the two user classes served by the portal.
type Role string

const (
	RoleClient     Role = "client"
	RoleBookkeeper Role = "bookkeeper"
)

// User is an identity record provisioned on first successful authentication.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	CompanyName string    `json:"companyName"`
	QBOName     string    `json:"qboName"`
	Phone       string    `json:"phone"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OnboardingComplete reports whether the client has filled in the
// profile fields required before using the dashboard.
func (u User) OnboardingComplete() bool {
	return u.Name != "" && u.CompanyName != ""
}

// ClientSummary is a bookkeeper-facing roll-up of one client's activity.
type ClientSummary struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Email               string        `json:"email"`
	CompanyName         string        `json:"companyName"`
	StatementCount      int           `json:"statementCount"`
	LatestPackageStatus PackageStatus `json:"latestPackageStatus,omitempty"`
	LatestActivity      *time.Time    `json:"latestActivity"`
}

package domain

import "time"

// PackageStatus is the lifecycle state of a MonthlyPackage.
type PackageStatus string

const (
	StatusNeedStatements PackageStatus = "need_statements"
	StatusCategorizing   PackageStatus = "categorizing"
	StatusCategorized    PackageStatus = "categorized"
	StatusReconciling    PackageStatus = "reconciling"
	StatusReconciled     PackageStatus = "reconciled"
	StatusFinished       PackageStatus = "finished"
)

// PackageStatuses lists every lifecycle state in workflow order.
var PackageStatuses = []PackageStatus{
	StatusNeedStatements,
	StatusCategorizing,
	StatusCategorized,
	StatusReconciling,
	StatusReconciled,
	StatusFinished,
}

// ValidPackageStatus reports whether s names a known lifecycle state.
func ValidPackageStatus(s PackageStatus) bool {
	for _, known := range PackageStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// MonthlyPackage is the unit of work for one client for one calendar month.
// (UserID, Month, Year) is unique per client.
type MonthlyPackage struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Month       int           `json:"month"`
	Year        int           `json:"year"`
	Status      PackageStatus `json:"status"`
	SubmittedAt *time.Time    `json:"submittedAt"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// PackageSummary is the list-view shape of a package.
type PackageSummary struct {
	ID             string        `json:"id"`
	Month          int           `json:"month"`
	Year           int           `json:"year"`
	Status         PackageStatus `json:"status"`
	StatementCount int           `json:"statementCount"`
}

// MonthName returns the full English month name for a 1-based index,
// or the empty string when out of range.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthNames[month-1]
}

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

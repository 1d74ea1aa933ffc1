package domain

import "time"

// InstitutionType classifies the account a statement belongs to.
type InstitutionType string

const (
	InstitutionBank       InstitutionType = "bank"
	InstitutionCreditCard InstitutionType = "credit_card"
	InstitutionLoan       InstitutionType = "loan"
	InstitutionOther      InstitutionType = "other"
)

// ValidInstitutionType reports whether t names a known institution type.
func ValidInstitutionType(t InstitutionType) bool {
	switch t {
	case InstitutionBank, InstitutionCreditCard, InstitutionLoan, InstitutionOther:
		return true
	}
	return false
}

// Statement is one uploaded financial document. Statements are mutable
// only while the owning package is still collecting them.
type Statement struct {
	ID               string          `json:"id"`
	MonthlyPackageID string          `json:"monthlyPackageId"`
	InstitutionName  string          `json:"institutionName"`
	AccountLast4     string          `json:"accountLast4"`
	InstitutionType  InstitutionType `json:"institutionType"`
	FileURL          string          `json:"fileUrl"`
	FileName         string          `json:"fileName"`
	FileSize         int64           `json:"fileSize"`
	UploadedAt       time.Time       `json:"uploadedAt"`
}

package domain

import (
	"encoding/json"
)

// Field names a tracked attribute of an applicant record. The value doubles
// as the prefix of every flag raised for that attribute.
type Field string

const (
	FieldEmail               Field = "email"
	FieldSSN                 Field = "ssn"
	FieldIPAddress           Field = "ip_address"
	FieldGender              Field = "gender"
	FieldDateOfBirth         Field = "date_of_birth"
	FieldAnnualIncome        Field = "annual_income"
	FieldSavingsBalance      Field = "savings_balance"
	FieldDebtToIncome        Field = "debt_to_income"
	FieldCreditHistoryMonths Field = "credit_history_months"
)

type Applicant struct {
	FullName    *string `json:"full_name"`
	Email       *string `json:"email"`
	SSN         *string `json:"ssn"`
	IPAddress   *string `json:"ip_address"`
	Gender      *string `json:"gender"`
	DateOfBirth *string `json:"date_of_birth"`
	ZipCode     *Code   `json:"zip_code,omitempty"`
	Age         *int    `json:"age,omitempty"`
}

type Financials struct {
	AnnualIncome        *Number `json:"annual_income"`
	AnnualSalary        *Number `json:"annual_salary,omitempty"`
	CreditHistoryMonths *Number `json:"credit_history_months"`
	DebtToIncome        *Number `json:"debt_to_income"`
	SavingsBalance      *Number `json:"savings_balance"`
}

type Spend struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

type Decision struct {
	LoanApproved    *bool   `json:"loan_approved,omitempty"`
	ApprovedAmount  *Number `json:"approved_amount,omitempty"`
	InterestRate    *Number `json:"interest_rate,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
}

// Record is one credit application. Flags is empty on raw input and carries
// every data-quality flag raised by a cleaning pass.
type Record struct {
	ID                  string     `json:"_id"`
	Applicant           Applicant  `json:"applicant_info"`
	Financials          Financials `json:"financials"`
	Spending            []Spend    `json:"spending_behavior,omitempty"`
	Decision            *Decision  `json:"decision,omitempty"`
	LoanPurpose         *string    `json:"loan_purpose,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	ProcessingTimestamp *string    `json:"processing_timestamp,omitempty"`
	Flags               FlagSet    `json:"flags,omitempty"`
}

// RawRecord is an input record as read: its position in the source, the
// exact bytes it was decoded from, and the decoded value.
type RawRecord struct {
	Index  int
	Bytes  json.RawMessage
	Record Record
}

// StringField returns the address of a text-valued tracked field, or nil
// when f is not one.
func (r *Record) StringField(f Field) **string {
	switch f {
	case FieldEmail:
		return &r.Applicant.Email
	case FieldSSN:
		return &r.Applicant.SSN
	case FieldIPAddress:
		return &r.Applicant.IPAddress
	case FieldGender:
		return &r.Applicant.Gender
	case FieldDateOfBirth:
		return &r.Applicant.DateOfBirth
	}
	return nil
}

// NumberField returns the address of a numeric tracked field, or nil when f
// is not one.
func (r *Record) NumberField(f Field) **Number {
	switch f {
	case FieldAnnualIncome:
		return &r.Financials.AnnualIncome
	case FieldSavingsBalance:
		return &r.Financials.SavingsBalance
	case FieldDebtToIncome:
		return &r.Financials.DebtToIncome
	case FieldCreditHistoryMonths:
		return &r.Financials.CreditHistoryMonths
	}
	return nil
}

// Clone returns a deep copy; cleaning never writes through to the raw
// snapshot.
func (r Record) Clone() Record {
	out := r
	out.Applicant = Applicant{
		FullName:    cloneString(r.Applicant.FullName),
		Email:       cloneString(r.Applicant.Email),
		SSN:         cloneString(r.Applicant.SSN),
		IPAddress:   cloneString(r.Applicant.IPAddress),
		Gender:      cloneString(r.Applicant.Gender),
		DateOfBirth: cloneString(r.Applicant.DateOfBirth),
	}
	if r.Applicant.ZipCode != nil {
		z := *r.Applicant.ZipCode
		out.Applicant.ZipCode = &z
	}
	if r.Applicant.Age != nil {
		a := *r.Applicant.Age
		out.Applicant.Age = &a
	}
	out.Financials = Financials{
		AnnualIncome:        r.Financials.AnnualIncome.Clone(),
		AnnualSalary:        r.Financials.AnnualSalary.Clone(),
		CreditHistoryMonths: r.Financials.CreditHistoryMonths.Clone(),
		DebtToIncome:        r.Financials.DebtToIncome.Clone(),
		SavingsBalance:      r.Financials.SavingsBalance.Clone(),
	}
	if r.Spending != nil {
		out.Spending = append([]Spend(nil), r.Spending...)
	}
	if r.Decision != nil {
		d := Decision{
			ApprovedAmount:  r.Decision.ApprovedAmount.Clone(),
			InterestRate:    r.Decision.InterestRate.Clone(),
			RejectionReason: cloneString(r.Decision.RejectionReason),
		}
		if r.Decision.LoanApproved != nil {
			v := *r.Decision.LoanApproved
			d.LoanApproved = &v
		}
		out.Decision = &d
	}
	out.LoanPurpose = cloneString(r.LoanPurpose)
	out.Notes = cloneString(r.Notes)
	out.ProcessingTimestamp = cloneString(r.ProcessingTimestamp)
	out.Flags = r.Flags.Clone()
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Ptr is a small helper for building records in code and tests.
func Ptr[T any](v T) *T { return &v }

package clean

import (
	"novacred-engine/internal/domain"
)

// Category groups tracked fields by how they may be treated.
type Category string

const (
	CategoryPII       Category = "pii"
	CategoryIdentity  Category = "identity"
	CategoryFinancial Category = "financial"
	CategoryHistory   Category = "history"
)

// Strategy is what happens to a missing value after it has been flagged.
type Strategy int

const (
	// StrategySkip leaves the value null.
	StrategySkip Strategy = iota
	// StrategyMedian fills with the column median of the raw snapshot.
	StrategyMedian
	// StrategyDerive computes a dependent value (age from date of birth).
	StrategyDerive
	// StrategyZero fills with 0 as a policy assumption.
	StrategyZero
)

func (s Strategy) String() string {
	switch s {
	case StrategySkip:
		return "skip"
	case StrategyMedian:
		return "median"
	case StrategyDerive:
		return "derive"
	case StrategyZero:
		return "zero"
	}
	return "unknown"
}

type FieldRule struct {
	Field    domain.Field
	Category Category
	Strategy Strategy
}

// FieldRules is the missing-value policy, applied in this order. Identity
// data is never imputed.
var FieldRules = []FieldRule{
	{Field: domain.FieldEmail, Category: CategoryPII, Strategy: StrategySkip},
	{Field: domain.FieldSSN, Category: CategoryPII, Strategy: StrategySkip},
	{Field: domain.FieldIPAddress, Category: CategoryPII, Strategy: StrategySkip},
	{Field: domain.FieldGender, Category: CategoryIdentity, Strategy: StrategySkip},
	{Field: domain.FieldDateOfBirth, Category: CategoryIdentity, Strategy: StrategyDerive},
	{Field: domain.FieldAnnualIncome, Category: CategoryFinancial, Strategy: StrategyMedian},
	{Field: domain.FieldSavingsBalance, Category: CategoryFinancial, Strategy: StrategyMedian},
	{Field: domain.FieldDebtToIncome, Category: CategoryFinancial, Strategy: StrategyMedian},
	{Field: domain.FieldCreditHistoryMonths, Category: CategoryHistory, Strategy: StrategyZero},
}

func isNumeric(f domain.Field) bool {
	var r domain.Record
	return r.NumberField(f) != nil
}

// FlagColumns lists every flag a pass can raise, in the column order used
// by tabular artifacts. The email validity flag is rendered separately as
// email_valid.
func FlagColumns() []domain.Flag {
	var out []domain.Flag
	for _, fr := range FieldRules {
		out = append(out, domain.MissingFlag(fr.Field))
	}
	for _, fr := range FieldRules {
		if isNumeric(fr.Field) {
			out = append(out, domain.UnparseableFlag(fr.Field), domain.InvalidFlag(fr.Field))
		}
	}
	return append(out,
		domain.FlagDOBUnparseable,
		domain.FlagSSNFormatInvalid,
		domain.FlagSSNConflictRetained,
		domain.FlagAgeOutOfRange,
		domain.FlagCreditImpossible,
		domain.FlagGenderExcluded,
		domain.FlagSavingsZero,
		domain.FlagCreditOutlier,
	)
}

// EmailInvalidFlag is raised when an email fails the structural check.
var EmailInvalidFlag = domain.InvalidFlag(domain.FieldEmail)

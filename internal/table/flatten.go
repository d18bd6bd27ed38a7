package table

import (
	"sort"
	"strconv"
	"strings"

	"novacred-engine/internal/clean"
	"novacred-engine/internal/domain"
)

// Null cells are written as the empty string.
const null = ""

var valueColumns = []string{
	"_id",
	"applicant_info_full_name",
	"applicant_info_email",
	"applicant_info_ssn",
	"applicant_info_ip_address",
	"applicant_info_gender",
	"applicant_info_date_of_birth",
	"applicant_info_zip_code",
	"applicant_info_age",
	"financials_annual_income",
	"financials_annual_salary",
	"financials_credit_history_months",
	"financials_debt_to_income",
	"financials_savings_balance",
	"loan_purpose",
	"notes",
	"processing_timestamp",
	"decision_loan_approved",
	"decision_approved_amount",
	"decision_interest_rate",
	"decision_rejection_reason",
}

// numberText picks how numeric cells are rendered.
type numberText func(*domain.Number) string

func cleaned(n *domain.Number) string  { return n.String() }
func original(n *domain.Number) string { return n.Source() }

func values(r domain.Record, num numberText) []string {
	out := []string{
		r.ID,
		text(r.Applicant.FullName),
		text(r.Applicant.Email),
		text(r.Applicant.SSN),
		text(r.Applicant.IPAddress),
		text(r.Applicant.Gender),
		text(r.Applicant.DateOfBirth),
		null,
		null,
		num(r.Financials.AnnualIncome),
		num(r.Financials.AnnualSalary),
		num(r.Financials.CreditHistoryMonths),
		num(r.Financials.DebtToIncome),
		num(r.Financials.SavingsBalance),
		text(r.LoanPurpose),
		text(r.Notes),
		text(r.ProcessingTimestamp),
		null, null, null, null,
	}
	if z := r.Applicant.ZipCode; z != nil {
		out[7] = string(*z)
	}
	if a := r.Applicant.Age; a != nil {
		out[8] = strconv.Itoa(*a)
	}
	if d := r.Decision; d != nil {
		if d.LoanApproved != nil {
			out[17] = strconv.FormatBool(*d.LoanApproved)
		}
		out[18] = num(d.ApprovedAmount)
		out[19] = num(d.InterestRate)
		out[20] = text(d.RejectionReason)
	}
	return out
}

func text(s *string) string {
	if s == nil {
		return null
	}
	return *s
}

// SpendCategories is the sorted union of spending categories, lowercased.
func SpendCategories(recs []domain.Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range recs {
		for _, s := range r.Spending {
			c := strings.ToLower(strings.TrimSpace(s.Category))
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// spend pivots a record's spending list onto cats. Absent categories are 0;
// a repeated category keeps its last amount.
func spend(r domain.Record, cats []string) []string {
	amounts := map[string]float64{}
	for _, s := range r.Spending {
		amounts[strings.ToLower(strings.TrimSpace(s.Category))] = s.Amount
	}
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = domain.FormatFloat(amounts[c])
	}
	return out
}

func spendHeader(cats []string) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = "spend_" + c
	}
	return out
}

// emailValid renders clean.EmailValid, null when there was no email.
func emailValid(r domain.Record) string {
	v := clean.EmailValid(r)
	if v == nil {
		return null
	}
	return strconv.FormatBool(*v)
}

// Flatten lays cleaned records out as df_clean: value columns, the spending
// pivot, email_valid, then one boolean column per flag.
func Flatten(recs []domain.Record) (header []string, rows [][]string) {
	cats := SpendCategories(recs)
	flags := clean.FlagColumns()

	header = append(header, valueColumns...)
	header = append(header, spendHeader(cats)...)
	header = append(header, "email_valid")
	for _, f := range flags {
		header = append(header, string(f))
	}

	rows = make([][]string, 0, len(recs))
	for _, r := range recs {
		row := values(r, cleaned)
		row = append(row, spend(r, cats)...)
		row = append(row, emailValid(r))
		for _, f := range flags {
			row = append(row, strconv.FormatBool(r.Flags.Has(f)))
		}
		rows = append(rows, row)
	}
	return header, rows
}

// FlattenDropped lays dropped records out with the values they arrived with,
// numbers in their source text, followed by why each was dropped and which
// record was kept instead.
func FlattenDropped(dropped []clean.DroppedRecord) (header []string, rows [][]string) {
	recs := make([]domain.Record, len(dropped))
	for i, d := range dropped {
		recs[i] = d.Original
	}
	cats := SpendCategories(recs)

	header = append(header, valueColumns...)
	header = append(header, spendHeader(cats)...)
	header = append(header, "source_index", "drop_reason", "kept_id")

	rows = make([][]string, 0, len(dropped))
	for _, d := range dropped {
		row := values(d.Original, original)
		row = append(row, spend(d.Original, cats)...)
		row = append(row, strconv.Itoa(d.Index), d.Reason, d.KeptID)
		rows = append(rows, row)
	}
	return header, rows
}

func FlattenChanges(changes []clean.Change) (header []string, rows [][]string) {
	header = []string{"record_id", "rule", "field", "before", "after"}
	rows = make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{c.RecordID, c.Rule, c.Field, text(c.Before), text(c.After)})
	}
	return header, rows
}

package clean

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"novacred-engine/internal/domain"
)

var (
	emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	ssnShape   = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
)

// ValidEmail is a conservative structural check: one @, no whitespace
// anywhere and a dotted domain without empty labels. The top-level domain
// is at least two characters of letters, digits and inner hyphens, with at
// least one letter, so punycode labels like xn--p1ai pass.
func ValidEmail(s string) bool {
	if !emailShape.MatchString(s) {
		return false
	}
	host := s[strings.IndexByte(s, '@')+1:]
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
	}
	tld := host[strings.LastIndexByte(host, '.')+1:]
	if len(tld) < 2 {
		return false
	}
	if tld[0] == '-' || tld[len(tld)-1] == '-' {
		return false
	}
	letter := false
	for _, c := range tld {
		switch {
		case unicode.IsLetter(c):
			letter = true
		case unicode.IsDigit(c), c == '-':
		default:
			return false
		}
	}
	return letter
}

// EmailValid is the tri-state email verdict of a cleaned record: false when
// the email failed ValidEmail and was nulled, true when one is present and
// nil when the record never had one.
func EmailValid(r domain.Record) *bool {
	switch {
	case r.Flags.Has(EmailInvalidFlag):
		return domain.Ptr(false)
	case r.Applicant.Email != nil:
		return domain.Ptr(true)
	}
	return nil
}

func ValidSSN(s string) bool { return ssnShape.MatchString(s) }

// checkEmail nulls structurally invalid emails. The record stays.
func checkEmail(st *state) int {
	n := 0
	for _, r := range st.rows {
		e := r.rec.Applicant.Email
		if e == nil || ValidEmail(*e) {
			continue
		}
		r.rec.Flags.Raise(EmailInvalidFlag)
		st.change(r.rec.ID, RuleEmail, domain.FieldEmail, textCopy(e), nil)
		r.rec.Applicant.Email = nil
		n++
	}
	return n
}

// checkSSNFormat flags SSNs that are not NNN-NN-NNNN. Identity data is
// never rewritten.
func checkSSNFormat(st *state) int {
	n := 0
	for _, r := range st.rows {
		s := r.rec.Applicant.SSN
		if s == nil || ValidSSN(*s) {
			continue
		}
		if r.rec.Flags.Raise(domain.FlagSSNFormatInvalid) {
			n++
		}
	}
	return n
}

// MaxCreditMonths is the longest credit history possible at age, counted
// from adulthood and floored at zero.
func MaxCreditMonths(age, adultAge int) float64 {
	m := (age - adultAge) * 12
	if m < 0 {
		m = 0
	}
	return float64(m)
}

// capCreditHistory caps credit history at what the applicant's age allows.
// An implausible age is sent to review instead of producing a cap.
func capCreditHistory(st *state) int {
	n := 0
	for _, r := range st.rows {
		a := r.rec.Applicant
		if a.Age == nil || a.DateOfBirth == nil {
			continue
		}
		age := *a.Age
		if age < st.opts.MinAge || age > st.opts.MaxAge {
			if r.rec.Flags.Raise(domain.FlagAgeOutOfRange) {
				n++
			}
			st.res.Review = append(st.res.Review, ReviewItem{
				RecordID: r.rec.ID,
				Field:    "age",
				Value:    fmt.Sprint(age),
				Reason:   fmt.Sprintf("age outside %d..%d (date_of_birth %s)", st.opts.MinAge, st.opts.MaxAge, *a.DateOfBirth),
			})
			continue
		}

		p := &r.rec.Financials.CreditHistoryMonths
		v, ok := (*p).Float()
		limit := MaxCreditMonths(age, st.opts.AdultAge)
		if !ok || v <= limit {
			continue
		}
		r.rec.Flags.Raise(domain.FlagCreditImpossible)
		before := numText(*p)
		*p = domain.NewNumber(limit)
		st.change(r.rec.ID, RuleRangeBound, domain.FieldCreditHistoryMonths, before, numText(*p))
		n++
	}
	return n
}

// IsBinaryGender reports whether g belongs to the two-category partition
// required by metrics such as the disparate-impact ratio.
func IsBinaryGender(g *string) bool {
	return g != nil && (*g == "Male" || *g == "Female")
}

// flagGender marks records outside the binary partition. The value itself
// is never coerced.
func flagGender(st *state) int {
	n := 0
	for _, r := range st.rows {
		if IsBinaryGender(r.rec.Applicant.Gender) {
			continue
		}
		if r.rec.Flags.Raise(domain.FlagGenderExcluded) {
			n++
		}
	}
	return n
}

// flagAnomalies annotates values that are possible but suspicious.
func flagAnomalies(st *state) int {
	n := 0
	for _, r := range st.rows {
		hit := false
		if v, ok := r.rec.Financials.SavingsBalance.Float(); ok && v == 0 {
			hit = r.rec.Flags.Raise(domain.FlagSavingsZero) || hit
		}
		if v, ok := r.rec.Financials.CreditHistoryMonths.Float(); ok && v > st.opts.CreditOutlierMonths {
			hit = r.rec.Flags.Raise(domain.FlagCreditOutlier) || hit
		}
		if hit {
			n++
		}
	}
	return n
}

type Violation struct {
	RecordID string
	Value    string
}

// FormatAudit lists malformed identity values as they appear in the raw
// snapshot.
type FormatAudit struct {
	EmailInvalid []Violation
	SSNInvalid   []Violation
}

func AuditFormats(raw []domain.RawRecord) FormatAudit {
	var out FormatAudit
	for _, r := range raw {
		a := r.Record.Applicant
		if a.Email != nil && strings.TrimSpace(*a.Email) != "" && !ValidEmail(*a.Email) {
			out.EmailInvalid = append(out.EmailInvalid, Violation{RecordID: r.Record.ID, Value: *a.Email})
		}
		if a.SSN != nil && strings.TrimSpace(*a.SSN) != "" && !ValidSSN(*a.SSN) {
			out.SSNInvalid = append(out.SSNInvalid, Violation{RecordID: r.Record.ID, Value: *a.SSN})
		}
	}
	return out
}

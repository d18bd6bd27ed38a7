package clean

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"novacred-engine/internal/domain"
)

const isoDate = "2006-01-02"

var dayMonthYear = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// ParseDOB accepts YYYY-MM-DD, YYYY/MM/DD, and the two-digit slash forms.
// For NN/NN/YYYY the US order is assumed only when the second part cannot
// be a month; otherwise day-first.
func ParseDOB(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-1-2", "2006/1/2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		second, _ := strconv.Atoi(m[2])
		layout := "02/01/2006"
		if second > 12 {
			layout = "01/02/2006"
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AgeAt is whole 365-day years between dob and ref, floored.
func AgeAt(dob, ref time.Time) int {
	days := int(ref.Sub(dob).Hours() / 24)
	age := days / 365
	if days%365 != 0 && days < 0 {
		age--
	}
	return age
}

var genderAbbrev = map[string]string{
	"m":      "Male",
	"male":   "Male",
	"f":      "Female",
	"female": "Female",
}

// normalize expands gender abbreviations and rewrites parseable dates of
// birth in ISO form. Any other gender value is left exactly as given.
func normalize(st *state) int {
	touched := 0
	for _, r := range st.rows {
		hit := false
		if g := r.rec.Applicant.Gender; g != nil {
			if canon, ok := genderAbbrev[strings.ToLower(strings.TrimSpace(*g))]; ok && canon != *g {
				st.change(r.rec.ID, RuleNormalize, domain.FieldGender, textCopy(g), &canon)
				r.rec.Applicant.Gender = &canon
				hit = true
			}
		}
		if d := r.rec.Applicant.DateOfBirth; d != nil {
			if t, ok := ParseDOB(*d); ok {
				iso := t.Format(isoDate)
				if iso != *d {
					st.change(r.rec.ID, RuleNormalize, domain.FieldDateOfBirth, textCopy(d), &iso)
					r.rec.Applicant.DateOfBirth = &iso
					hit = true
				}
			}
		}
		if hit {
			touched++
		}
	}
	return touched
}

// deriveAge sets age from the date of birth as of the reference date. Age
// stays null when the date of birth is missing or unparseable.
func deriveAge(st *state) int {
	touched := 0
	for _, r := range st.rows {
		a := &r.rec.Applicant
		var want *int
		if a.DateOfBirth != nil {
			t, ok := ParseDOB(*a.DateOfBirth)
			if !ok {
				if r.rec.Flags.Raise(domain.FlagDOBUnparseable) {
					touched++
				}
			} else {
				age := AgeAt(t, st.opts.ReferenceDate)
				want = &age
			}
		}
		if sameInt(a.Age, want) {
			continue
		}
		st.change(r.rec.ID, RuleDeriveAge, "age", intText(a.Age), intText(want))
		a.Age = want
		touched++
	}
	return touched
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intText(v *int) *string {
	if v == nil {
		return nil
	}
	s := strconv.Itoa(*v)
	return &s
}

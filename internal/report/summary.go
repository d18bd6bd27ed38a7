package report

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"novacred-engine/internal/clean"
	"novacred-engine/internal/domain"
)

type Meta struct {
	RunID         string
	InputPath     string
	InputSHA256   string
	InputCount    int
	ReferenceDate string
	// Formats lists malformed emails and SSNs as they appeared in the input.
	Formats clean.FormatAudit
}

type Count struct {
	Name  string
	Count int
}

type ColumnProfile struct {
	Column  string
	Present int
	Null    int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

type Summary struct {
	Meta
	CleanCount  int
	ChangeCount int
	Flags       []Count
	Rules       []Count
	Steps       []clean.StepCount
	Medians     []Count64
	Dropped     []clean.DroppedRecord
	Review      []clean.ReviewItem
	Profile     []ColumnProfile
}

type Count64 struct {
	Name  string
	Value float64
}

// Summarize folds a pass result into what the report shows. Flag counts
// follow the flag column order; flags that never fired are listed with 0.
func Summarize(res *clean.Result, meta Meta) Summary {
	s := Summary{
		Meta:        meta,
		CleanCount:  len(res.Clean),
		ChangeCount: len(res.Changes),
		Steps:       res.Touched,
		Dropped:     res.Dropped,
		Review:      res.Review,
		Profile:     Profile(res.Clean),
	}

	flagCounts := map[domain.Flag]int{}
	for _, r := range res.Clean {
		for _, f := range r.Flags.Sorted() {
			flagCounts[f]++
		}
	}
	cols := append(clean.FlagColumns(), clean.EmailInvalidFlag)
	for _, f := range cols {
		s.Flags = append(s.Flags, Count{Name: string(f), Count: flagCounts[f]})
	}

	ruleCounts := map[string]int{}
	var rules []string
	for _, c := range res.Changes {
		if ruleCounts[c.Rule] == 0 {
			rules = append(rules, c.Rule)
		}
		ruleCounts[c.Rule]++
	}
	for _, r := range rules {
		s.Rules = append(s.Rules, Count{Name: r, Count: ruleCounts[r]})
	}

	for f, v := range res.Medians {
		s.Medians = append(s.Medians, Count64{Name: string(f), Value: v})
	}
	sort.Slice(s.Medians, func(i, j int) bool { return s.Medians[i].Name < s.Medians[j].Name })
	return s
}

var profiled = []struct {
	column string
	value  func(domain.Record) (float64, bool)
}{
	{"applicant_info_age", func(r domain.Record) (float64, bool) {
		if r.Applicant.Age == nil {
			return 0, false
		}
		return float64(*r.Applicant.Age), true
	}},
	{"financials_annual_income", func(r domain.Record) (float64, bool) { return r.Financials.AnnualIncome.Float() }},
	{"financials_savings_balance", func(r domain.Record) (float64, bool) { return r.Financials.SavingsBalance.Float() }},
	{"financials_debt_to_income", func(r domain.Record) (float64, bool) { return r.Financials.DebtToIncome.Float() }},
	{"financials_credit_history_months", func(r domain.Record) (float64, bool) { return r.Financials.CreditHistoryMonths.Float() }},
}

// Profile describes each numeric column of the clean table.
func Profile(recs []domain.Record) []ColumnProfile {
	out := make([]ColumnProfile, 0, len(profiled))
	for _, p := range profiled {
		var xs []float64
		for _, r := range recs {
			if v, ok := p.value(r); ok {
				xs = append(xs, v)
			}
		}
		cp := ColumnProfile{Column: p.column, Present: len(xs), Null: len(recs) - len(xs)}
		if len(xs) > 0 {
			cp.Mean, cp.StdDev = stat.MeanStdDev(xs, nil)
			cp.Min = floats.Min(xs)
			cp.Max = floats.Max(xs)
		}
		if len(xs) < 2 {
			cp.StdDev = 0
		}
		out = append(out, cp)
	}
	return out
}

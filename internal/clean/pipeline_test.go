package clean

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novacred-engine/internal/domain"
	"novacred-engine/internal/ingest"
)

type fields map[string]any

// applicantJSON builds one raw record. Overrides replace applicant_info or
// financials keys; a nil override removes the key.
func applicantJSON(id string, n int, info, fin fields) map[string]any {
	ai := fields{
		"full_name":     fmt.Sprintf("Applicant %d", n),
		"email":         fmt.Sprintf("applicant%d@example.com", n),
		"ssn":           fmt.Sprintf("%03d-%02d-%04d", 100+n%800, 10+n%80, n),
		"ip_address":    fmt.Sprintf("10.0.%d.%d", n/250, n%250),
		"gender":        []string{"Male", "Female"}[n%2],
		"date_of_birth": "1985-04-12",
		"zip_code":      "10001",
	}
	fi := fields{
		"annual_income":         50000 + n*100,
		"credit_history_months": 48,
		"debt_to_income":        0.3,
		"savings_balance":       12000,
	}
	for k, v := range info {
		if v == nil {
			delete(ai, k)
			continue
		}
		ai[k] = v
	}
	for k, v := range fin {
		if v == nil {
			delete(fi, k)
			continue
		}
		fi[k] = v
	}
	return map[string]any{
		"_id":            id,
		"applicant_info": ai,
		"financials":     fi,
		"spending_behavior": []fields{
			{"category": "Groceries", "amount": 300},
		},
		"decision": fields{"loan_approved": n%3 != 0},
	}
}

func decodeRecords(t *testing.T, recs ...map[string]any) []domain.RawRecord {
	t.Helper()
	b, err := json.Marshal(recs)
	require.NoError(t, err)
	raw, err := ingest.Decode(b)
	require.NoError(t, err)
	return raw
}

func newTestPipeline(strict bool) *Pipeline {
	opts := DefaultOptions()
	opts.Strict = strict
	return New(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func findClean(t *testing.T, res *Result, id string) domain.Record {
	t.Helper()
	for _, r := range res.Clean {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("record %s not in clean output", id)
	return domain.Record{}
}

func TestRunInvalidEmailIsNulledAndRecordKept(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_203", 203, nil, nil),
		applicantJSON("app_204", 204, fields{"email": "mike johnson@gmail.com"}, nil),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, res.Clean, 2)

	rec := findClean(t, res, "app_204")
	assert.Nil(t, rec.Applicant.Email)
	assert.True(t, rec.Flags.Has(EmailInvalidFlag))
	assert.False(t, rec.Flags.Has(domain.MissingFlag(domain.FieldEmail)))
	assert.Contains(t, res.Changes, Change{
		RecordID: "app_204",
		Rule:     RuleEmail,
		Field:    "email",
		Before:   domain.Ptr("mike johnson@gmail.com"),
	})
}

func TestRunDuplicateSSNKeepsFirstOccurrence(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_001", 1, nil, nil),
		applicantJSON("app_088", 88, fields{"ssn": "780-24-9300", "full_name": "Dana Reyes"}, nil),
		applicantJSON("app_050", 50, nil, nil),
		applicantJSON("app_016", 16, fields{"ssn": "780-24-9300", "full_name": "Luis Ortega", "gender": "M", "email": ""},
			fields{"annual_income": "41,500", "savings_balance": nil}),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, res.Dropped, 1)
	d := res.Dropped[0]
	assert.Equal(t, "app_016", d.ID)
	assert.Equal(t, RuleDuplicateSSN, d.Reason)
	assert.Equal(t, "app_088", d.KeptID)
	assert.Equal(t, 3, d.Index)

	// the log keeps the record as it arrived, not as cleaning would have left it
	assert.JSONEq(t, string(raw[3].Bytes), string(d.Raw))
	assert.Equal(t, "M", *d.Original.Applicant.Gender)
	assert.Equal(t, "", *d.Original.Applicant.Email)
	assert.Equal(t, "41,500", d.Original.Financials.AnnualIncome.Raw)
	assert.Nil(t, d.Original.Financials.SavingsBalance)
	assert.Empty(t, d.Original.Flags)

	ids := make([]string, 0, len(res.Clean))
	for _, r := range res.Clean {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"app_001", "app_088", "app_050"}, ids)
	assert.True(t, findClean(t, res, "app_088").Flags.Has(domain.FlagSSNConflictRetained))
}

func TestRunMissingSSNSkipsDuplicateDetection(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_010", 10, fields{"ssn": nil}, nil),
		applicantJSON("app_011", 11, fields{"ssn": nil}, nil),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, res.Clean, 2)
	assert.Empty(t, res.Dropped)
	for _, r := range res.Clean {
		assert.True(t, r.Flags.Has(domain.MissingFlag(domain.FieldSSN)))
		assert.False(t, r.Flags.Has(domain.FlagSSNConflictRetained))
		assert.Nil(t, r.Applicant.SSN)
	}
}

func TestRunDuplicateIDDropped(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_020", 20, nil, nil),
		applicantJSON("app_020", 21, nil, nil),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, res.Clean, 1)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, RuleDuplicateID, res.Dropped[0].Reason)
	assert.Equal(t, 0, res.Dropped[0].Index, "the earlier row goes")
	assert.Equal(t, "Applicant 21", *res.Clean[0].Applicant.FullName, "the later row stays")
	assert.Empty(t, res.DroppedFor(RuleDuplicateSSN))
	assert.Len(t, res.DroppedFor(RuleDuplicateID), 1)
}

func TestRunPIIIsNeverImputed(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_030", 30, fields{"email": nil, "ssn": nil, "ip_address": nil}, nil),
		applicantJSON("app_031", 31, fields{"email": "  ", "ip_address": ""}, nil),
		applicantJSON("app_032", 32, nil, nil),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)

	for i, r := range res.Clean {
		src := raw[i].Record.Applicant
		if src.Email == nil {
			assert.Nil(t, r.Applicant.Email, r.ID)
		}
		if src.SSN == nil {
			assert.Nil(t, r.Applicant.SSN, r.ID)
		}
		if src.IPAddress == nil {
			assert.Nil(t, r.Applicant.IPAddress, r.ID)
		}
	}

	blank := findClean(t, res, "app_031")
	assert.Nil(t, blank.Applicant.Email)
	assert.Nil(t, blank.Applicant.IPAddress)
	assert.True(t, blank.Flags.Has(domain.MissingFlag(domain.FieldEmail)))
	assert.True(t, blank.Flags.Has(domain.MissingFlag(domain.FieldIPAddress)))
}

func TestRunImputesFinancialsFromRawMedian(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_040", 40, fields{"ssn": "100-10-0040"}, fields{"annual_income": 30000, "savings_balance": 100, "debt_to_income": 0.1}),
		applicantJSON("app_041", 41, nil, fields{"annual_income": "50,000", "savings_balance": 300, "debt_to_income": 0.2}),
		applicantJSON("app_042", 42, nil, fields{"annual_income": 90000, "savings_balance": -20, "debt_to_income": 0.4}),
		applicantJSON("app_043", 43, nil, fields{"annual_income": nil, "savings_balance": nil, "debt_to_income": nil, "credit_history_months": nil}),
		// dropped later as an SSN duplicate, but still part of the raw median
		applicantJSON("app_044", 44, fields{"ssn": "100-10-0040"}, fields{"annual_income": 1000000, "savings_balance": 500, "debt_to_income": 0.9}),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, res.Dropped, 1)

	assert.Equal(t, 70000.0, res.Medians[domain.FieldAnnualIncome])
	// -20 is screened out as impossible before the median is taken
	assert.Equal(t, 300.0, res.Medians[domain.FieldSavingsBalance])
	assert.InDelta(t, 0.3, res.Medians[domain.FieldDebtToIncome], 1e-9)

	rec := findClean(t, res, "app_043")
	for _, f := range []domain.Field{domain.FieldAnnualIncome, domain.FieldSavingsBalance, domain.FieldDebtToIncome, domain.FieldCreditHistoryMonths} {
		assert.True(t, rec.Flags.Has(domain.MissingFlag(f)), f)
	}
	income, _ := rec.Financials.AnnualIncome.Float()
	assert.Equal(t, 70000.0, income)
	months, _ := rec.Financials.CreditHistoryMonths.Float()
	assert.Equal(t, 0.0, months)

	neg := findClean(t, res, "app_042")
	assert.True(t, neg.Flags.Has(domain.InvalidFlag(domain.FieldSavingsBalance)))
	assert.False(t, neg.Flags.Has(domain.MissingFlag(domain.FieldSavingsBalance)))
	savings, _ := neg.Financials.SavingsBalance.Float()
	assert.Equal(t, 300.0, savings)

	coerced := findClean(t, res, "app_041")
	assert.Equal(t, "", coerced.Financials.AnnualIncome.Raw)
	assert.Contains(t, res.Changes, Change{
		RecordID: "app_041", Rule: RuleCoerce, Field: "annual_income",
		Before: domain.Ptr("50,000"), After: domain.Ptr("50000"),
	})
}

func TestRunUnparseableIncomeIsFlaggedAndImputed(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_060", 60, nil, fields{"annual_income": "about 40k"}),
		applicantJSON("app_061", 61, nil, fields{"annual_income": 40000}),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)

	rec := findClean(t, res, "app_060")
	assert.True(t, rec.Flags.Has(domain.UnparseableFlag(domain.FieldAnnualIncome)))
	assert.False(t, rec.Flags.Has(domain.MissingFlag(domain.FieldAnnualIncome)))
	v, ok := rec.Financials.AnnualIncome.Float()
	require.True(t, ok)
	assert.Equal(t, 40000.0, v)
}

func TestRunNonFiniteNumbersAreUnparseable(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_062", 62, nil, fields{"annual_income": "NaN", "savings_balance": "Infinity"}),
		applicantJSON("app_063", 63, nil, fields{"annual_income": "-Inf", "debt_to_income": "nan"}),
		applicantJSON("app_064", 64, nil, fields{"annual_income": 30000}),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 30000.0, res.Medians[domain.FieldAnnualIncome])

	for _, id := range []string{"app_062", "app_063"} {
		rec := findClean(t, res, id)
		assert.True(t, rec.Flags.Has(domain.UnparseableFlag(domain.FieldAnnualIncome)), id)
		v, ok := rec.Financials.AnnualIncome.Float()
		require.True(t, ok, id)
		assert.Equal(t, 30000.0, v, id)
	}
	assert.True(t, findClean(t, res, "app_062").Flags.Has(domain.UnparseableFlag(domain.FieldSavingsBalance)))
	assert.True(t, findClean(t, res, "app_063").Flags.Has(domain.UnparseableFlag(domain.FieldDebtToIncome)))
	assert.Contains(t, res.Changes, Change{
		RecordID: "app_062", Rule: RuleUnparseable, Field: "annual_income", Before: domain.Ptr("NaN"),
	})

	_, err = json.Marshal(res.Clean)
	require.NoError(t, err)
}

func TestRunCapsCreditHistoryToAge(t *testing.T) {
	raw := decodeRecords(t,
		// age 26 at the reference date: at most 96 months
		applicantJSON("app_070", 70, fields{"date_of_birth": "2000-01-01"}, fields{"credit_history_months": 150}),
		// age 16: no history possible
		applicantJSON("app_071", 71, fields{"date_of_birth": "2010-01-01"}, fields{"credit_history_months": 5}),
		// no date of birth: no age, no cap
		applicantJSON("app_072", 72, fields{"date_of_birth": nil}, fields{"credit_history_months": 500}),
		applicantJSON("app_073", 73, nil, fields{"credit_history_months": 130}),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)

	young := findClean(t, res, "app_070")
	require.NotNil(t, young.Applicant.Age)
	assert.Equal(t, 26, *young.Applicant.Age)
	assert.True(t, young.Flags.Has(domain.FlagCreditImpossible))
	months, _ := young.Financials.CreditHistoryMonths.Float()
	assert.Equal(t, 96.0, months)
	assert.False(t, young.Flags.Has(domain.FlagCreditOutlier))

	minor := findClean(t, res, "app_071")
	months, _ = minor.Financials.CreditHistoryMonths.Float()
	assert.Equal(t, 0.0, months)
	assert.True(t, minor.Flags.Has(domain.FlagCreditImpossible))

	noDOB := findClean(t, res, "app_072")
	assert.Nil(t, noDOB.Applicant.Age)
	assert.True(t, noDOB.Flags.Has(domain.MissingFlag(domain.FieldDateOfBirth)))
	months, _ = noDOB.Financials.CreditHistoryMonths.Float()
	assert.Equal(t, 500.0, months)
	assert.True(t, noDOB.Flags.Has(domain.FlagCreditOutlier))

	outlier := findClean(t, res, "app_073")
	assert.False(t, outlier.Flags.Has(domain.FlagCreditImpossible))
	assert.True(t, outlier.Flags.Has(domain.FlagCreditOutlier))

	for _, r := range res.Clean {
		if r.Applicant.Age == nil {
			continue
		}
		m, _ := r.Financials.CreditHistoryMonths.Float()
		assert.LessOrEqual(t, m, MaxCreditMonths(*r.Applicant.Age, 18), r.ID)
	}
}

func TestRunOutOfRangeAgeRequiresReview(t *testing.T) {
	recs := []map[string]any{
		applicantJSON("app_080", 80, fields{"date_of_birth": "2030-06-01"}, fields{"credit_history_months": 12}),
		applicantJSON("app_081", 81, fields{"date_of_birth": "1880-01-01"}, nil),
		applicantJSON("app_082", 82, nil, nil),
	}

	t.Run("strict", func(t *testing.T) {
		res, err := newTestPipeline(true).Run(context.Background(), decodeRecords(t, recs...))
		require.ErrorIs(t, err, ErrReviewRequired)

		var rerr *ReviewError
		require.ErrorAs(t, err, &rerr)
		require.Len(t, rerr.Items, 2)
		assert.Equal(t, "app_080", rerr.Items[0].RecordID)
		assert.Equal(t, "app_081", rerr.Items[1].RecordID)
		require.NotNil(t, res)
	})

	t.Run("lenient", func(t *testing.T) {
		res, err := newTestPipeline(false).Run(context.Background(), decodeRecords(t, recs...))
		require.NoError(t, err)
		require.Len(t, res.Review, 2)

		future := findClean(t, res, "app_080")
		assert.True(t, future.Flags.Has(domain.FlagAgeOutOfRange))
		assert.False(t, future.Flags.Has(domain.FlagCreditImpossible))
		months, _ := future.Financials.CreditHistoryMonths.Float()
		assert.Equal(t, 12.0, months)
	})
}

func TestRunGenderIsPreservedAndFlagged(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_090", 90, fields{"gender": "Unknown"}, nil),
		applicantJSON("app_091", 91, fields{"gender": "F"}, nil),
		applicantJSON("app_092", 92, fields{"gender": nil}, nil),
		applicantJSON("app_093", 93, fields{"gender": "Male"}, nil),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)

	unknown := findClean(t, res, "app_090")
	assert.Equal(t, "Unknown", *unknown.Applicant.Gender)
	assert.True(t, unknown.Flags.Has(domain.FlagGenderExcluded))

	abbrev := findClean(t, res, "app_091")
	assert.Equal(t, "Female", *abbrev.Applicant.Gender)
	assert.False(t, abbrev.Flags.Has(domain.FlagGenderExcluded))

	missing := findClean(t, res, "app_092")
	assert.Nil(t, missing.Applicant.Gender)
	assert.True(t, missing.Flags.Has(domain.FlagGenderExcluded))
	assert.True(t, missing.Flags.Has(domain.MissingFlag(domain.FieldGender)))

	assert.False(t, findClean(t, res, "app_093").Flags.Has(domain.FlagGenderExcluded))
}

func TestRunAnomalyFlagsDoNotMutate(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_100", 100, nil, fields{"savings_balance": 0}),
		applicantJSON("app_101", 101, nil, fields{"savings_balance": 10}),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)

	zero := findClean(t, res, "app_100")
	assert.True(t, zero.Flags.Has(domain.FlagSavingsZero))
	v, _ := zero.Financials.SavingsBalance.Float()
	assert.Equal(t, 0.0, v)
	assert.False(t, findClean(t, res, "app_101").Flags.Has(domain.FlagSavingsZero))
}

func TestRunNormalizesDateOfBirth(t *testing.T) {
	raw := decodeRecords(t,
		applicantJSON("app_110", 110, fields{"date_of_birth": "1990/05/12"}, nil),
		applicantJSON("app_111", 111, fields{"date_of_birth": "25/12/1988"}, nil),
		applicantJSON("app_112", 112, fields{"date_of_birth": "not a date"}, nil),
	)

	res, err := newTestPipeline(true).Run(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "1990-05-12", *findClean(t, res, "app_110").Applicant.DateOfBirth)
	assert.Equal(t, "1988-12-25", *findClean(t, res, "app_111").Applicant.DateOfBirth)

	bad := findClean(t, res, "app_112")
	assert.Equal(t, "not a date", *bad.Applicant.DateOfBirth)
	assert.Nil(t, bad.Applicant.Age)
	assert.True(t, bad.Flags.Has(domain.FlagDOBUnparseable))
}

func buildDataset(n int) []map[string]any {
	recs := make([]map[string]any, 0, n+2)
	for i := 1; i <= n; i++ {
		recs = append(recs, applicantJSON(fmt.Sprintf("app_%03d", i), i, nil, nil))
	}
	return recs
}

func TestRunFiveHundredTwoBecomesFiveHundred(t *testing.T) {
	recs := buildDataset(500)
	dupA := applicantJSON("app_501", 501, fields{"ssn": recs[87]["applicant_info"].(fields)["ssn"]}, nil)
	dupB := applicantJSON("app_502", 502, fields{"ssn": recs[15]["applicant_info"].(fields)["ssn"]}, nil)
	recs = append(recs, dupA, dupB)

	res, err := newTestPipeline(true).Run(context.Background(), decodeRecords(t, recs...))
	require.NoError(t, err)
	require.Len(t, res.Clean, 500)
	require.Len(t, res.Dropped, 2)

	clean := make(map[string]bool, len(res.Clean))
	for _, r := range res.Clean {
		assert.False(t, clean[r.ID], "duplicate id %s", r.ID)
		clean[r.ID] = true
	}
	for _, d := range res.Dropped {
		assert.False(t, clean[d.ID], d.ID)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	recs := buildDataset(40)
	recs = append(recs,
		applicantJSON("app_204", 204, fields{"email": "mike johnson@gmail.com", "gender": "M", "date_of_birth": "12/05/1990"},
			fields{"annual_income": "75,000", "savings_balance": nil, "credit_history_months": 400}),
		applicantJSON("app_205", 205, fields{"email": nil, "ssn": "12345", "gender": "Unknown"},
			fields{"debt_to_income": 1.7, "savings_balance": 0, "credit_history_months": nil}),
		applicantJSON("app_206", 206, fields{"date_of_birth": "31-31-31", "ssn": recs[3]["applicant_info"].(fields)["ssn"]},
			fields{"annual_income": "n/a"}),
	)

	p := newTestPipeline(true)
	first, err := p.Run(context.Background(), decodeRecords(t, recs...))
	require.NoError(t, err)
	require.NotEmpty(t, first.Changes)

	firstJSON, err := json.Marshal(first.Clean)
	require.NoError(t, err)

	again, err := ingest.Decode(firstJSON)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), again)
	require.NoError(t, err)

	assert.Empty(t, second.Changes)
	assert.Empty(t, second.Dropped)
	secondJSON, err := json.Marshal(second.Clean)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestRunIsDeterministicAndLeavesRawUntouched(t *testing.T) {
	recs := buildDataset(25)
	recs = append(recs, applicantJSON("app_300", 300, fields{"email": "bad@", "gender": "F"}, fields{"annual_income": nil}))
	raw := decodeRecords(t, recs...)
	before, err := json.Marshal(raw)
	require.NoError(t, err)

	p := newTestPipeline(true)
	a, err := p.Run(context.Background(), raw)
	require.NoError(t, err)
	b, err := p.Run(context.Background(), raw)
	require.NoError(t, err)

	after, err := json.Marshal(raw)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	aj, _ := json.Marshal(a.Clean)
	bj, _ := json.Marshal(b.Clean)
	assert.Equal(t, string(aj), string(bj))
	assert.Equal(t, a.Changes, b.Changes)
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestPipeline(true).Run(ctx, decodeRecords(t, applicantJSON("app_001", 1, nil, nil)))
	require.ErrorIs(t, err, context.Canceled)
}

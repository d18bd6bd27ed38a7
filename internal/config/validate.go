package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"novacred-engine/internal/clean"
	"novacred-engine/internal/domain"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Err folds all errors into one, or nil when the config is usable.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return errors.New("config validation failed:\n- " + strings.Join(v.Errors, "\n- "))
}

var boundOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true}

// NormalizeAndValidate returns a normalized copy of cfg and every problem
// found in it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	out.Input.Path = strings.TrimSpace(out.Input.Path)
	out.Output.Dir = strings.TrimSpace(out.Output.Dir)
	out.Audit.ReferenceDate = strings.TrimSpace(out.Audit.ReferenceDate)
	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))

	bounds := make([]Bound, 0, len(out.Bounds))
	for _, b := range out.Bounds {
		b.Field = strings.ToLower(strings.TrimSpace(b.Field))
		b.Op = strings.TrimSpace(b.Op)
		bounds = append(bounds, b)
	}
	out.Bounds = bounds

	// ---- Validation rules ----

	if out.Input.Path == "" {
		res.addErr("input.path is required")
	}
	if out.Output.Dir == "" {
		res.addErr("output.dir is required")
	}
	if !out.Output.CSV && !out.Output.JSON && !out.Output.SQLite {
		res.addWarn("csv, json and sqlite outputs are all disabled; df_clean will not be written")
	}

	if _, err := time.Parse("2006-01-02", out.Audit.ReferenceDate); err != nil {
		res.addErr("audit.reference_date must be YYYY-MM-DD (got %q)", out.Audit.ReferenceDate)
	}
	if out.Audit.MinAge >= out.Audit.MaxAge {
		res.addErr("audit.min_age (%d) must be below audit.max_age (%d)", out.Audit.MinAge, out.Audit.MaxAge)
	}
	if out.Audit.MinAge < 0 {
		res.addWarn("audit.min_age is negative (%d); negative ages will not be sent to review", out.Audit.MinAge)
	}
	if out.Audit.MaxAge > 130 {
		res.addWarn("audit.max_age is %d; implausible ages may be capped instead of reviewed", out.Audit.MaxAge)
	}
	if out.Audit.AdultAge < 0 {
		res.addErr("audit.adult_age must be >= 0")
	}
	if out.Audit.CreditOutlierMonths <= 0 {
		res.addErr("audit.credit_outlier_months must be > 0")
	}
	if !out.Audit.StrictReview {
		res.addWarn("audit.strict_review is off; records with implausible ages will be written with a flag only")
	}

	for i, b := range out.Bounds {
		if !numericField(domain.Field(b.Field)) {
			res.addErr("bounds[%d].field %q is not a numeric tracked field", i, b.Field)
		}
		if !boundOps[b.Op] {
			res.addErr("bounds[%d].op %q must be one of <, <=, >, >=", i, b.Op)
		}
	}

	switch out.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		res.addWarn("log.level %q is unknown; using info", out.Log.Level)
	}

	return out, res
}

func numericField(f domain.Field) bool {
	for _, fr := range clean.FieldRules {
		if fr.Field != f {
			continue
		}
		var r domain.Record
		return r.NumberField(f) != nil
	}
	return false
}

package clean

import (
	"slices"
	"strings"

	"novacred-engine/internal/domain"
)

// detectMissing raises <field>_missing for every absent or blank tracked
// field before anything is imputed. Blank text is normalised to null.
// A value nulled earlier by a validity rule is not missing.
func detectMissing(st *state) int {
	touched := 0
	for _, r := range st.rows {
		hit := false
		for _, fr := range FieldRules {
			f := fr.Field
			if r.rec.Flags.Has(domain.InvalidFlag(f)) || r.rec.Flags.Has(domain.UnparseableFlag(f)) {
				continue
			}
			if p := r.rec.StringField(f); p != nil {
				if *p != nil && strings.TrimSpace(**p) != "" {
					continue
				}
				if *p != nil {
					st.change(r.rec.ID, RuleMissing, f, textCopy(*p), nil)
					*p = nil
				}
			} else if p := r.rec.NumberField(f); p != nil {
				if *p != nil && !(*p).Blank() {
					continue
				}
				if *p != nil {
					st.change(r.rec.ID, RuleMissing, f, numText(*p), nil)
					*p = nil
				}
			}
			if r.rec.Flags.Raise(domain.MissingFlag(f)) {
				hit = true
			}
		}
		if hit {
			touched++
		}
	}
	return touched
}

// coerceNumbers settles string-sourced numbers: text that parsed is kept
// as a plain number, text that did not is flagged and nulled.
func coerceNumbers(st *state) int {
	touched := 0
	for _, r := range st.rows {
		hit := false
		for _, fr := range FieldRules {
			p := r.rec.NumberField(fr.Field)
			if p == nil || *p == nil || (*p).Raw == "" {
				continue
			}
			before := (*p).Raw
			if !(*p).Valid {
				r.rec.Flags.Raise(domain.UnparseableFlag(fr.Field))
				st.change(r.rec.ID, RuleUnparseable, fr.Field, &before, nil)
				*p = nil
			} else {
				*p = domain.NewNumber((*p).Value)
				st.change(r.rec.ID, RuleCoerce, fr.Field, &before, numText(*p))
			}
			hit = true
		}
		if hit {
			touched++
		}
	}
	return touched
}

// screenImpossible nulls values outside the configured bounds so they are
// neither used for medians nor kept.
func screenImpossible(st *state) int {
	touched := 0
	for _, r := range st.rows {
		hit := false
		for _, b := range st.opts.Bounds {
			p := r.rec.NumberField(b.Field)
			if p == nil {
				continue
			}
			v, ok := (*p).Float()
			if !ok || !b.Violates(v) {
				continue
			}
			r.rec.Flags.Raise(domain.InvalidFlag(b.Field))
			st.change(r.rec.ID, RuleImpossible, b.Field, numText(*p), nil)
			*p = nil
			hit = true
		}
		if hit {
			touched++
		}
	}
	return touched
}

// impute fills nulls per FieldRules. Medians come from the snapshot as it
// stands before deduplication, over usable values only.
func impute(st *state) int {
	for _, fr := range FieldRules {
		if fr.Strategy != StrategyMedian {
			continue
		}
		var vals []float64
		for _, r := range st.rows {
			if v, ok := (*r.rec.NumberField(fr.Field)).Float(); ok {
				vals = append(vals, v)
			}
		}
		if m, ok := Median(vals); ok {
			st.res.Medians[fr.Field] = m
		}
	}

	touched := 0
	for _, r := range st.rows {
		hit := false
		for _, fr := range FieldRules {
			p := r.rec.NumberField(fr.Field)
			if p == nil || *p != nil {
				continue
			}
			var fill float64
			switch fr.Strategy {
			case StrategyMedian:
				m, ok := st.res.Medians[fr.Field]
				if !ok {
					continue
				}
				fill = m
			case StrategyZero:
				fill = 0
			default:
				continue
			}
			*p = domain.NewNumber(fill)
			st.change(r.rec.ID, RuleImpute, fr.Field, nil, numText(*p))
			hit = true
		}
		if hit {
			touched++
		}
	}
	return touched
}

// Median returns the middle value of vals (mean of the two middle values
// for an even count). ok is false for an empty input.
func Median(vals []float64) (float64, bool) {
	n := len(vals)
	if n == 0 {
		return 0, false
	}
	cp := slices.Clone(vals)
	slices.Sort(cp)
	mid := n / 2
	if n%2 == 0 {
		return (cp[mid-1] + cp[mid]) / 2, true
	}
	return cp[mid], true
}

package clean

import (
	"strings"

	"novacred-engine/internal/domain"
)

func (st *state) drop(r *row, reason, keptID string) {
	st.res.Dropped = append(st.res.Dropped, DroppedRecord{
		Index:    r.raw.Index,
		ID:       r.rec.ID,
		Reason:   reason,
		KeptID:   keptID,
		Original: r.raw.Record.Clone(),
		Raw:      r.raw.Bytes,
	})
}

// dedupeIDs keeps the last row for each record id; earlier rows carrying
// the same id are dropped.
func dedupeIDs(st *state) int {
	last := make(map[string]*row, len(st.rows))
	for _, r := range st.rows {
		last[r.rec.ID] = r
	}
	n := 0
	st.keep(func(r *row) bool {
		if last[r.rec.ID] == r {
			return false
		}
		st.drop(r, RuleDuplicateID, r.rec.ID)
		n++
		return true
	})
	return n
}

// dedupeSSN resolves SSN conflicts: the first record in source order wins,
// every later record sharing the SSN is dropped and logged. Records without
// an SSN never take part.
func dedupeSSN(st *state) int {
	first := make(map[string]*row, len(st.rows))
	n := 0
	st.keep(func(r *row) bool {
		if r.rec.Applicant.SSN == nil {
			return false
		}
		key := strings.TrimSpace(*r.rec.Applicant.SSN)
		kept, ok := first[key]
		if !ok {
			first[key] = r
			return false
		}
		kept.rec.Flags.Raise(domain.FlagSSNConflictRetained)
		st.drop(r, RuleDuplicateSSN, kept.rec.ID)
		n++
		return true
	})
	return n
}

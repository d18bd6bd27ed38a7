package clean

import (
	"errors"
	"fmt"
	"strings"

	"novacred-engine/internal/domain"
)

const (
	RuleMissing      = "missing_value"
	RuleUnparseable  = "unparseable_value"
	RuleCoerce       = "coerce_number"
	RuleImpossible   = "impossible_value"
	RuleImpute       = "impute"
	RuleNormalize    = "normalize"
	RuleDeriveAge    = "derive_age"
	RuleDuplicateID  = "duplicate_id"
	RuleDuplicateSSN = "duplicate_ssn"
	RuleEmail        = "email_validity"
	RuleRangeBound   = "range_bound"
)

// Change is one value mutation. Nil Before/After mean null.
type Change struct {
	RecordID string  `json:"record_id"`
	Rule     string  `json:"rule"`
	Field    string  `json:"field"`
	Before   *string `json:"before"`
	After    *string `json:"after"`
}

// DroppedRecord is a record removed from the clean table, kept with the
// exact values it arrived with.
type DroppedRecord struct {
	Index    int
	ID       string
	Reason   string
	KeptID   string
	Original domain.Record
	Raw      []byte
}

// DroppedFor returns the dropped records with the given reason, in drop order.
func (r *Result) DroppedFor(reason string) []DroppedRecord {
	var out []DroppedRecord
	for _, d := range r.Dropped {
		if d.Reason == reason {
			out = append(out, d)
		}
	}
	return out
}

// ReviewItem is a value the pipeline refuses to correct automatically.
type ReviewItem struct {
	RecordID string
	Field    domain.Field
	Value    string
	Reason   string
}

var ErrReviewRequired = errors.New("records require manual review")

type ReviewError struct {
	Items []ReviewItem
}

func (e *ReviewError) Error() string {
	ids := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		ids = append(ids, it.RecordID)
	}
	return fmt.Sprintf("%d record(s) require manual review: %s", len(e.Items), strings.Join(ids, ", "))
}

func (e *ReviewError) Unwrap() error { return ErrReviewRequired }

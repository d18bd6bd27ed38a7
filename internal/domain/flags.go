package domain

import "sort"

// Flag names a data-quality rule that fired on a record.
type Flag string

const (
	FlagDOBUnparseable      Flag = "date_of_birth_unparseable"
	FlagSSNFormatInvalid    Flag = "ssn_format_invalid"
	FlagSSNConflictRetained Flag = "ssn_conflict_retained"
	FlagCreditImpossible    Flag = "credit_history_impossible"
	FlagAgeOutOfRange       Flag = "age_out_of_range"
	FlagGenderExcluded      Flag = "gender_excluded_binary"
	FlagSavingsZero         Flag = "savings_zero_flag"
	FlagCreditOutlier       Flag = "credit_history_outlier"
)

func MissingFlag(f Field) Flag     { return Flag(string(f) + "_missing") }
func InvalidFlag(f Field) Flag     { return Flag(string(f) + "_invalid") }
func UnparseableFlag(f Field) Flag { return Flag(string(f) + "_unparseable") }

// FlagSet holds the flags raised on a record. Only raised flags are stored;
// flags are never cleared.
type FlagSet map[Flag]bool

func (s FlagSet) Has(f Flag) bool { return s[f] }

// Raise sets f on *s and reports whether it was newly raised.
func (s *FlagSet) Raise(f Flag) bool {
	if *s == nil {
		*s = FlagSet{}
	}
	if (*s)[f] {
		return false
	}
	(*s)[f] = true
	return true
}

func (s FlagSet) Clone() FlagSet {
	if len(s) == 0 {
		return nil
	}
	out := make(FlagSet, len(s))
	for k, v := range s {
		if v {
			out[k] = true
		}
	}
	return out
}

// Sorted lists the raised flags in name order.
func (s FlagSet) Sorted() []Flag {
	out := make([]Flag, 0, len(s))
	for f, on := range s {
		if on {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

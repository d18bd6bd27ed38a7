package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a numeric field that also accepts numeric strings such as
// "75,000". A string that does not parse keeps its text in Raw with
// Valid=false.
type Number struct {
	Value float64
	Raw   string
	Valid bool
}

func NewNumber(v float64) *Number {
	return &Number{Value: v, Valid: true}
}

// ParseNumber coerces a textual amount: thousands separators and
// surrounding blanks are ignored. NaN and infinities do not count as
// numbers.
func ParseNumber(s string) Number {
	clean := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || clean == "" || !finite(v) {
		return Number{Raw: s}
	}
	return Number{Value: v, Raw: s, Valid: true}
}

// Float reports the value and whether it is usable. Nil-safe.
func (n *Number) Float() (float64, bool) {
	if n == nil || !n.Valid {
		return 0, false
	}
	return n.Value, true
}

// Blank reports a string-sourced number that carried no text at all.
func (n *Number) Blank() bool {
	return n != nil && !n.Valid && strings.TrimSpace(n.Raw) == ""
}

func (n *Number) Clone() *Number {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// String renders the value the way tabular artifacts show it.
func (n *Number) String() string {
	if n == nil {
		return ""
	}
	if !n.Valid {
		return n.Raw
	}
	return FormatFloat(n.Value)
}

// Source renders the value as it arrived: the original text for a
// string-sourced number, the formatted value otherwise.
func (n *Number) Source() string {
	if n == nil {
		return ""
	}
	if n.Raw != "" {
		return n.Raw
	}
	return FormatFloat(n.Value)
}

func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = ParseNumber(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("number: %w", err)
	}
	if !finite(v) {
		*n = Number{Raw: string(b)}
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return json.Marshal(n.Raw)
	}
	return json.Marshal(n.Value)
}

// Code is an identifier-like value (zip code) that sources emit either as a
// string or as a bare number.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("code: %w", err)
	}
	*c = Code(num.String())
	return nil
}

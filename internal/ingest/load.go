package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"novacred-engine/internal/domain"
)

var (
	// ErrMalformedInput means the file is not a JSON array of records.
	ErrMalformedInput = errors.New("malformed input")
	// ErrMalformedRecord means one element could not be decoded as an
	// applicant record. The run must stop rather than emit a partial table.
	ErrMalformedRecord = errors.New("malformed record")
)

// Snapshot is the immutable raw dataset a run starts from.
type Snapshot struct {
	Path    string
	SHA256  string
	Records []domain.RawRecord
}

func LoadFile(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	recs, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	sum := sha256.Sum256(b)
	return &Snapshot{
		Path:    path,
		SHA256:  hex.EncodeToString(sum[:]),
		Records: recs,
	}, nil
}

// Decode parses a JSON array of applicant records, keeping each element's
// source bytes alongside the decoded value.
func Decode(data []byte) ([]domain.RawRecord, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	out := make([]domain.RawRecord, 0, len(elems))
	for i, elem := range elems {
		trimmed := bytes.TrimSpace(elem)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformedRecord, i)
		}

		var rec domain.Record
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrMalformedRecord, i, err)
		}
		rec.ID = strings.TrimSpace(rec.ID)
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: element %d has no _id", ErrMalformedRecord, i)
		}

		raw := make(json.RawMessage, len(trimmed))
		copy(raw, trimmed)
		out = append(out, domain.RawRecord{Index: i, Bytes: raw, Record: rec})
	}
	return out, nil
}

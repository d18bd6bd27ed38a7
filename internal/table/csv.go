package table

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/go-gota/gota/dataframe"
)

// WriteCSV writes header and rows as one CSV document. Every column is kept
// as text so values round-trip exactly as flattened.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		// dataframe refuses a frame without rows; the header alone is still
		// a valid (empty) table.
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	for i, r := range rows {
		if len(r) != len(header) {
			return fmt.Errorf("row %d has %d cells, header has %d", i, len(r), len(header))
		}
		records = append(records, r)
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
	)
	if df.Err != nil {
		return fmt.Errorf("build frame: %w", df.Err)
	}
	return df.WriteCSV(w)
}

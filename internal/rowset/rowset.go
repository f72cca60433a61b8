// Package rowset materializes a database/sql result set into memory so rows
// can be addressed by column name after the underlying cursor is closed.
package rowset

import (
	"bytes"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Rows is a fully buffered result set. It starts positioned on the first row;
// Next advances. An empty result is never represented as a Rows value: Load
// returns nil for it.
type Rows struct {
	columns []string
	index   map[string]int
	data    [][][]byte
	pos     int
}

// Load drains rs into memory and closes nothing (the caller still owns rs).
// It returns (nil, nil) when the result set is empty.
func Load(rs *sql.Rows) (*Rows, error) {
	columns, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var data [][][]byte
	for rs.Next() {
		raw := make([]sql.RawBytes, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		// RawBytes is only valid until the next call to Next; copy out.
		row := make([][]byte, len(columns))
		for i, b := range raw {
			if b != nil {
				row[i] = bytes.Clone(b)
			}
		}
		data = append(data, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result rows: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
	}
	return &Rows{columns: columns, index: index, data: data}, nil
}

// Columns returns the column names in result order.
func (r *Rows) Columns() []string {
	return r.columns
}

// Next advances to the following row and reports whether one exists.
func (r *Rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

// RowCount returns the total number of rows in the result.
func (r *Rows) RowCount() int {
	return len(r.data)
}

// Close releases the buffered rows. It never fails; the error return
// satisfies the result contract.
func (r *Rows) Close() error {
	r.data = nil
	return nil
}

// Int returns the current row's value in the named column as an int, 0 when
// the column is unknown or not numeric.
func (r *Rows) Int(column string) int {
	return int(r.Int64(column))
}

// Int64 returns the current row's value in the named column as an int64, 0
// when the column is unknown or not numeric.
func (r *Rows) Int64(column string) int64 {
	b, ok := r.value(column)
	if !ok || len(b) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		log.Error().Err(err).Str("column", column).Msg("Result column is not numeric")
		return 0
	}
	return n
}

// String returns the current row's value in the named column, "" when the
// column is unknown or NULL.
func (r *Rows) String(column string) string {
	b, ok := r.value(column)
	if !ok {
		return ""
	}
	return string(b)
}

// Bytes returns the current row's raw bytes in the named column, nil when the
// column is unknown or NULL.
func (r *Rows) Bytes(column string) []byte {
	b, ok := r.value(column)
	if !ok {
		return nil
	}
	return b
}

func (r *Rows) value(column string) ([]byte, bool) {
	i, ok := r.index[column]
	if !ok {
		log.Error().Str("column", column).Msg("Unknown result column")
		return nil, false
	}
	if r.pos >= len(r.data) {
		return nil, false
	}
	return r.data[r.pos][i], true
}

// Package records holds the small value types passed between pipeline stages.
package records

// Record is a single row keyed by column name. After cleaning, values are one
// of string, int64, float64, time.Time, or nil (missing).
type Record map[string]any

// Chunk is a bounded, ordered slice of raw CSV rows read in one pass. Chunks
// partition the staged file without overlap and in source order.
type Chunk struct {
	// Index is the 0-based position of the chunk in the file.
	Index int

	// Header is the header row as read from the file, shared by every chunk.
	Header []string

	// Rows holds raw cell values aligned to Header. Ragged rows may be
	// shorter (missing trailing cells read as "") or longer (extras ignored).
	Rows [][]string

	// FirstLine and LastLine are the 1-based file line numbers of the first
	// and last data row in the chunk.
	FirstLine int
	LastLine  int

	// Skipped counts lines inside the chunk's span that failed CSV parsing.
	// They are not part of Rows and not part of Len().
	Skipped int

	// Ragged counts rows kept in Rows whose field count differed from the
	// header.
	Ragged int
}

// Len reports the number of parsed rows in the chunk.
func (c *Chunk) Len() int { return len(c.Rows) }

// Cell returns the raw value of column i in row r, or "" when the row is
// shorter than the header.
func (c *Chunk) Cell(r, i int) string {
	row := c.Rows[r]
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Package transformer turns raw trip rows into cleaned, typed records:
// timestamps parsed, numerics coerced, impossible values rejected.
package transformer

import (
	"fmt"
)

// Reject describes one dropped row. Row is the 0-based position inside the
// chunk; FirstLine and LastLine are the chunk's file line span.
type Reject struct {
	Chunk     int
	Row       int
	FirstLine int
	LastLine  int
	Stage     string // "parse" or "validate"
	Err       error
}

// ParseError is raised when a required timestamp cannot be parsed.
type ParseError struct {
	Column string
	Value  string
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("parse %s: missing timestamp", e.Column)
	}
	return fmt.Sprintf("parse %s: unrecognized timestamp %q", e.Column, e.Value)
}

// ValidationError is raised when a present value breaks a domain rule.
type ValidationError struct {
	Column string
	Value  float64
	Rule   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %v %s", e.Column, e.Value, e.Rule)
}

// Stats counts the outcome of cleaning one chunk. Cleaned <= Original and
// Original == Cleaned + ParseDropped + ValidationDropped.
type Stats struct {
	Original          int
	Cleaned           int
	ParseDropped      int
	ValidationDropped int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Original += o.Original
	s.Cleaned += o.Cleaned
	s.ParseDropped += o.ParseDropped
	s.ValidationDropped += o.ValidationDropped
}

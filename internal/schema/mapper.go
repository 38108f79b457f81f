package schema

import (
	"strings"

	"tripetl/pkg/records"
)

// Plan is the per-chunk capability map: which canonical columns a chunk
// exposes and where each one lives in the source row. Columns come out in
// AllowList order.
type Plan struct {
	cols []Column
	src  []int // src[i] is the source index of cols[i]
}

// Compile builds a Plan from a raw header. Unknown headers are dropped. When
// two source headers map to the same canonical column the first one wins.
// A non-nil dest narrows the result to columns the destination table has
// (matched case-insensitively).
func Compile(header []string, dest []string) Plan {
	var allow map[string]struct{}
	if dest != nil {
		allow = make(map[string]struct{}, len(dest))
		for _, d := range dest {
			allow[strings.ToLower(d)] = struct{}{}
		}
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		c, ok := Lookup(h)
		if !ok {
			continue
		}
		if _, seen := pos[c.Name]; seen {
			continue
		}
		pos[c.Name] = i
	}

	var p Plan
	for _, c := range AllowList {
		i, ok := pos[c.Name]
		if !ok {
			continue
		}
		if allow != nil {
			if _, ok := allow[c.Name]; !ok {
				continue
			}
		}
		p.cols = append(p.cols, c)
		p.src = append(p.src, i)
	}
	return p
}

// Columns returns the canonical column names present, in AllowList order.
func (p Plan) Columns() []string {
	out := make([]string, len(p.cols))
	for i, c := range p.cols {
		out[i] = c.Name
	}
	return out
}

// Len reports how many canonical columns the plan carries.
func (p Plan) Len() int { return len(p.cols) }

// Column returns the i-th planned column and its source index.
func (p Plan) Column(i int) (Column, int) { return p.cols[i], p.src[i] }

// Has reports whether the plan exposes canonical column name.
func (p Plan) Has(name string) bool {
	for _, c := range p.cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Row returns rec's values aligned to Columns(); absent keys become nil.
func (p Plan) Row(rec records.Record) []any {
	out := make([]any, len(p.cols))
	for i, c := range p.cols {
		out[i] = rec[c.Name]
	}
	return out
}

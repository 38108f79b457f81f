package transformer

import (
	"math"
	"strconv"
	"strings"

	"tripetl/internal/schema"
	"tripetl/pkg/records"
)

// nonNegative lists numeric columns that must not be negative when present.
var nonNegative = []string{schema.FareAmount, schema.TripDistance, schema.PassengerCount}

// Cleaner applies the per-row cleaning rules to a chunk. A Cleaner is built
// once per file (the header is fixed) and reused for every chunk; it is not
// safe for concurrent use.
type Cleaner struct {
	layouts  []string
	onReject func(Reject)

	cols    []colPlan
	pickup  int // index into cols, -1 when absent
	dropoff int
	checks  []int // indexes into cols for nonNegative
}

// colPlan is the compiled coercion for one planned column.
type colPlan struct {
	name   string
	src    int
	coerce func(s string) (any, bool)
}

// NewCleaner compiles plan into per-column coercers. layouts defaults to
// DefaultLayouts; onReject may be nil.
func NewCleaner(plan schema.Plan, layouts []string, onReject func(Reject)) *Cleaner {
	if len(layouts) == 0 {
		layouts = DefaultLayouts
	}
	c := &Cleaner{layouts: layouts, onReject: onReject, pickup: -1, dropoff: -1}

	for i := 0; i < plan.Len(); i++ {
		col, src := plan.Column(i)
		cp := colPlan{name: col.Name, src: src}

		switch col.Kind {
		case schema.KindTime:
			cp.coerce = func(s string) (any, bool) {
				t, ok := parseTimestamp(s, layouts)
				if !ok {
					return nil, false
				}
				return t, true
			}
		case schema.KindNumber:
			cp.coerce = func(s string) (any, bool) {
				if f, ok := parseNumber(s); ok {
					return f, true
				}
				return nil, true
			}
		case schema.KindInteger:
			cp.coerce = func(s string) (any, bool) {
				if n, ok := parseInteger(s); ok {
					return n, true
				}
				return nil, true
			}
		default:
			cp.coerce = func(s string) (any, bool) {
				if s == "" {
					return nil, true
				}
				return s, true
			}
		}
		c.cols = append(c.cols, cp)

		switch col.Name {
		case schema.PickupDatetime:
			c.pickup = i
		case schema.DropoffDatetime:
			c.dropoff = i
		}
	}

	for _, name := range nonNegative {
		for i, cp := range c.cols {
			if cp.name == name {
				c.checks = append(c.checks, i)
			}
		}
	}
	return c
}

// Clean returns the surviving rows of ch as canonical records, preserving
// source order.
//
// Per row: both timestamps must parse (else ParseError); numerics that are
// empty, unparseable, NaN or infinite become nil, as do coded identifiers
// that are not whole numbers; a present negative fare,
// trip distance or passenger count drops the row (ValidationError). Missing
// values never cause a drop.
func (c *Cleaner) Clean(ch *records.Chunk) ([]records.Record, Stats) {
	st := Stats{Original: ch.Len()}
	out := make([]records.Record, 0, ch.Len())

	vals := make([]any, len(c.cols))

	if missing := c.missingTimestamp(); missing != "" {
		for r := range ch.Rows {
			c.reject(ch, r, "parse", &ParseError{Column: missing})
		}
		st.ParseDropped = st.Original
		return out, st
	}

rows:
	for r := range ch.Rows {
		for i, cp := range c.cols {
			raw := strings.TrimSpace(ch.Cell(r, cp.src))
			v, ok := cp.coerce(raw)
			if !ok {
				c.reject(ch, r, "parse", &ParseError{Column: cp.name, Value: raw})
				st.ParseDropped++
				continue rows
			}
			vals[i] = v
		}

		for _, i := range c.checks {
			if f, ok := vals[i].(float64); ok && f < 0 {
				c.reject(ch, r, "validate", &ValidationError{Column: c.cols[i].name, Value: f, Rule: "must not be negative"})
				st.ValidationDropped++
				continue rows
			}
		}

		rec := make(records.Record, len(c.cols))
		for i, cp := range c.cols {
			rec[cp.name] = vals[i]
		}
		out = append(out, rec)
	}

	st.Cleaned = len(out)
	return out, st
}

func (c *Cleaner) missingTimestamp() string {
	switch {
	case c.pickup < 0:
		return schema.PickupDatetime
	case c.dropoff < 0:
		return schema.DropoffDatetime
	}
	return ""
}

func (c *Cleaner) reject(ch *records.Chunk, row int, stage string, err error) {
	if c.onReject != nil {
		c.onReject(Reject{
			Chunk:     ch.Index,
			Row:       row,
			FirstLine: ch.FirstLine,
			LastLine:  ch.LastLine,
			Stage:     stage,
			Err:       err,
		})
	}
}

// parseNumber accepts finite decimal values only.
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseInteger accepts whole numbers, including integral decimals such as
// "1.0" that some exports write for coded fields.
func parseInteger(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, ok := parseNumber(s)
	if !ok || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

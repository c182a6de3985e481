package query

import (
	"strings"
	"unicode"

	"go.einride.tech/aip/ordering"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Sort struct {
	Column string
	Desc   bool
}

type Order []Sort

// ParseSort resolves an order_by string ("date desc, worker_name") against
// columns, which maps public field names to SQL columns. Unknown fields are
// skipped. A blank or unparsable string, or one naming no known field, yields
// fallback.
func ParseSort(raw string, columns map[string]string, fallback Order) Order {
	raw = normalizeOrderBy(raw)
	if raw == "" {
		return fallback
	}
	var parsed ordering.OrderBy
	if err := parsed.UnmarshalString(raw); err != nil {
		return fallback
	}
	out := make(Order, 0, len(parsed.Fields))
	for _, field := range parsed.Fields {
		col, ok := columns[field.Path]
		if !ok {
			continue
		}
		out = append(out, Sort{Column: col, Desc: field.Desc})
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// Scope applies the order followed by tiebreak ascending, unless the order
// already sorts on tiebreak.
func (o Order) Scope(tiebreak string) Predicate {
	cols := make([]clause.OrderByColumn, 0, len(o)+1)
	seen := false
	for _, s := range o {
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Name: s.Column, Raw: true}, Desc: s.Desc})
		if s.Column == tiebreak {
			seen = true
		}
	}
	if tiebreak != "" && !seen {
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Name: tiebreak, Raw: true}})
	}
	return func(db *gorm.DB) *gorm.DB {
		if len(cols) == 0 {
			return db
		}
		return db.Clauses(clause.OrderBy{Columns: cols})
	}
}

// normalizeOrderBy lower-cases directions and turns camelCase field names
// into snake_case, so "startTime DESC" and "start_time desc" are equivalent.
// A "field,dir" pair is accepted as "field dir".
func normalizeOrderBy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parts := strings.Split(raw, ","); len(parts) == 2 {
		dir := strings.ToLower(strings.TrimSpace(parts[1]))
		if dir == "asc" || dir == "desc" {
			raw = strings.TrimSpace(parts[0]) + " " + dir
		}
	}
	var b strings.Builder
	prevLower := false
	for _, r := range raw {
		if unicode.IsUpper(r) {
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
			continue
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return b.String()
}

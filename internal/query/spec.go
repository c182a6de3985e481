// Package query builds the filter, sort and paging clauses shared by every
// list read. A Predicate is built once and applied unchanged to the data,
// count and aggregate queries of a read so their row sets cannot drift apart.
package query

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Op int

const (
	// Equal compares the column to Value exactly.
	Equal Op = iota
	// EqualFold compares case-insensitively.
	EqualFold
	// ContainsFold matches when any column contains Value, case-insensitively.
	ContainsFold
	// Range matches From <= column < To.
	Range
)

type Spec struct {
	Columns []string
	Op      Op
	Value   any
	To      any
}

// Predicate is a gorm scope carrying WHERE clauses.
type Predicate func(*gorm.DB) *gorm.DB

// Build folds specs into a single predicate. Specs are ANDed.
func Build(specs ...Spec) Predicate {
	frozen := append([]Spec(nil), specs...)
	return func(db *gorm.DB) *gorm.DB {
		for _, spec := range frozen {
			db = spec.apply(db)
		}
		return db
	}
}

func (s Spec) apply(db *gorm.DB) *gorm.DB {
	if len(s.Columns) == 0 {
		return db
	}
	switch s.Op {
	case Equal:
		return db.Where(fmt.Sprintf("%s = ?", s.Columns[0]), s.Value)
	case EqualFold:
		return db.Where(fmt.Sprintf("LOWER(%s) = ?", s.Columns[0]), strings.ToLower(fmt.Sprint(s.Value)))
	case ContainsFold:
		pattern := "%" + escapeLike(strings.ToLower(fmt.Sprint(s.Value))) + "%"
		clauses := make([]string, 0, len(s.Columns))
		args := make([]any, 0, len(s.Columns))
		for _, col := range s.Columns {
			clauses = append(clauses, fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col))
			args = append(args, pattern)
		}
		return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	case Range:
		return db.Where(fmt.Sprintf("%s >= ? AND %s < ?", s.Columns[0], s.Columns[0]), s.Value, s.To)
	default:
		return db
	}
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}

// Specs accumulates filter specs. Each helper drops blank or malformed input
// instead of failing, so a bad optional filter never empties a listing.
type Specs []Spec

func (s Specs) Search(term string, columns ...string) Specs {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return s
	}
	return append(s, Spec{Columns: columns, Op: ContainsFold, Value: term})
}

func (s Specs) EqualFold(column, value string) Specs {
	value = strings.TrimSpace(value)
	if value == "" {
		return s
	}
	return append(s, Spec{Columns: []string{column}, Op: EqualFold, Value: value})
}

func (s Specs) Equal(column string, value any, ok bool) Specs {
	if !ok {
		return s
	}
	return append(s, Spec{Columns: []string{column}, Op: Equal, Value: value})
}

func (s Specs) Range(column string, from, to time.Time) Specs {
	return append(s, Spec{Columns: []string{column}, Op: Range, Value: from, To: to})
}

// Month restricts column to the calendar month named by raw ("YYYY-MM").
func (s Specs) Month(column, raw string) Specs {
	from, to, ok := Month(raw)
	if !ok {
		return s
	}
	return s.Range(column, from, to)
}

func (s Specs) Predicate() Predicate {
	return Build(s...)
}

// Month parses "YYYY-MM" into the half-open UTC interval covering that month.
func Month(raw string) (time.Time, time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse("2006-01", raw)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	start = start.UTC()
	return start, start.AddDate(0, 1, 0), true
}

// ParseEnum matches raw against allowed case-insensitively.
func ParseEnum[T ~string](raw string, allowed ...T) (T, bool) {
	raw = strings.TrimSpace(raw)
	for _, v := range allowed {
		if strings.EqualFold(raw, string(v)) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

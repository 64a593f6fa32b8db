package repository

import (
	"fmt"
	"strings"
)

// Filters builds a typed WHERE clause with positional arguments. List
// endpoints construct one per request instead of passing loosely typed maps
// into SQL.
type Filters struct {
	clauses []string
	args    []any
}

func NewFilters() *Filters {
	return &Filters{}
}

func (f *Filters) Eq(column string, value any) *Filters {
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf("%s = $%d", column, len(f.args)))
	return f
}

// Search adds a case-insensitive substring match across columns, all bound to
// the same argument.
func (f *Filters) Search(term string, columns ...string) *Filters {
	if term == "" || len(columns) == 0 {
		return f
	}
	f.args = append(f.args, "%"+term+"%")
	idx := len(f.args)
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, fmt.Sprintf("%s ILIKE $%d", col, idx))
	}
	f.clauses = append(f.clauses, "("+strings.Join(parts, " OR ")+")")
	return f
}

func (f *Filters) Since(column string, value any) *Filters {
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf("%s >= $%d", column, len(f.args)))
	return f
}

// SQL returns the WHERE clause (empty string when no filters) and its
// arguments. Callers append further placeholders starting at NextArg.
func (f *Filters) SQL() (string, []any) {
	if len(f.clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(f.clauses, " AND "), f.args
}

// NextArg is the index of the next positional placeholder after the filter
// arguments.
func (f *Filters) NextArg() int {
	return len(f.args) + 1
}

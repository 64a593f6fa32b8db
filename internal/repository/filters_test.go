package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFiltersEmpty(t *testing.T) {
	f := NewFilters()
	where, args := f.SQL()
	assert.Empty(t, where)
	assert.Empty(t, args)
	assert.Equal(t, 1, f.NextArg())
}

func TestFiltersEq(t *testing.T) {
	f := NewFilters().Eq("status", "ACTIVE").Eq("client_id", "cl_1")
	where, args := f.SQL()
	assert.Equal(t, "WHERE status = $1 AND client_id = $2", where)
	assert.Equal(t, []any{"ACTIVE", "cl_1"}, args)
	assert.Equal(t, 3, f.NextArg())
}

func TestFiltersSearchSharesArgument(t *testing.T) {
	f := NewFilters().Eq("status", "ACTIVE").Search("acme", "name", "email", "company")
	where, args := f.SQL()
	assert.Equal(t, "WHERE status = $1 AND (name ILIKE $2 OR email ILIKE $2 OR company ILIKE $2)", where)
	assert.Equal(t, []any{"ACTIVE", "%acme%"}, args)
	assert.Equal(t, 3, f.NextArg())
}

func TestFiltersSearchIgnoresEmptyTerm(t *testing.T) {
	f := NewFilters().Search("", "name")
	where, args := f.SQL()
	assert.Empty(t, where)
	assert.Empty(t, args)
}

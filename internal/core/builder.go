// File: internal/core/builder.go
package core

import (
	"fmt"
	"strings"
)

// QueryBuilder is a generics-based fluent query builder. T is the row
// type the built statement is meant to be decoded into.
type QueryBuilder[T any] struct {
	table       string
	selectCols  []string
	whereOps    []string
	args        []interface{}
	joinClauses []string
	orderBy     string
	limit       int
	offset      int
	dollar      bool
}

func NewQueryBuilder[T any]() *QueryBuilder[T] {
	return &QueryBuilder[T]{}
}

func (qb *QueryBuilder[T]) From(table string) *QueryBuilder[T] {
	qb.table = table
	return qb
}

func (qb *QueryBuilder[T]) Select(cols ...string) *QueryBuilder[T] {
	qb.selectCols = cols
	return qb
}

func (qb *QueryBuilder[T]) Where(cond string, vals ...interface{}) *QueryBuilder[T] {
	qb.whereOps = append(qb.whereOps, cond)
	qb.args = append(qb.args, vals...)
	return qb
}

// Join adds a JOIN clause (e.g. "JOIN other_table ON ...")
func (qb *QueryBuilder[T]) Join(clause string) *QueryBuilder[T] {
	qb.joinClauses = append(qb.joinClauses, clause)
	return qb
}

// OrderBy sets the ORDER BY clause
func (qb *QueryBuilder[T]) OrderBy(order string) *QueryBuilder[T] {
	qb.orderBy = order
	return qb
}

// Limit sets the LIMIT clause
func (qb *QueryBuilder[T]) Limit(n int) *QueryBuilder[T] {
	qb.limit = n
	return qb
}

// Offset sets the OFFSET clause
func (qb *QueryBuilder[T]) Offset(n int) *QueryBuilder[T] {
	qb.offset = n
	return qb
}

// Dollar makes Build emit $1, $2, ... placeholders instead of ?.
func (qb *QueryBuilder[T]) Dollar() *QueryBuilder[T] {
	qb.dollar = true
	return qb
}

// Build assembles the SQL query string and returns it with args
func (qb *QueryBuilder[T]) Build() (string, []interface{}) {
	parts := []string{"SELECT"}
	if len(qb.selectCols) > 0 {
		parts = append(parts, strings.Join(qb.selectCols, ", "))
	} else {
		parts = append(parts, "*")
	}
	parts = append(parts, "FROM", qb.table)
	if len(qb.joinClauses) > 0 {
		parts = append(parts, strings.Join(qb.joinClauses, " "))
	}
	if len(qb.whereOps) > 0 {
		parts = append(parts, "WHERE", strings.Join(qb.whereOps, " AND "))
	}
	if qb.orderBy != "" {
		parts = append(parts, "ORDER BY", qb.orderBy)
	}
	if qb.limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", qb.limit))
	}
	if qb.offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", qb.offset))
	}
	query := strings.Join(parts, " ")
	return qb.bind(query), qb.args
}

// BuildCount assembles a COUNT(*) statement over the same FROM, JOIN and
// WHERE clauses, ignoring ordering and paging.
func (qb *QueryBuilder[T]) BuildCount() (string, []interface{}) {
	parts := []string{"SELECT COUNT(*) FROM", qb.table}
	if len(qb.joinClauses) > 0 {
		parts = append(parts, strings.Join(qb.joinClauses, " "))
	}
	if len(qb.whereOps) > 0 {
		parts = append(parts, "WHERE", strings.Join(qb.whereOps, " AND "))
	}
	return qb.bind(strings.Join(parts, " ")), qb.args
}

// First returns a copy of the builder limited to one row.
func (qb *QueryBuilder[T]) First() *QueryBuilder[T] {
	cp := *qb
	cp.limit = 1
	return &cp
}

// bind numbers the ? placeholders outside single-quoted literals.
func (qb *QueryBuilder[T]) bind(query string) string {
	if !qb.dollar {
		return query
	}
	var (
		b      strings.Builder
		n      int
		quoted bool
	)
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == '?' && !quoted:
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

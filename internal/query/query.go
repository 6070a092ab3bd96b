// Package query builds parameterized SQL against the columnar event store.
//
// Two forms exist: the structured Builder covers the common
// select/where/group/order/limit shape, and NewRaw covers hand-written
// multi-CTE statements the builder cannot express. Every value is bound as
// a named parameter; only fixed column names, directions, and static
// predicates appear as SQL literals.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Query is a rendered statement plus its bound parameters.
type Query struct {
	sql  string
	args map[string]any
}

// NewRaw wraps a hand-written SQL statement with its parameters.
func NewRaw(sql string, args map[string]any) Query {
	if args == nil {
		args = map[string]any{}
	}
	return Query{sql: sql, args: args}
}

// SQL returns the statement text.
func (q Query) SQL() string { return q.sql }

// Args returns the bound parameters.
func (q Query) Args() map[string]any { return q.args }

// Predicate is one WHERE condition with its bound parameters. Parameter
// names must be unique across all predicates of a query.
type Predicate struct {
	Expr string
	Args map[string]any
}

// Direction orders a sort column.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

type selectColumn struct {
	alias string
	expr  string
}

type orderColumn struct {
	expr      string
	direction Direction
}

// Builder accumulates the parts of a SELECT. Select and GroupBy order is
// preserved; WHERE predicates form an implicit conjunction and their map
// keys exist for traceability only. Configuration errors (duplicate filter
// key, duplicate parameter name, empty select) are captured and surface
// from Build before any SQL is issued.
type Builder struct {
	table   string
	selects []selectColumn
	where   map[string]Predicate
	groupBy []string
	orderBy []orderColumn
	limit   int
	err     error
}

// NewBuilder starts a query against table.
func NewBuilder(table string) *Builder {
	return &Builder{
		table: table,
		where: make(map[string]Predicate),
	}
}

// Select appends a projected column. Order is significant.
func (b *Builder) Select(alias, expr string) *Builder {
	b.selects = append(b.selects, selectColumn{alias: alias, expr: expr})
	return b
}

// Where adds a predicate under key. Reusing a key is a configuration error,
// never a silent overwrite.
func (b *Builder) Where(key string, p Predicate) *Builder {
	if _, exists := b.where[key]; exists {
		b.fail(fmt.Errorf("filter key %q already in use", key))
		return b
	}
	b.where[key] = p
	return b
}

// WhereAll merges a set of predicates, typically BaseFilters plus
// caller-supplied dimension filters.
func (b *Builder) WhereAll(filters map[string]Predicate) *Builder {
	keys := lo.Keys(filters)
	sort.Strings(keys)
	for _, key := range keys {
		b.Where(key, filters[key])
	}
	return b
}

// GroupBy appends a grouping expression. Order is significant.
func (b *Builder) GroupBy(expr string) *Builder {
	b.groupBy = append(b.groupBy, expr)
	return b
}

// OrderBy appends a sort expression.
func (b *Builder) OrderBy(expr string, direction Direction) *Builder {
	b.orderBy = append(b.orderBy, orderColumn{expr: expr, direction: direction})
	return b
}

// Limit caps the result size; zero means no LIMIT clause.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build renders the statement. Clauses with no content are omitted
// entirely.
func (b *Builder) Build() (Query, error) {
	if b.err != nil {
		return Query{}, b.err
	}
	if b.table == "" {
		return Query{}, fmt.Errorf("query has no table")
	}
	if len(b.selects) == 0 {
		return Query{}, fmt.Errorf("query against %s has an empty select list", b.table)
	}

	args := make(map[string]any)
	var sb strings.Builder

	sb.WriteString("SELECT ")
	for i, col := range b.selects {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col.expr)
		if col.alias != "" {
			sb.WriteString(" AS ")
			sb.WriteString(col.alias)
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	if len(b.where) > 0 {
		keys := lo.Keys(b.where)
		sort.Strings(keys)
		sb.WriteString(" WHERE ")
		for i, key := range keys {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			p := b.where[key]
			sb.WriteString(p.Expr)
			for name, value := range p.Args {
				if _, exists := args[name]; exists {
					return Query{}, fmt.Errorf("parameter %q bound twice", name)
				}
				args[name] = value
			}
		}
	}

	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}

	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, col := range b.orderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(col.expr)
			sb.WriteString(" ")
			sb.WriteString(string(col.direction))
		}
	}

	if b.limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", b.limit))
	}

	return Query{sql: sb.String(), args: args}, nil
}

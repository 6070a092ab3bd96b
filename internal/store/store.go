// Package store wraps the ClickHouse driver with the small surface the
// analytics and rollup layers need: parameterized queries, commands, and
// batch inserts. Query results are returned as generic rows with numeric
// columns canonicalized from the result metadata.
package store

import (
	"context"
	"fmt"
	"time"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Querier runs a SELECT and returns its rows.
type Querier interface {
	Query(ctx context.Context, sql string, params map[string]any) ([]Row, error)
}

// Execer runs a statement that returns no rows (DDL, DELETE, OPTIMIZE).
type Execer interface {
	Command(ctx context.Context, sql string, params map[string]any) error
}

// Inserter writes rows into a table as a single batch.
type Inserter interface {
	Insert(ctx context.Context, table string, rows []Row) error
}

// Store is the full client contract.
type Store interface {
	Querier
	Execer
	Inserter
	Ping(ctx context.Context) error
	Close() error
}

// Int64 reads a row column as int64, tolerating the integer widths the
// driver may hand back. Missing or non-numeric values return 0.
func (r Row) Int64(column string) int64 {
	switch v := r[column].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case uint:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	default:
		return 0
	}
}

// Float64 reads a row column as float64. Missing or non-numeric values
// return 0.
func (r Row) Float64(column string) float64 {
	switch v := r[column].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		return float64(r.Int64(column))
	}
}

// String reads a row column as a string.
func (r Row) String(column string) string {
	if s, ok := r[column].(string); ok {
		return s
	}
	if v, ok := r[column]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// Time reads a row column as a time.Time; the zero time is returned when
// the column is absent or not a timestamp.
func (r Row) Time(column string) time.Time {
	if t, ok := r[column].(time.Time); ok {
		return t
	}
	return time.Time{}
}

package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"sitescope/internal/config"
)

// Client is the concrete ClickHouse-backed store.
type Client struct {
	conn driver.Conn
}

// NewClient opens a ClickHouse connection from config.
func NewClient(cfg *config.Config) (*Client, error) {
	options := &clickhouse_go.Options{
		Addr: []string{cfg.ClickHouseAddr},
		Auth: clickhouse_go.Auth{
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		},
		DialTimeout:      cfg.QueryTimeout(),
		ReadTimeout:      cfg.QueryTimeout(),
		ConnOpenStrategy: clickhouse_go.ConnOpenInOrder,
	}

	conn, err := clickhouse_go.Open(options)
	if err != nil {
		return nil, fmt.Errorf("init clickhouse client: %w", err)
	}

	return &Client{conn: conn}, nil
}

// NewClientWithConn wraps an existing driver connection; used by tests.
func NewClientWithConn(conn driver.Conn) *Client {
	return &Client{conn: conn}
}

// Query executes a parameterized SELECT and scans every row into a Row map.
// Numeric canonicalization is decided once per column from the result
// metadata, then applied to all rows (see coerce.go).
func (c *Client) Query(ctx context.Context, sql string, params map[string]any) ([]Row, error) {
	rows, err := c.conn.Query(ctx, sql, namedArgs(params)...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()
	coercers := buildCoercers(types)

	var out []Row
	for rows.Next() {
		targets := make([]any, len(types))
		for i, ct := range types {
			targets[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}

		row := make(Row, len(columns))
		for i, name := range columns {
			row[name] = coercers[i](unwrap(targets[i]))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}

	return out, nil
}

// Command executes a statement that returns no rows.
func (c *Client) Command(ctx context.Context, sql string, params map[string]any) error {
	if err := c.conn.Exec(ctx, sql, namedArgs(params)...); err != nil {
		return fmt.Errorf("clickhouse command: %w", err)
	}
	return nil
}

// Insert writes rows into table as one batch. All rows must share the same
// column set; columns are sent in a deterministic order.
func (c *Client) Insert(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	columns := make([]string, 0, len(rows[0]))
	for column := range rows[0] {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	stmt := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
	batch, err := c.conn.PrepareBatch(ctx, stmt)
	if err != nil {
		return fmt.Errorf("clickhouse prepare batch: %w", err)
	}

	for _, row := range rows {
		values := make([]any, len(columns))
		for i, column := range columns {
			values[i] = row[column]
		}
		if err := batch.Append(values...); err != nil {
			return fmt.Errorf("clickhouse batch append: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse batch send: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.conn.Close()
}

// namedArgs converts a parameter map to the driver's named-argument form.
// Queries reference parameters as @name.
func namedArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	args := make([]any, 0, len(params))
	for name, value := range params {
		args = append(args, clickhouse_go.Named(name, value))
	}
	return args
}

// unwrap dereferences the scan target produced from the column scan type.
// Nullable columns scan into a pointer-to-pointer; a nil inner pointer
// becomes a nil value.
func unwrap(target any) any {
	v := reflect.ValueOf(target).Elem()
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

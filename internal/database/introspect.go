package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used for introspection and ad-hoc
// SQL, so a pgx.Tx can be passed as well.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Table describes one relation from information_schema.tables.
type Table struct {
	Name string
	Type string
}

// Column describes one column from information_schema.columns.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Default  *string
}

// Tables lists the tables and views in schema.
func Tables(ctx context.Context, q Querier, schema string) ([]Table, error) {
	rows, err := q.Query(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name
	`, schema)
	if err != nil {
		return nil, fmt.Errorf("select tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Table, error) {
		var t Table
		err := row.Scan(&t.Name, &t.Type)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tables: %w", err)
	}
	return tables, nil
}

// Columns lists the columns of schema.table in ordinal order. An unknown
// table yields an empty slice.
func Columns(ctx context.Context, q Querier, schema, table string) ([]Column, error) {
	rows, err := q.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("select columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var c Column
		err := row.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	return cols, nil
}

// QualifiedName quotes a possibly schema-qualified table name.
func QualifiedName(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// RowCount counts the rows of a table. name may be schema-qualified.
func RowCount(ctx context.Context, q Querier, name string) (int64, error) {
	var n int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM `+QualifiedName(name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Result is the outcome of an ad-hoc statement.
type Result struct {
	Columns []string
	Rows    [][]any
	Tag     string
}

// Exec runs one ad-hoc statement and collects any rows it returns.
func Exec(ctx context.Context, q Querier, sql string) (*Result, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	defer rows.Close()

	res := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	res.Tag = rows.CommandTag().String()
	return res, nil
}

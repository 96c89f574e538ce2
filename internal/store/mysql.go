package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type mysqlBackend struct {
	db *sql.DB
}

func openMySQL(dsn string, maxOpenConns int) (*mysqlBackend, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// DATE and DATETIME columns scan into time.Time.
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return &mysqlBackend{db: db}, nil
}

func (b *mysqlBackend) query(ctx context.Context, q string, args ...any) (resultRows, error) {
	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &sqlRows{rows: rows, cols: cols}, nil
}

func (b *mysqlBackend) queryRow(ctx context.Context, q string, args ...any) rowScanner {
	return b.db.QueryRowContext(ctx, q, args...)
}

func (b *mysqlBackend) ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *mysqlBackend) close() { _ = b.db.Close() }

// sqlRows adapts *sql.Rows to resultRows.
type sqlRows struct {
	rows *sql.Rows
	cols []*sql.ColumnType
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { _ = r.rows.Close() }

func (r *sqlRows) Columns() []string {
	names := make([]string, len(r.cols))
	for i, c := range r.cols {
		names[i] = c.Name()
	}
	return names
}

func (r *sqlRows) Values() ([]any, error) {
	raw := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range raw {
		raw[i] = decodeMySQLValue(v, r.cols[i].DatabaseTypeName())
	}
	return raw, nil
}

// decodeMySQLValue turns the driver's []byte payloads into numbers or
// strings according to the column type. The text protocol returns every
// value as bytes and DECIMAL is bytes under both protocols.
func decodeMySQLValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	switch strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case "DECIMAL", "FLOAT", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT":
		return b
	}
	return s
}

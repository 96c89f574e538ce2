package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgPool is the subset of *pgxpool.Pool the store uses.
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type pgBackend struct {
	pool PgPool
}

func openPostgres(ctx context.Context, dsn string, maxOpenConns int) (*pgBackend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxOpenConns > 0 {
		cfg.MaxConns = int32(maxOpenConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	return &pgBackend{pool: pool}, nil
}

func (b *pgBackend) query(ctx context.Context, q string, args ...any) (resultRows, error) {
	rows, err := b.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return &pgRows{Rows: rows}, nil
}

func (b *pgBackend) queryRow(ctx context.Context, q string, args ...any) rowScanner {
	return b.pool.QueryRow(ctx, q, args...)
}

func (b *pgBackend) ping(ctx context.Context) error { return b.pool.Ping(ctx) }

func (b *pgBackend) close() { b.pool.Close() }

// pgRows adapts pgx.Rows to resultRows.
type pgRows struct {
	pgx.Rows
}

func (r *pgRows) Columns() []string {
	fields := r.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func (r *pgRows) Values() ([]any, error) {
	vals, err := r.Rows.Values()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		vals[i] = decodePgValue(v)
	}
	return vals, nil
}

// decodePgValue converts pgtype wrappers that encoding/json and the stats
// package do not understand.
func decodePgValue(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", n[0:4], n[4:6], n[6:8], n[8:10], n[10:16])
	}
	return v
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepo stores documents of type T as JSONB rows keyed by id, with
// an optional project_id column for the (project_id, ...) queries spec §6
// calls for. Rows live in one table per collection ("ingestion_jobs",
// "visualizations").
type PostgresRepo[T any, ID comparable] struct {
	pool      *pgxpool.Pool
	table     string
	projectOf func(T) string
	idOf      func(T) ID
}

// NewPostgresRepo creates a repository over `table`, which must have the
// columns (id text primary key, project_id text, doc jsonb, updated_at
// timestamptz).
func NewPostgresRepo[T any, ID comparable](pool *pgxpool.Pool, table string, idOf func(T) ID, projectOf func(T) string) *PostgresRepo[T, ID] {
	return &PostgresRepo[T, ID]{pool: pool, table: table, idOf: idOf, projectOf: projectOf}
}

var _ Repository[any, string] = (*PostgresRepo[any, string])(nil)

func (r *PostgresRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	var raw []byte
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, r.table), id)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, fmt.Errorf("%s %v not found", r.table, id)
		}
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func (r *PostgresRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT doc FROM %s`, r.table)
	args := []any{}
	n := 1
	if projectID, ok := opts.Filter["project_id"]; ok {
		query += fmt.Sprintf(" WHERE project_id = $%d", n)
		args = append(args, projectID)
		n++
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC OFFSET $%d LIMIT $%d", n, n+1)
	args = append(args, opts.Offset, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PostgresRepo[T, ID]) Create(ctx context.Context, entity T) (T, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		var zero T
		return zero, err
	}
	_, err = r.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, project_id, doc, updated_at) VALUES ($1, $2, $3, now())`, r.table),
		r.idOf(entity), r.projectOf(entity), raw)
	if err != nil {
		var zero T
		return zero, err
	}
	return entity, nil
}

func (r *PostgresRepo[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		var zero T
		return zero, err
	}
	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = $2, project_id = $3, updated_at = now() WHERE id = $1`, r.table),
		r.idOf(entity), raw, r.projectOf(entity))
	if err != nil {
		var zero T
		return zero, err
	}
	if tag.RowsAffected() == 0 {
		var zero T
		return zero, fmt.Errorf("%s %v not found", r.table, r.idOf(entity))
	}
	return entity, nil
}

func (r *PostgresRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	return err
}

// Schema is the DDL a new deployment should run before using PostgresRepo
// for the given table (spec §6 "Document database").
func Schema(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	project_id text NOT NULL,
	doc jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %s_project_id_idx ON %s (project_id);
`, table, table, table)
}

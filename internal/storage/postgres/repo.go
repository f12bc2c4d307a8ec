package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"buscador/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - The filtered, paginated search query and its matching count
  - The distinct-province listing
  - Idempotent schema/index provisioning, including trigram indexes
  - Transactional full-replace bulk loading

Query semantics match the SQLite and SQL Server implementations.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// Ping runs the trivial connectivity probe used by the health endpoint.
func (r *Repo) Ping(ctx context.Context) error {
	var one int
	return r.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS establecimientos (
	id SERIAL PRIMARY KEY,
	nombre VARCHAR(255) NOT NULL,
	direccion VARCHAR(500),
	localidad VARCHAR(255),
	provincia VARCHAR(255)
);`

// createIndexSQL lists the five search indexes: plain btree indexes for
// equality/prefix lookups plus GIN trigram indexes that accelerate the
// ILIKE substring matches on nombre and direccion.
var createIndexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_provincia ON establecimientos (provincia);`,
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_nombre ON establecimientos (nombre);`,
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_direccion ON establecimientos (direccion);`,
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_nombre_ilike ON establecimientos USING gin (nombre gin_trgm_ops);`,
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_direccion_ilike ON establecimientos USING gin (direccion gin_trgm_ops);`,
}

// The trigram indexes need the pg_trgm extension. Creating it here keeps
// EnsureSchema self-contained on databases where the extension was never
// enabled; it is a no-op everywhere else.
const createTrgmExtensionSQL = `CREATE EXTENSION IF NOT EXISTS pg_trgm;`

// EnsureSchema creates the establecimientos table and its indexes.
//
// Every statement uses IF NOT EXISTS, so EnsureSchema is safe to rerun
// indefinitely and has no destructive side effects.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createTrgmExtensionSQL); err != nil {
		return fmt.Errorf("create pg_trgm extension: %w", err)
	}
	if _, err := r.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table establecimientos: %w", err)
	}
	for _, q := range createIndexSQL {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// ReplaceAll swaps the full table contents inside one transaction.
//
// Ordering inside the transaction:
//  1. DELETE every existing row
//  2. batched INSERTs (batchSize rows per statement)
//  3. index creation from EnsureSchema's list
//
// Postgres DDL is transactional, so a failure at any step rolls back the
// delete, the inserts and the index creation together.
func (r *Repo) ReplaceAll(ctx context.Context, rows []storage.Establecimiento, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = storage.DefaultBatchSize
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM establecimientos;`); err != nil {
		return 0, fmt.Errorf("delete existing rows: %w", err)
	}

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		sql, args := buildInsertSQL(rows[start:end])
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("insert batch at row %d: %w", start, err)
		}
		total += cmd.RowsAffected()
	}

	if _, err := tx.Exec(ctx, createTrgmExtensionSQL); err != nil {
		return 0, fmt.Errorf("create pg_trgm extension: %w", err)
	}
	for _, q := range createIndexSQL {
		if _, err := tx.Exec(ctx, q); err != nil {
			return 0, fmt.Errorf("create index: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and value
//     ordering can be unit tested without a database.
//
// The id column is omitted; it is generated by the SERIAL sequence.
func buildInsertSQL(rows []storage.Establecimiento) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO establecimientos (nombre, direccion, localidad, provincia) VALUES ")

	args := make([]any, 0, len(rows)*4)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", p, p+1, p+2, p+3)
		args = append(args, row.Nombre, row.Direccion, row.Localidad, row.Provincia)
		p += 4
	}

	b.WriteString(";")
	return b.String(), args
}

// buildSearchSQL constructs the filtered, paginated list query.
//
// Filter values are always bound parameters; only static SQL fragments are
// concatenated. The WHERE 1=1 base keeps the optional AND clauses uniform.
//
// Ordering is nombre ASC with id ASC as the deterministic tie-break so that
// pagination is stable when names repeat.
func buildSearchSQL(f storage.SearchFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT id, nombre, direccion, localidad, provincia
FROM establecimientos
WHERE 1=1`)

	args := make([]any, 0, 4)
	p := 1

	if pat, ok := storage.SearchPattern(f.Search); ok {
		fmt.Fprintf(&b, " AND localidad ILIKE $%d", p)
		args = append(args, pat)
		p++
	}
	if pat, ok := storage.SearchPattern(f.Provincia); ok {
		fmt.Fprintf(&b, " AND provincia ILIKE $%d", p)
		args = append(args, pat)
		p++
	}

	fmt.Fprintf(&b, " ORDER BY nombre ASC, id ASC LIMIT $%d OFFSET $%d", p, p+1)
	args = append(args, f.Limit, f.Skip)

	return b.String(), args
}

// buildCountSQL constructs the matching total query: structurally identical
// to buildSearchSQL minus ORDER BY, LIMIT and OFFSET.
func buildCountSQL(f storage.SearchFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM establecimientos WHERE 1=1`)

	args := make([]any, 0, 2)
	p := 1

	if pat, ok := storage.SearchPattern(f.Search); ok {
		fmt.Fprintf(&b, " AND localidad ILIKE $%d", p)
		args = append(args, pat)
		p++
	}
	if pat, ok := storage.SearchPattern(f.Provincia); ok {
		fmt.Fprintf(&b, " AND provincia ILIKE $%d", p)
		args = append(args, pat)
	}

	return b.String(), args
}

const provinciasSQL = `SELECT DISTINCT provincia
FROM establecimientos
WHERE provincia IS NOT NULL AND provincia != ''
ORDER BY provincia ASC`

// Search returns the filtered page of establishments.
func (r *Repo) Search(ctx context.Context, f storage.SearchFilter) ([]storage.Establecimiento, error) {
	sql, args := buildSearchSQL(f)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.Establecimiento, 0, f.Limit)
	for rows.Next() {
		var e storage.Establecimiento
		// The optional columns are nullable when the table pre-exists
		// with externally loaded data, so scan through pointers.
		var direccion, localidad, provincia *string
		if err := rows.Scan(&e.ID, &e.Nombre, &direccion, &localidad, &provincia); err != nil {
			return nil, err
		}
		e.Direccion = deref(direccion)
		e.Localidad = deref(localidad)
		e.Provincia = deref(provincia)
		out = append(out, e)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Count returns the total matching rows, ignoring pagination.
func (r *Repo) Count(ctx context.Context, f storage.SearchFilter) (int64, error) {
	sql, args := buildCountSQL(f)

	var total int64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Provincias returns the distinct non-empty provinces sorted ascending.
// Postgres does the ordering; its collation handles accented names.
func (r *Repo) Provincias(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, provinciasSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

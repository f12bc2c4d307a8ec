package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"buscador/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - There is no ILIKE; case-insensitive matching uses lower() on both
//     sides. SQLite's lower() only folds ASCII without ICU, which is
//     acceptable for a dev/test backend.
//   - There is no trigram index support, so only the three plain indexes
//     are provisioned.
//   - ORDER BY on text is byte order, so the distinct-province list is
//     sorted in Go with Spanish collation instead (storage.SortSpanish).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// One connection only: SQLite serializes writers anyway, and for
	// ":memory:" DSNs every new connection would otherwise see its own
	// empty database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS establecimientos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nombre TEXT NOT NULL,
	direccion TEXT,
	localidad TEXT,
	provincia TEXT
);`

var createIndexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_provincia ON establecimientos (provincia);`,
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_nombre ON establecimientos (nombre);`,
	`CREATE INDEX IF NOT EXISTS idx_establecimientos_direccion ON establecimientos (direccion);`,
}

// EnsureSchema creates the table and indexes. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table establecimientos: %w", err)
	}
	for _, q := range createIndexSQL {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// ReplaceAll deletes all rows and inserts the new set in batches, together
// with index creation, inside a single transaction.
func (r *Repo) ReplaceAll(ctx context.Context, rows []storage.Establecimiento, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = storage.DefaultBatchSize
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM establecimientos;`); err != nil {
		return 0, fmt.Errorf("delete existing rows: %w", err)
	}

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildInsertSQL(rows[start:end])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert batch at row %d: %w", start, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}

	for _, q := range createIndexSQL {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, fmt.Errorf("create index: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildInsertSQL(rows []storage.Establecimiento) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO establecimientos (nombre, direccion, localidad, provincia) VALUES ")

	args := make([]any, 0, len(rows)*4)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, row.Nombre, row.Direccion, row.Localidad, row.Provincia)
	}

	b.WriteString(";")
	return b.String(), args
}

func buildSearchSQL(f storage.SearchFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT id, nombre, direccion, localidad, provincia
FROM establecimientos
WHERE 1=1`)

	args := make([]any, 0, 4)

	if pat, ok := storage.SearchPattern(f.Search); ok {
		b.WriteString(" AND lower(localidad) LIKE lower(?)")
		args = append(args, pat)
	}
	if pat, ok := storage.SearchPattern(f.Provincia); ok {
		b.WriteString(" AND lower(provincia) LIKE lower(?)")
		args = append(args, pat)
	}

	b.WriteString(" ORDER BY nombre ASC, id ASC LIMIT ? OFFSET ?")
	args = append(args, f.Limit, f.Skip)

	return b.String(), args
}

func buildCountSQL(f storage.SearchFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM establecimientos WHERE 1=1`)

	args := make([]any, 0, 2)

	if pat, ok := storage.SearchPattern(f.Search); ok {
		b.WriteString(" AND lower(localidad) LIKE lower(?)")
		args = append(args, pat)
	}
	if pat, ok := storage.SearchPattern(f.Provincia); ok {
		b.WriteString(" AND lower(provincia) LIKE lower(?)")
		args = append(args, pat)
	}

	return b.String(), args
}

func (r *Repo) Search(ctx context.Context, f storage.SearchFilter) ([]storage.Establecimiento, error) {
	q, args := buildSearchSQL(f)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.Establecimiento, 0, f.Limit)
	for rows.Next() {
		var e storage.Establecimiento
		var direccion, localidad, provincia sql.NullString
		if err := rows.Scan(&e.ID, &e.Nombre, &direccion, &localidad, &provincia); err != nil {
			return nil, err
		}
		e.Direccion = direccion.String
		e.Localidad = localidad.String
		e.Provincia = provincia.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context, f storage.SearchFilter) (int64, error) {
	q, args := buildCountSQL(f)

	var total int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Repo) Provincias(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT provincia FROM establecimientos WHERE provincia IS NOT NULL AND provincia != ''`)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	storage.SortSpanish(out)
	return out, nil
}

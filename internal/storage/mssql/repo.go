package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"buscador/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Differences from the Postgres backend:
//   - Placeholders are @pN instead of $N.
//   - Pagination uses ORDER BY ... OFFSET @pN ROWS FETCH NEXT @pM ROWS ONLY.
//   - Case-insensitive matching uses LOWER() on both sides so behavior does
//     not depend on the database's default collation.
//   - There is no trigram index equivalent, so only the three plain indexes
//     are provisioned. CREATE INDEX has no IF NOT EXISTS, so index DDL is
//     guarded with sys.indexes lookups instead.
//   - Like the province list in SQLite, ordering of provinces is done in Go
//     with Spanish collation (storage.SortSpanish).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlserver", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// Connectivity is validated via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

const createTableSQL = `IF OBJECT_ID(N'establecimientos', N'U') IS NULL
CREATE TABLE establecimientos (
	id INT IDENTITY(1,1) PRIMARY KEY,
	nombre NVARCHAR(255) NOT NULL,
	direccion NVARCHAR(500),
	localidad NVARCHAR(255),
	provincia NVARCHAR(255)
);`

var createIndexSQL = []string{
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'idx_establecimientos_provincia')
CREATE INDEX idx_establecimientos_provincia ON establecimientos (provincia);`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'idx_establecimientos_nombre')
CREATE INDEX idx_establecimientos_nombre ON establecimientos (nombre);`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'idx_establecimientos_direccion')
CREATE INDEX idx_establecimientos_direccion ON establecimientos (direccion);`,
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

// SQL Server rejects statements with more than 2100 bound parameters.
// Each row binds 4, so cap rows per statement conservatively.
const maxInsertRows = 2000 / 4

// insertBatchSize resolves the requested batch size against the
// per-statement parameter limit. A request <= 0 means the default.
func insertBatchSize(requested int) int {
	if requested <= 0 {
		requested = storage.DefaultBatchSize
	}
	if requested > maxInsertRows {
		return maxInsertRows
	}
	return requested
}

// ReplaceAll deletes all rows and inserts the new set in batches, together
// with index creation, inside a single transaction. Batches larger than the
// parameter limit allows are split into smaller statements.
func (r *Repo) ReplaceAll(ctx context.Context, rows []storage.Establecimiento, batchSize int) (int64, error) {
	batchSize = insertBatchSize(batchSize)

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
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(@p%d, @p%d, @p%d, @p%d)", p, p+1, p+2, p+3)
		args = append(args, row.Nombre, row.Direccion, row.Localidad, row.Provincia)
		p += 4
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
	p := 1

	if pat, ok := storage.SearchPattern(f.Search); ok {
		fmt.Fprintf(&b, " AND LOWER(localidad) LIKE LOWER(@p%d)", p)
		args = append(args, pat)
		p++
	}
	if pat, ok := storage.SearchPattern(f.Provincia); ok {
		fmt.Fprintf(&b, " AND LOWER(provincia) LIKE LOWER(@p%d)", p)
		args = append(args, pat)
		p++
	}

	fmt.Fprintf(&b, " ORDER BY nombre ASC, id ASC OFFSET @p%d ROWS FETCH NEXT @p%d ROWS ONLY", p, p+1)
	args = append(args, f.Skip, f.Limit)

	return b.String(), args
}

func buildCountSQL(f storage.SearchFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM establecimientos WHERE 1=1`)

	args := make([]any, 0, 2)
	p := 1

	if pat, ok := storage.SearchPattern(f.Search); ok {
		fmt.Fprintf(&b, " AND LOWER(localidad) LIKE LOWER(@p%d)", p)
		args = append(args, pat)
		p++
	}
	if pat, ok := storage.SearchPattern(f.Provincia); ok {
		fmt.Fprintf(&b, " AND LOWER(provincia) LIKE LOWER(@p%d)", p)
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

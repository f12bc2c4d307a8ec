package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Establecimiento is a single establishment row. It is constructed at the
// data-access boundary; handlers and the loader never deal in raw rows.
type Establecimiento struct {
	ID        int64  `json:"id"`
	Nombre    string `json:"nombre"`
	Direccion string `json:"direccion"`
	Localidad string `json:"localidad"`
	Provincia string `json:"provincia"`
}

// SearchFilter holds the optional filters and pagination bounds for a search.
//
// Search matches localidad, Provincia matches provincia; both are
// case-insensitive substring matches and are ignored when empty after
// trimming. Backends must pass both values as bound parameters, never
// interpolated into SQL text.
type SearchFilter struct {
	Search    string
	Provincia string
	Skip      int
	Limit     int
}

// Pagination and batching defaults shared by the API and the loader.
const (
	DefaultLimit     = 25
	MaxLimit         = 100
	DefaultBatchSize = 1000
)

// SearchPattern returns the LIKE/ILIKE pattern for a filter value and whether
// the filter is active at all. Whitespace-only values impose no constraint.
func SearchPattern(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return "%" + v + "%", true
}

// Config is the minimal configuration needed to create a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic view of the establecimientos table.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the API and the loader need. Each backend implements these
// semantics in its own idiomatic way (Postgres ILIKE, SQLite lower() LIKE,
// SQL Server OFFSET/FETCH, etc).
type Repository interface {
	// Close releases any backend resources (connections, pools, etc).
	// Callers should treat Close as "call once" at process shutdown.
	Close()

	// Ping runs a trivial connectivity probe (SELECT 1).
	Ping(ctx context.Context) error

	// EnsureSchema creates the establecimientos table and its search indexes.
	// All DDL uses create-if-not-exists semantics and is safe to rerun.
	EnsureSchema(ctx context.Context) error

	// ReplaceAll deletes every existing row and inserts rows in batches of
	// batchSize, all inside a single transaction together with index
	// creation. On any error the transaction is rolled back: the delete,
	// the inserts and the index DDL are all-or-nothing.
	//
	// A batchSize <= 0 falls back to DefaultBatchSize.
	ReplaceAll(ctx context.Context, rows []Establecimiento, batchSize int) (int64, error)

	// Search returns the filtered page ordered by nombre ASC with id ASC as
	// the tie-break, so repeated identical queries paginate stably.
	Search(ctx context.Context, f SearchFilter) ([]Establecimiento, error)

	// Count returns the total number of rows matching f, ignoring Skip/Limit.
	Count(ctx context.Context, f SearchFilter) (int64, error)

	// Provincias returns the distinct, non-null, non-empty province values
	// sorted ascending.
	Provincias(ctx context.Context) ([]string, error)
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. The kind
// string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

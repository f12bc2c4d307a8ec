package mssql

import (
	"reflect"
	"strings"
	"testing"

	"buscador/internal/storage"
)

func TestBuildSearchSQL_OffsetFetchPagination(t *testing.T) {
	t.Parallel()

	sql, args := buildSearchSQL(storage.SearchFilter{
		Search: "madrid",
		Skip:   50,
		Limit:  25,
	})

	if !strings.Contains(sql, "LOWER(localidad) LIKE LOWER(@p1)") {
		t.Fatalf("missing localidad filter: %q", sql)
	}
	if !strings.Contains(sql, "ORDER BY nombre ASC, id ASC OFFSET @p2 ROWS FETCH NEXT @p3 ROWS ONLY") {
		t.Fatalf("missing OFFSET/FETCH pagination: %q", sql)
	}

	// SQL Server takes skip before limit, the reverse of the LIMIT/OFFSET
	// backends.
	want := []any{"%madrid%", 50, 25}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
}

func TestBuildCountSQL_NoPaginationClauses(t *testing.T) {
	t.Parallel()

	sql, args := buildCountSQL(storage.SearchFilter{Provincia: " Sevilla ", Skip: 10, Limit: 10})

	if !strings.Contains(sql, "LOWER(provincia) LIKE LOWER(@p1)") {
		t.Fatalf("missing provincia filter: %q", sql)
	}
	for _, forbidden := range []string{"ORDER BY", "OFFSET", "FETCH"} {
		if strings.Contains(sql, forbidden) {
			t.Fatalf("count query must not contain %s: %q", forbidden, sql)
		}
	}
	if want := []any{"%Sevilla%"}; !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
}

func TestBuildInsertSQL_PlaceholderNumbering(t *testing.T) {
	t.Parallel()

	sql, args := buildInsertSQL([]storage.Establecimiento{
		{Nombre: "Uno"},
		{Nombre: "Dos"},
	})

	if !strings.Contains(sql, "(@p1, @p2, @p3, @p4), (@p5, @p6, @p7, @p8)") {
		t.Fatalf("placeholder numbering wrong: %q", sql)
	}
	if len(args) != 8 {
		t.Fatalf("got %d args, want 8", len(args))
	}
}

func TestInsertBatchSize_RespectsParameterLimit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		requested int
		want      int
	}{
		{0, maxInsertRows},
		{-1, maxInsertRows},
		{storage.DefaultBatchSize, maxInsertRows},
		{maxInsertRows, maxInsertRows},
		{100, 100},
	}
	for _, tc := range cases {
		if got := insertBatchSize(tc.requested); got != tc.want {
			t.Fatalf("insertBatchSize(%d) = %d, want %d", tc.requested, got, tc.want)
		}
	}
}

func TestBuildInsertSQL_MaxBatchStaysUnderParameterLimit(t *testing.T) {
	t.Parallel()

	rows := make([]storage.Establecimiento, insertBatchSize(storage.DefaultBatchSize))
	for i := range rows {
		rows[i] = storage.Establecimiento{Nombre: "Estanco"}
	}

	sql, args := buildInsertSQL(rows)

	// SQL Server rejects any statement binding more than 2100 parameters.
	if len(args) > 2100 {
		t.Fatalf("statement binds %d parameters, over the 2100 limit", len(args))
	}
	if got := strings.Count(sql, "@p"); got != len(args) {
		t.Fatalf("placeholders = %d, args = %d", got, len(args))
	}
}

func TestDDL_GuardedForIdempotency(t *testing.T) {
	t.Parallel()

	if !strings.Contains(createTableSQL, "IF OBJECT_ID") {
		t.Fatalf("table DDL must be guarded: %q", createTableSQL)
	}
	for _, q := range createIndexSQL {
		if !strings.Contains(q, "IF NOT EXISTS (SELECT 1 FROM sys.indexes") {
			t.Fatalf("index DDL must be guarded: %q", q)
		}
	}
}

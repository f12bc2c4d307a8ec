// Package all registers every storage backend with the factory.
//
// Binaries blank-import this package so the configured backend kind can be
// resolved at runtime without each main listing drivers individually.
package all

import (
	_ "buscador/internal/storage/mssql"
	_ "buscador/internal/storage/postgres"
	_ "buscador/internal/storage/sqlite"
)

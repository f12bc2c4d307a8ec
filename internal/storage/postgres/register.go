package postgres

import "buscador/internal/storage"

func init() {
	// registers the Postgres backend factory
	storage.Register("postgres", New)
}

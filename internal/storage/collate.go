package storage

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortSpanish sorts values in place using Spanish collation rules.
//
// Why this exists:
//   - Province names carry accents ("Ávila", "Cádiz", "León"). Postgres
//     orders them correctly with a locale-aware collation, but SQLite and
//     SQL Server deployments here do not configure one, and plain byte
//     ordering puts "Ávila" after "Zamora".
//   - Sorting the (small) distinct-province set in Go keeps the ordering
//     consistent across backends.
func SortSpanish(values []string) {
	if len(values) < 2 {
		return
	}
	collate.New(language.Spanish).SortStrings(values)
}

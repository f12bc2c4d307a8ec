// Package loader ingests the establecimientos JSON dataset into a
// storage.Repository with full-replace semantics.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"buscador/internal/storage"
)

// EnvelopeKey is the top-level JSON key holding the record array.
const EnvelopeKey = "establecimientos"

// ErrMissingKey is returned when the input document has no top-level
// "establecimientos" key. Callers can check it with errors.Is.
var ErrMissingKey = errors.New(`loader: missing "establecimientos" key`)

// Stats summarizes a parse run.
type Stats struct {
	// Parsed counts every record seen in the input array.
	Parsed int
	// Dropped counts records discarded for an empty or absent nombre.
	Dropped int
}

// record is the wire shape of one input element. Absent fields decode to
// the empty string, which is exactly the normalization the table wants.
type record struct {
	Nombre    string `json:"nombre"`
	Direccion string `json:"direccion"`
	Localidad string `json:"localidad"`
	Provincia string `json:"provincia"`
}

// ParseFile opens path and parses it with Parse.
//
// A missing file surfaces as the os.Open error, so callers can distinguish
// not-found (errors.Is(err, fs.ErrNotExist)) from data errors.
func ParseFile(path string) ([]storage.Establecimiento, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	rows, stats, err := Parse(f)
	if err != nil {
		return nil, stats, fmt.Errorf("loader: parse %s: %w", path, err)
	}
	return rows, stats, nil
}

// Parse streams the envelope document from r and returns the surviving
// records.
//
// Streaming behavior:
//   - The root must be a JSON object.
//   - The value under "establecimientos" must be an array; its object
//     elements are decoded one-by-one without buffering the whole array.
//   - Every other top-level value is skipped.
//
// Validation:
//   - Records with an empty or absent nombre are dropped (counted in
//     Stats.Dropped).
//   - Missing optional fields become the empty string.
func Parse(r io.Reader) ([]storage.Establecimiento, Stats, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read first token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, Stats{}, fmt.Errorf("root must be a JSON object, got %v", tok)
	}

	var (
		rows  []storage.Establecimiento
		stats Stats
		found bool
	)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, stats, fmt.Errorf("read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, stats, fmt.Errorf("expected object key, got %v", keyTok)
		}

		if key != EnvelopeKey {
			if err := skipValue(dec); err != nil {
				return nil, stats, fmt.Errorf("skip %q: %w", key, err)
			}
			continue
		}

		found = true

		open, err := dec.Token()
		if err != nil {
			return nil, stats, fmt.Errorf("read %q value: %w", EnvelopeKey, err)
		}
		if d, ok := open.(json.Delim); !ok || d != '[' {
			return nil, stats, fmt.Errorf("%q must be an array, got %v", EnvelopeKey, open)
		}

		for dec.More() {
			var rec record
			if err := dec.Decode(&rec); err != nil {
				return nil, stats, fmt.Errorf("decode record %d: %w", stats.Parsed+1, err)
			}
			stats.Parsed++

			if strings.TrimSpace(rec.Nombre) == "" {
				stats.Dropped++
				continue
			}
			rows = append(rows, storage.Establecimiento{
				Nombre:    rec.Nombre,
				Direccion: rec.Direccion,
				Localidad: rec.Localidad,
				Provincia: rec.Provincia,
			})
		}

		if end, err := dec.Token(); err != nil {
			return nil, stats, fmt.Errorf("read array end: %w", err)
		} else if end != json.Delim(']') {
			return nil, stats, fmt.Errorf("expected array end ']', got %v", end)
		}
	}

	if !found {
		return nil, stats, ErrMissingKey
	}
	return rows, stats, nil
}

// skipValue consumes one complete JSON value from dec, tracking delimiter
// depth so nested arrays/objects are skipped whole.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '[' && d != '{') {
		return nil
	}

	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if dd, ok := t.(json.Delim); ok {
			switch dd {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
	}
	return nil
}

// Load provisions the schema and full-replaces the table contents.
//
// The replace itself (delete, batched inserts, index creation) happens in
// one transaction inside the repository; on error nothing is committed.
func Load(ctx context.Context, repo storage.Repository, rows []storage.Establecimiento, batchSize int) (int64, error) {
	if err := repo.EnsureSchema(ctx); err != nil {
		return 0, fmt.Errorf("loader: ensure schema: %w", err)
	}
	n, err := repo.ReplaceAll(ctx, rows, batchSize)
	if err != nil {
		return 0, fmt.Errorf("loader: replace rows: %w", err)
	}
	return n, nil
}

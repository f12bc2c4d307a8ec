package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"time"

	"buscador/internal/config"
	"buscador/internal/loader"
	"buscador/internal/metrics"
	"buscador/internal/metrics/datadog"
	"buscador/internal/storage"

	// register all backends with the storage factory.
	_ "buscador/internal/storage/all"
)

// main is the entry point for the one-time bulk loader. It parses the input
// JSON file, replaces the full table contents in a single transaction, and
// reports counts. Running it twice leaves the table equal to the last input.
func main() {
	var (
		inputPath         string
		batchSize         int
		metricsBackendFlg string
		metricsTagsFlg    string
	)

	flag.StringVar(&inputPath, "input", "tu_archivo_grande.json", "path to the input JSON file")
	flag.IntVar(&batchSize, "batch-size", storage.DefaultBatchSize, "rows per INSERT batch")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none; overrides env METRICS_BACKEND)")
	flag.StringVar(&metricsTagsFlg, "metrics-tags", "", "extra Datadog tags, comma separated (overrides env METRICS_TAGS)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		if errors.Is(err, config.ErrMissingDatabaseURL) {
			fatalf("config: DATABASE_URL is required")
		}
		fatalf("config: %v", err)
	}

	backendName := cfg.MetricsBackend
	if metricsBackendFlg != "" {
		backendName = metricsBackendFlg
	}
	tagsCSV := cfg.MetricsTags
	if metricsTagsFlg != "" {
		tagsCSV = metricsTagsFlg
	}

	switch backendName {
	case "datadog":
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "buscador_loader",
			Tags:    datadog.ParseTagsCSV(tagsCSV),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	log.Printf("loader: reading %s", inputPath)

	rows, stats, err := loader.ParseFile(inputPath)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			fatalf("loader: input file %s does not exist", inputPath)
		case errors.Is(err, loader.ErrMissingKey):
			fatalf("loader: %s has no %q key at the top level", inputPath, loader.EnvelopeKey)
		default:
			fatalf("loader: %v", err)
		}
	}

	metrics.IncCounter("load_records_total", float64(stats.Parsed), metrics.Labels{"kind": "parsed"})
	metrics.IncCounter("load_records_total", float64(stats.Dropped), metrics.Labels{"kind": "dropped"})

	if *verbose {
		log.Printf("loader: parsed=%d dropped=%d", stats.Parsed, stats.Dropped)
	}

	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.StorageKind, DSN: cfg.DatabaseURL})
	if err != nil {
		fatalf("storage: %v", err)
	}
	defer repo.Close()

	start := time.Now()
	inserted, err := loader.Load(ctx, repo, rows, batchSize)
	if err != nil {
		fatalf("loader: %v", err)
	}
	elapsed := time.Since(start)

	metrics.IncCounter("load_records_total", float64(inserted), metrics.Labels{"kind": "inserted"})
	metrics.ObserveHistogram("load_duration_seconds", elapsed.Seconds(), nil)

	log.Printf("loader: inserted %d of %d parsed rows in %s (dropped %d without nombre)",
		inserted, stats.Parsed, elapsed.Truncate(time.Millisecond), stats.Dropped)
}

func fatalf(format string, a ...any) {
	log.Printf(format, a...)
	os.Exit(1)
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buscador/internal/api"
	"buscador/internal/config"
	"buscador/internal/metrics"
	"buscador/internal/metrics/datadog"
	"buscador/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "buscador/internal/storage/all"
)

// main is the entry point for the API binary. It loads configuration from the
// environment, connects the configured storage backend, optionally starts a
// metrics backend, and serves the HTTP API until interrupted.
func main() {
	var (
		addrFlg           string
		metricsBackendFlg string
		metricsTagsFlg    string
	)

	flag.StringVar(&addrFlg, "addr", "", "listen address (overrides env ADDR)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none; overrides env METRICS_BACKEND)")
	flag.StringVar(&metricsTagsFlg, "metrics-tags", "", "extra Datadog tags, comma separated (overrides env METRICS_TAGS)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		if errors.Is(err, config.ErrMissingDatabaseURL) {
			log.Fatalf("config: DATABASE_URL is required")
		}
		log.Fatalf("config: %v", err)
	}

	// Precedence for each knob: flag → env → default.
	addr := cfg.Addr
	if addrFlg != "" {
		addr = addrFlg
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
		extraTags := datadog.ParseTagsCSV(tagsCSV)

		// The backend starts its own periodic flush goroutine; Close()
		// stops it and performs a final flush.
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "buscador_api",
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v tags=%v", backendName, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.StorageKind, DSN: cfg.DatabaseURL})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		log.Printf("storage: initial ping failed: %v (the API will keep serving; /health reports status)", err)
	} else if *verbose {
		log.Printf("storage: connected (kind=%s)", cfg.StorageKind)
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewHandler(repo),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Shut down cleanly on SIGINT/SIGTERM so in-flight requests finish and
	// the deferred metrics flush runs.
	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http: shutdown: %v", err)
		}
		close(done)
	}()

	log.Printf("http: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http: %v", err)
	}
	<-done
}

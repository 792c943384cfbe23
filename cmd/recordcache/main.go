// recordcache - in-memory multi-index record store with a PostgreSQL
// compatible query surface.
//
// Loads a directory of JSON records into an indexed in-memory store and
// serves it over the Postgres wire protocol.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adrianmcphee/recordcache"
	"github.com/adrianmcphee/recordcache/internal/protocol"
)

func main() {
	var (
		port        = flag.Int("port", 5433, "Port to listen on")
		dataDir     = flag.String("data", "./data", "Directory of JSON record files")
		table       = flag.String("table", "records", "Name the store is bound under")
		keyField    = flag.String("key", "id", "Primary key field")
		indexFields = flag.String("index", "", "Comma-separated fields to build secondary indexes on")
		foldKeys    = flag.Bool("fold-keys", false, "Compare index keys case-insensitively")
		metricsAddr = flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (empty = disabled)")
		verbose     = flag.Bool("verbose", false, "Human-readable debug logging")
	)
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lshortfile)

	logger, err := newLogger(*verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	opts := recordcache.Options{
		CaseInsensitiveKeys: *foldKeys,
		Logger:              logger,
	}

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		opts.Metrics = recordcache.NewPrometheusMetrics(registry)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	source := recordcache.NewDirSource(*dataDir)
	store, err := recordcache.LoadWithOptions(context.Background(), source, *keyField, opts)
	if err != nil {
		log.Fatalf("Failed to load store: %v", err)
	}

	for _, field := range splitFields(*indexFields) {
		if err := store.NewIndex(field); err != nil {
			log.Fatalf("Failed to build index on %q: %v", field, err)
		}
	}

	registry := recordcache.NewRegistry()
	if err := registry.Bind(*table, store); err != nil {
		log.Fatalf("Failed to bind store: %v", err)
	}

	server := protocol.NewServer(*port, registry)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newLogger(verbose bool) (*recordcache.ZapLogger, error) {
	if verbose {
		return recordcache.NewDevelopmentZapLogger()
	}
	return recordcache.NewProductionZapLogger()
}

func splitFields(s string) []string {
	if s == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

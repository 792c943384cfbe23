package recordcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Source loads a batch of records from an external system. The batch
// becomes a store's initial canonical collection; its order is the order
// the source yields records in.
type Source interface {
	// Name identifies the source in logs and errors
	Name() string

	// Load fetches every record the source holds
	Load(ctx context.Context) ([]Record, error)
}

// Load builds a store keyed on keyField from everything a source holds.
func Load(ctx context.Context, src Source, keyField string) (*Store, error) {
	return LoadWithOptions(ctx, src, keyField, Options{})
}

// LoadWithOptions is Load with explicit store options.
func LoadWithOptions(ctx context.Context, src Source, keyField string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	start := time.Now()
	records, err := src.Load(ctx)
	if err != nil {
		metrics.Increment(MetricLoadErrors)
		logger.Error("source load failed", "source", src.Name(), "error", err)
		return nil, fmt.Errorf("load from %s: %w", src.Name(), err)
	}

	duration := time.Since(start)
	metrics.Timing(MetricLoadDuration, duration)
	metrics.Histogram(MetricLoadRecords, float64(len(records)))
	logger.Info("source loaded",
		"source", src.Name(),
		"records", len(records),
		"duration_ms", duration.Milliseconds(),
	)

	return NewWithOptions(records, keyField, opts)
}

// decodeRecords parses a JSON payload holding either a single record object
// or an array of record objects.
func decodeRecords(data []byte) ([]Record, error) {
	var many []Record
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}

	var one Record
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []Record{one}, nil
}

package recordcache

import (
	"fmt"
	"sync"
	"time"
)

// HealthMonitor provides automated invariant checking and drift detection
// for a store's indexes.
//
// A correctly used store cannot drift, but callers that mutate records in
// place around the store's operations can strand index entries. The monitor
// makes that visible before it surfaces as a wrong query result, and offers
// a rebuild-based repair path.
type HealthMonitor struct {
	store   *Store
	logger  Logger
	metrics Metrics

	// Configuration
	checkInterval  time.Duration
	driftThreshold float64 // Alert if drift > this percentage

	// State
	running  bool
	stopChan chan struct{}
	mu       sync.Mutex
}

// HealthReport contains the results of an invariant check
type HealthReport struct {
	Timestamp       time.Time
	Records         int
	Indexes         int
	MissingEntries  int // canonical records absent from some index
	OrphanedEntries int // index entries with no canonical record behind them
	StaleEntries    int // entries whose record no longer keys to its bucket
	DriftPercentage float64
	Problems        []string
}

// Healthy reports whether the check found no invariant violations.
func (r *HealthReport) Healthy() bool {
	return len(r.Problems) == 0
}

// NewHealthMonitor creates a new health monitor for a store
func NewHealthMonitor(store *Store) *HealthMonitor {
	return &HealthMonitor{
		store:          store,
		logger:         store.logger,
		metrics:        store.metrics,
		checkInterval:  5 * time.Minute,
		driftThreshold: 0, // Any drift is a violation for an in-memory store
		stopChan:       make(chan struct{}),
	}
}

// WithInterval sets the check interval
func (hm *HealthMonitor) WithInterval(interval time.Duration) *HealthMonitor {
	hm.checkInterval = interval
	return hm
}

// WithDriftThreshold sets the drift percentage that triggers alerts
func (hm *HealthMonitor) WithDriftThreshold(threshold float64) *HealthMonitor {
	hm.driftThreshold = threshold
	return hm
}

// Start begins automated checking in the background
func (hm *HealthMonitor) Start() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.running {
		return fmt.Errorf("health monitor already running")
	}
	hm.running = true

	go func() {
		ticker := time.NewTicker(hm.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hm.stopChan:
				hm.logger.Info("health monitor stopped")
				return
			case <-ticker.C:
				report := hm.Check()
				hm.processReport(report)
			}
		}
	}()

	hm.logger.Info("health monitor started",
		"interval", hm.checkInterval,
		"drift_threshold", hm.driftThreshold,
	)
	return nil
}

// Stop halts the background checking
func (hm *HealthMonitor) Stop() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.running {
		close(hm.stopChan)
		hm.running = false
	}
}

// Check performs a single full invariant check: every canonical record must
// appear exactly once in the primary index and once in every secondary, and
// every index entry must be backed by a canonical record.
func (hm *HealthMonitor) Check() *HealthReport {
	s := hm.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &HealthReport{
		Timestamp: time.Now(),
		Records:   len(s.rows),
		Indexes:   len(s.secondaries) + 1,
	}

	canonical := make(map[*row]struct{}, len(s.rows))
	for _, r := range s.rows {
		canonical[r] = struct{}{}
	}

	hm.checkIndex(report, canonical, s.primary, true)
	for _, sec := range s.secondaries {
		hm.checkIndex(report, canonical, sec, false)
	}

	entries := report.Records * report.Indexes
	if entries > 0 {
		problems := report.MissingEntries + report.OrphanedEntries + report.StaleEntries
		report.DriftPercentage = (float64(problems) / float64(entries)) * 100.0
	}

	hm.metrics.Increment(MetricHealthChecks)
	return report
}

// checkIndex audits one index against the canonical record set, accumulating
// findings into the report.
func (hm *HealthMonitor) checkIndex(report *HealthReport, canonical map[*row]struct{}, x *Index, primary bool) {
	name := x.field
	if primary {
		name = "primary:" + name
	}

	// Key slice and bucket map must describe the same key set.
	if len(x.keys) != len(x.buckets) {
		report.Problems = append(report.Problems, fmt.Sprintf(
			"index %s: %d ordered keys but %d buckets", name, len(x.keys), len(x.buckets)))
	}
	for _, key := range x.keys {
		if _, ok := x.buckets[key]; !ok {
			report.Problems = append(report.Problems, fmt.Sprintf(
				"index %s: ordered key %q has no bucket", name, key))
		}
	}

	// Every entry must be backed by a canonical record, every bucket must
	// be non-empty, and a unique index may not hold multi-record buckets.
	seen := make(map[*row]int)
	for key, bucket := range x.buckets {
		if len(bucket) == 0 {
			report.Problems = append(report.Problems, fmt.Sprintf(
				"index %s: empty bucket for key %q", name, key))
		}
		if x.unique && len(bucket) > 1 {
			report.Problems = append(report.Problems, fmt.Sprintf(
				"index %s: unique bucket %q holds %d records", name, key, len(bucket)))
		}
		for _, r := range bucket {
			seen[r]++
			if _, ok := canonical[r]; !ok {
				report.OrphanedEntries++
				report.Problems = append(report.Problems, fmt.Sprintf(
					"index %s: key %q references record %s not in canonical collection", name, key, r.id))
			}
			// A record mutated in place keys differently than the bucket
			// it sits in.
			if k, err := x.keyOf(r.rec); err != nil || k != key {
				report.StaleEntries++
				report.Problems = append(report.Problems, fmt.Sprintf(
					"index %s: record %s bucketed under %q but its current value keys to %q", name, r.id, key, k))
			}
		}
	}

	// Every canonical record must appear exactly once.
	for r := range canonical {
		switch n := seen[r]; {
		case n == 0:
			report.MissingEntries++
			report.Problems = append(report.Problems, fmt.Sprintf(
				"index %s: record %s missing", name, r.id))
		case n > 1:
			report.Problems = append(report.Problems, fmt.Sprintf(
				"index %s: record %s indexed %d times", name, r.id, n))
		}
	}
}

// processReport handles the check results
func (hm *HealthMonitor) processReport(report *HealthReport) {
	hm.metrics.Gauge(MetricHealthDrift, report.DriftPercentage)

	if report.DriftPercentage > hm.driftThreshold || !report.Healthy() {
		hm.logger.Error("index drift detected",
			"drift_percent", report.DriftPercentage,
			"missing", report.MissingEntries,
			"orphaned", report.OrphanedEntries,
			"stale", report.StaleEntries,
			"problems", len(report.Problems),
		)
	} else {
		hm.logger.Debug("health check passed",
			"records", report.Records,
			"indexes", report.Indexes,
		)
	}
}

// RepairDrift rebuilds every secondary index from the canonical collection.
// The canonical collection is the source of truth; any index disagreement
// is resolved in its favor.
func (hm *HealthMonitor) RepairDrift() error {
	s := hm.store

	hm.logger.Info("starting index drift repair")

	repaired := 0
	for _, info := range s.Indices() {
		if err := s.RebuildIndex(info.Field); err != nil {
			hm.logger.Warn("failed to rebuild index", "field", info.Field, "error", err)
			return err
		}
		repaired++
	}

	hm.logger.Info("index drift repair completed", "repaired", repaired)
	return nil
}

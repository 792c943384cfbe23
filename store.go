package recordcache

import (
	"sync"
	"time"
)

// row is the canonical slot for one accepted record: a stable handle shared
// by reference between the store's collection and every index. Identity is
// pointer equality; an update re-points rec at the replacement record so the
// handle itself stays valid everywhere it is held.
type row struct {
	id  string
	rec Record
}

// Options configures store construction.
type Options struct {
	// CaseInsensitiveKeys makes the primary index case-insensitive and is
	// the default for secondary indexes created without an explicit
	// override.
	CaseInsensitiveKeys bool
	Logger              Logger
	Metrics             Metrics
}

// IndexInfo describes one registered secondary index.
type IndexInfo struct {
	Position int
	Field    string
}

// Store is the single source of truth for record membership. It owns the
// canonical, order-preserving record collection, exactly one unique primary
// index, and any number of registered secondary indexes, and coordinates all
// mutation so the three stay mutually consistent.
//
// A single mutex guards the whole store. The engine is designed for
// single-threaded, synchronous use; the lock is a conservative measure, not
// a concurrency feature.
type Store struct {
	mu sync.RWMutex

	keyField            string
	caseInsensitiveKeys bool

	rows        []*row
	primary     *Index
	secondaries []*Index // registration order

	logger  Logger
	metrics Metrics
}

// New builds a store from a non-empty initial batch of records sharing a
// schema. keyField must be present, exactly as spelled, in the first record;
// its value must be non-empty and unique across the whole batch.
func New(records []Record, keyField string) (*Store, error) {
	return NewWithOptions(records, keyField, Options{})
}

// NewWithOptions is New with explicit case handling and observability.
func NewWithOptions(records []Record, keyField string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	if len(records) == 0 {
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  keyField,
			"reason": "initial batch must not be empty",
		})
	}

	// The key field is matched exactly against the first record; later
	// records are assumed to follow the same schema.
	if _, ok := records[0][keyField]; !ok {
		return nil, WithContext(ErrFieldMissing, map[string]interface{}{
			"field":  keyField,
			"reason": "not present in first record",
		})
	}

	s := &Store{
		keyField:            keyField,
		caseInsensitiveKeys: opts.CaseInsensitiveKeys,
		logger:              logger,
		metrics:             metrics,
	}

	// Batch-wide uniqueness check before anything is built: group key
	// values and reject any group larger than one.
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		key, err := s.primaryKeyOf(rec)
		if err != nil {
			return nil, err
		}
		if s.caseInsensitiveKeys {
			key = foldKey(key)
		}
		counts[key]++
	}
	for key, n := range counts {
		if n > 1 {
			return nil, WithContext(ErrDuplicateKey, map[string]interface{}{
				"field": keyField,
				"key":   key,
				"count": n,
			})
		}
	}

	start := time.Now()
	s.rows = make([]*row, len(records))
	for i, rec := range records {
		s.rows[i] = &row{id: NewID(), rec: rec}
	}

	primary, err := newIndex(s.rows, keyField, opts.CaseInsensitiveKeys, true)
	if err != nil {
		return nil, err
	}
	s.primary = primary

	metrics.Timing(MetricBuildDuration, time.Since(start))
	metrics.Gauge(MetricRecords, float64(len(s.rows)))
	logger.Info("store constructed",
		"key_field", keyField,
		"records", len(s.rows),
		"case_insensitive", opts.CaseInsensitiveKeys,
	)
	return s, nil
}

// SetLogger updates the logger for this store
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics updates the metrics collector for this store
func (s *Store) SetMetrics(metrics Metrics) {
	s.metrics = metrics
}

// KeyField returns the primary key field name.
func (s *Store) KeyField() string { return s.keyField }

// CaseInsensitiveKeys reports the store-wide default key comparison mode.
func (s *Store) CaseInsensitiveKeys() bool { return s.caseInsensitiveKeys }

// Len returns the number of canonical records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Records returns the canonical collection in its preserved order. The slice
// is a snapshot; the records themselves are shared references.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.rec
	}
	return out
}

// Lookup returns the record for an exact primary key match.
func (s *Store) Lookup(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.primary.rowsFor(key)
	if len(b) == 0 {
		s.metrics.Increment(MetricLookupMiss)
		return nil, false
	}
	s.metrics.Increment(MetricLookupHit)
	return b[0].rec, true
}

// CaseInsensitiveLookup returns every record whose primary key matches key
// under case folding. On a case-sensitively keyed store this may return
// several records whose keys differ only by case.
func (s *Store) CaseInsensitiveLookup(key string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary.CaseInsensitiveLookup(key)
}

// Add accepts a new record. The record must carry a non-empty primary key
// not already present, and a value for every secondary-indexed field —
// all preconditions are validated before any structure is touched, so a
// failed Add changes nothing.
func (s *Store) Add(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.addLocked(rec)
	s.metrics.Timing(MetricAddDuration, time.Since(start))
	if err != nil {
		s.metrics.Increment(MetricAddError)
		return err
	}
	s.metrics.Increment(MetricAddSuccess)
	s.metrics.Gauge(MetricRecords, float64(len(s.rows)))
	return nil
}

func (s *Store) addLocked(rec Record) error {
	key, err := s.primaryKeyOf(rec)
	if err != nil {
		return err
	}
	if s.primary.ContainsKey(key) {
		return WithContext(ErrDuplicateKey, map[string]interface{}{
			"field": s.keyField,
			"key":   key,
		})
	}

	// Precondition pass: every secondary must be able to extract its key
	// before any index is mutated.
	for _, sec := range s.secondaries {
		if _, ok := fieldValue(rec, sec.field); !ok {
			return WithContext(ErrFieldMissing, map[string]interface{}{
				"field":  sec.field,
				"reason": "record missing secondary-indexed field",
			})
		}
	}

	r := &row{id: NewID(), rec: rec}
	s.rows = append(s.rows, r)

	if err := s.primary.add(r); err != nil {
		// Roll back the canonical append before surfacing the error.
		s.rows = s.rows[:len(s.rows)-1]
		return err
	}

	for _, sec := range s.secondaries {
		if err := sec.add(r); err != nil {
			s.logger.Error("secondary index add failed",
				"field", sec.field,
				"record", r.id,
				"error", err,
			)
			s.metrics.Increment(MetricIndexErrors)
			return err
		}
	}

	s.logger.Debug("record added", "key", key, "record", r.id)
	return nil
}

// Remove deletes the canonical record whose primary key matches the key
// value carried by rec. Callers may pass a record bearing only the key
// field; matching is by key value, never by record identity.
func (s *Store) Remove(rec Record) error {
	key, err := s.primaryKeyOf(rec)
	if err != nil {
		return err
	}
	return s.RemoveKey(key)
}

// RemoveKey deletes the canonical record with the given primary key.
func (s *Store) RemoveKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.removeKeyLocked(key)
	s.metrics.Timing(MetricRemoveDuration, time.Since(start))
	if err != nil {
		s.metrics.Increment(MetricRemoveError)
		return err
	}
	s.metrics.Increment(MetricRemoveSuccess)
	s.metrics.Gauge(MetricRecords, float64(len(s.rows)))
	return nil
}

func (s *Store) removeKeyLocked(key string) error {
	b := s.primary.rowsFor(key)
	if len(b) == 0 {
		return WithContext(ErrNotFound, map[string]interface{}{
			"field": s.keyField,
			"key":   key,
		})
	}
	r := b[0]

	at := -1
	for i, e := range s.rows {
		if e == r {
			at = i
			break
		}
	}
	if at < 0 {
		return WithContext(ErrConsistency, map[string]interface{}{
			"key":    key,
			"record": r.id,
			"reason": "canonical collection missing indexed record",
		})
	}
	s.rows = append(s.rows[:at], s.rows[at+1:]...)

	if err := s.primary.remove(r); err != nil {
		return err
	}
	for _, sec := range s.secondaries {
		if err := sec.remove(r); err != nil {
			s.logger.Error("secondary index remove failed",
				"field", sec.field,
				"record", r.id,
				"error", err,
			)
			s.metrics.Increment(MetricIndexErrors)
			return err
		}
	}

	s.logger.Debug("record removed", "key", key, "record", r.id)
	return nil
}

// Update replaces the canonical record sharing rec's primary key with rec
// itself: the existing handle is re-pointed in place, so the record keeps
// its position in the canonical order and the primary index needs no
// update. Every secondary index is then moved between buckets if its key
// value changed. When no record with that key exists, Update degrades to
// Add (upsert).
func (s *Store) Update(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.updateLocked(rec)
	s.metrics.Timing(MetricUpdateDuration, time.Since(start))
	if err != nil {
		s.metrics.Increment(MetricUpdateError)
		return err
	}
	s.metrics.Increment(MetricUpdateSuccess)
	s.metrics.Gauge(MetricRecords, float64(len(s.rows)))
	return nil
}

func (s *Store) updateLocked(rec Record) error {
	key, err := s.primaryKeyOf(rec)
	if err != nil {
		return err
	}

	b := s.primary.rowsFor(key)
	if len(b) == 0 {
		return s.addLocked(rec)
	}
	r := b[0]

	for _, sec := range s.secondaries {
		if _, ok := fieldValue(rec, sec.field); !ok {
			return WithContext(ErrFieldMissing, map[string]interface{}{
				"field":  sec.field,
				"reason": "record missing secondary-indexed field",
			})
		}
	}

	old := r.rec
	r.rec = rec

	for _, sec := range s.secondaries {
		if err := sec.update(r, old); err != nil {
			// Remove-then-add is not transactional: the index may now
			// be missing the record. The store's invariants are gone;
			// surface the error and let the caller rebuild.
			s.logger.Error("secondary index update failed",
				"field", sec.field,
				"record", r.id,
				"error", err,
			)
			s.metrics.Increment(MetricIndexErrors)
			return err
		}
	}

	s.logger.Debug("record updated", "key", key, "record", r.id)
	return nil
}

// NewIndex builds a secondary index over the named field from a snapshot of
// the current canonical collection and registers it, using the store-wide
// key comparison default.
func (s *Store) NewIndex(field string) error {
	return s.NewIndexWithCase(field, s.caseInsensitiveKeys)
}

// NewIndexWithCase is NewIndex with an explicit key comparison mode, fixed
// for the index's lifetime.
func (s *Store) NewIndexWithCase(field string, caseInsensitive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rows) == 0 {
		return WithContext(ErrFieldMissing, map[string]interface{}{
			"field":  field,
			"reason": "no records to resolve field against",
		})
	}

	resolved, ok := resolveField(s.rows[0].rec, field)
	if !ok {
		return WithContext(ErrFieldMissing, map[string]interface{}{
			"field": field,
		})
	}

	// Registered names are compared case-sensitively, independent of any
	// index's own key comparison mode.
	for _, sec := range s.secondaries {
		if sec.field == resolved {
			return WithContext(ErrDuplicateIndex, map[string]interface{}{
				"field": resolved,
			})
		}
	}

	start := time.Now()
	x, err := newIndex(s.rows, field, caseInsensitive, false)
	if err != nil {
		s.metrics.Increment(MetricIndexErrors)
		return err
	}
	s.secondaries = append(s.secondaries, x)

	s.metrics.Timing(MetricBuildDuration, time.Since(start))
	s.metrics.Gauge(MetricIndexCount, float64(len(s.secondaries)))
	s.logger.Info("secondary index created",
		"field", resolved,
		"keys", x.Len(),
		"case_insensitive", caseInsensitive,
	)
	return nil
}

// RemoveIndex discards the secondary index registered under the given field
// name. The name is compared case-sensitively against registered names.
func (s *Store) RemoveIndex(field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sec := range s.secondaries {
		if sec.field == field {
			s.secondaries = append(s.secondaries[:i], s.secondaries[i+1:]...)
			s.metrics.Gauge(MetricIndexCount, float64(len(s.secondaries)))
			s.logger.Info("secondary index removed", "field", field)
			return nil
		}
	}
	return WithContext(ErrNotFound, map[string]interface{}{
		"index": field,
	})
}

// Index returns the registered secondary index for a field name (exact
// match), if any.
func (s *Store) Index(field string) (*Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sec := range s.secondaries {
		if sec.field == field {
			return sec, true
		}
	}
	return nil, false
}

// Indices lists the registered secondary indexes in registration order.
func (s *Store) Indices() []IndexInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndexInfo, len(s.secondaries))
	for i, sec := range s.secondaries {
		out[i] = IndexInfo{Position: i, Field: sec.field}
	}
	return out
}

// RebuildIndex reconstructs a secondary index from the current canonical
// collection, keeping its registration position and key comparison mode.
// This is the repair path for a store whose invariants were violated by
// in-place record mutation or a failed non-atomic update.
func (s *Store) RebuildIndex(field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sec := range s.secondaries {
		if sec.field != field {
			continue
		}
		x, err := newIndex(s.rows, sec.field, sec.caseInsensitive, false)
		if err != nil {
			s.metrics.Increment(MetricIndexErrors)
			return err
		}
		s.secondaries[i] = x
		s.logger.Info("secondary index rebuilt", "field", field, "keys", x.Len())
		return nil
	}
	return WithContext(ErrNotFound, map[string]interface{}{
		"index": field,
	})
}

// primaryKeyOf extracts the record's primary key value. The key field must
// be present and its value non-empty.
func (s *Store) primaryKeyOf(rec Record) (string, error) {
	v, ok := fieldValue(rec, s.keyField)
	if !ok {
		return "", WithContext(ErrFieldMissing, map[string]interface{}{
			"field": s.keyField,
		})
	}
	if v == "" {
		return "", WithContext(ErrFieldMissing, map[string]interface{}{
			"field":  s.keyField,
			"reason": "empty primary key value",
		})
	}
	return v, nil
}

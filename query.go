package recordcache

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Query provides a fluent interface for querying records in the store.
// Results always come back in canonical collection order unless a sort is
// applied.
type Query struct {
	store   *Store
	eqField string
	eqValue string
	hasEq   bool
	filters []func(Record) bool
	limit   int
	offset  int
	sortFn  func(a, b Record) bool
}

// Query creates a new query over the store's records
func (s *Store) Query() *Query {
	return &Query{
		store: s,
		limit: -1, // No limit by default
	}
}

// Where restricts the query to records whose field equals value. When a
// secondary index is registered for the field the match is served from it
// instead of scanning; the index's own key comparison mode then applies.
func (q *Query) Where(field, value string) *Query {
	q.eqField = field
	q.eqValue = value
	q.hasEq = true
	return q
}

// Filter adds a filter function to the query
// The filter receives the record and should return true if it matches
func (q *Query) Filter(fn func(rec Record) bool) *Query {
	q.filters = append(q.filters, fn)
	return q
}

// FieldContains filters to records where a string-valued field contains a
// substring
func (q *Query) FieldContains(field, substring string) *Query {
	return q.Filter(func(rec Record) bool {
		v, ok := fieldValue(rec, field)
		if !ok {
			return false
		}
		return strings.Contains(v, substring)
	})
}

// Limit sets the maximum number of results to return
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset sets the number of results to skip
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Sort adds a sorting function to the query
// The sort function should return true if a should come before b
func (q *Query) Sort(fn func(a, b Record) bool) *Query {
	q.sortFn = fn
	return q
}

// SortByField sorts by a field's extracted string value. Values that parse
// as numbers are compared numerically.
func (q *Query) SortByField(field string, ascending bool) *Query {
	q.sortFn = func(a, b Record) bool {
		va, okA := fieldValue(a, field)
		vb, okB := fieldValue(b, field)
		if !okA || !okB {
			return false
		}

		if fa, errA := strconv.ParseFloat(va, 64); errA == nil {
			if fb, errB := strconv.ParseFloat(vb, 64); errB == nil {
				if ascending {
					return fa < fb
				}
				return fa > fb
			}
		}
		if ascending {
			return va < vb
		}
		return va > vb
	}
	return q
}

// All executes the query and returns every matching record
func (q *Query) All() []Record {
	start := time.Now()

	var results []Record
	skipped := 0

	for _, rec := range q.candidates() {
		if !q.matches(rec) {
			continue
		}

		if skipped < q.offset {
			skipped++
			continue
		}

		results = append(results, rec)

		// Early exit only when not sorting; sorting needs all results
		if q.sortFn == nil && q.limit > 0 && len(results) >= q.limit {
			break
		}
	}

	if q.sortFn != nil {
		sort.SliceStable(results, func(i, j int) bool {
			return q.sortFn(results[i], results[j])
		})
		if q.limit > 0 && len(results) > q.limit {
			results = results[:q.limit]
		}
	}

	duration := time.Since(start)
	q.store.metrics.Timing(MetricQueryDuration, duration)
	q.store.metrics.Histogram(MetricQueryResults, float64(len(results)))
	q.store.logger.Debug("query executed",
		"results", len(results),
		"duration_ms", duration.Milliseconds(),
	)
	return results
}

// First executes the query and returns the first matching record
func (q *Query) First() (Record, bool) {
	for _, rec := range q.candidates() {
		if q.matches(rec) {
			return rec, true
		}
	}
	return nil, false
}

// Count returns the number of matching records
func (q *Query) Count() int {
	count := 0
	for _, rec := range q.candidates() {
		if q.matches(rec) {
			count++
		}
	}
	return count
}

// Each executes a function for each matching record, stopping on the first
// error
func (q *Query) Each(fn func(rec Record) error) error {
	skipped := 0
	processed := 0
	for _, rec := range q.candidates() {
		if !q.matches(rec) {
			continue
		}
		if skipped < q.offset {
			skipped++
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
		processed++
		if q.limit > 0 && processed >= q.limit {
			break
		}
	}
	return nil
}

// candidates returns the narrowest record set the store can serve without
// scanning: an index bucket for an equality on an indexed field, otherwise
// the whole canonical collection.
func (q *Query) candidates() []Record {
	if q.hasEq {
		if x, ok := q.store.Index(q.eqField); ok {
			q.store.metrics.Increment(MetricLookupHit)
			return x.Lookup(q.eqValue)
		}
		// Equality predicate with no index to serve it: full scan.
		q.store.metrics.Increment(MetricLookupMiss)
	}
	return q.store.Records()
}

// matches applies the non-index part of the predicate.
func (q *Query) matches(rec Record) bool {
	if q.hasEq {
		if _, indexed := q.store.Index(q.eqField); !indexed {
			v, ok := fieldValue(rec, q.eqField)
			if !ok || v != q.eqValue {
				return false
			}
		}
	}
	for _, fn := range q.filters {
		if !fn(rec) {
			return false
		}
	}
	return true
}

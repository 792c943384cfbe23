package recordcache

import (
	"sort"
)

// Index is an ordered mapping from a key value to the records currently
// holding that key under one named field. A single implementation covers
// both index roles: with unique=true a key maps to exactly one record (the
// store's primary index); otherwise a key maps to an insertion-ordered
// bucket of records (secondary index).
//
// Exact lookups are O(1); the distinct key space is additionally kept
// sorted so ordered traversal and key insertion/removal are O(log n).
// Buckets hold the same row handles the store's canonical collection holds —
// an index never copies a record, only its key plus a reference.
//
// All mutation goes through the owning Store; the exported surface is
// read-only.
type Index struct {
	field           string
	unique          bool
	caseInsensitive bool

	keys    []string // sorted bucket keys (normalized when caseInsensitive)
	buckets map[string][]*row
}

// newIndex builds an index over a snapshot of canonical rows. The field name
// is resolved case-insensitively against the first row to recover its
// original casing; a field absent from the first row is ErrFieldMissing.
func newIndex(rows []*row, field string, caseInsensitive, unique bool) (*Index, error) {
	if len(rows) == 0 {
		return nil, WithContext(ErrFieldMissing, map[string]interface{}{
			"field":  field,
			"reason": "no records to resolve field against",
		})
	}

	resolved, ok := resolveField(rows[0].rec, field)
	if !ok {
		return nil, WithContext(ErrFieldMissing, map[string]interface{}{
			"field": field,
		})
	}

	x := &Index{
		field:           resolved,
		unique:          unique,
		caseInsensitive: caseInsensitive,
		buckets:         make(map[string][]*row, len(rows)),
	}

	for _, r := range rows {
		if err := x.add(r); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Field returns the resolved field name this index is built on.
func (x *Index) Field() string { return x.field }

// Unique reports whether the index enforces one record per key.
func (x *Index) Unique() bool { return x.unique }

// CaseInsensitive reports whether keys are compared under case folding.
func (x *Index) CaseInsensitive() bool { return x.caseInsensitive }

// Len returns the number of distinct keys currently in the index.
func (x *Index) Len() int { return len(x.buckets) }

// Keys returns the distinct key space in sorted order. For a
// case-insensitive index the returned keys are case-folded.
func (x *Index) Keys() []string {
	out := make([]string, len(x.keys))
	copy(out, x.keys)
	return out
}

// Lookup returns the bucket for an exact key match under the index's
// configured comparison mode, in insertion order. Absent keys return nil.
func (x *Index) Lookup(key string) []Record {
	b, ok := x.buckets[x.normalize(key)]
	if !ok {
		return nil
	}
	out := make([]Record, len(b))
	for i, r := range b {
		out[i] = r.rec
	}
	return out
}

// ContainsKey reports whether a bucket exists for the key.
func (x *Index) ContainsKey(key string) bool {
	_, ok := x.buckets[x.normalize(key)]
	return ok
}

// CaseInsensitiveLookup scans every stored key, case-insensitively comparing
// it to key, and returns the union of all matching buckets. This is a linear
// scan over the distinct key space regardless of the index's own comparison
// mode; on a case-sensitive index it can return records from several
// distinct keys ("Smith" and "smith"), so callers must expect a merged
// result rather than a single bucket.
func (x *Index) CaseInsensitiveLookup(key string) []Record {
	target := foldKey(key)
	var out []Record
	for _, k := range x.keys {
		if foldKey(k) != target {
			continue
		}
		for _, r := range x.buckets[k] {
			out = append(out, r.rec)
		}
	}
	return out
}

// CaseInsensitiveContainsKey reports whether any stored key matches key
// under case folding.
func (x *Index) CaseInsensitiveContainsKey(key string) bool {
	target := foldKey(key)
	for _, k := range x.keys {
		if foldKey(k) == target {
			return true
		}
	}
	return false
}

// keyOf extracts and normalizes the row key for this index's field.
func (x *Index) keyOf(rec Record) (string, error) {
	v, ok := fieldValue(rec, x.field)
	if !ok {
		return "", WithContext(ErrFieldMissing, map[string]interface{}{
			"field": x.field,
		})
	}
	return x.normalize(v), nil
}

func (x *Index) normalize(key string) string {
	if x.caseInsensitive {
		return foldKey(key)
	}
	return key
}

// add inserts a row into its key's bucket, creating the bucket if needed.
// On a unique index an existing bucket is ErrDuplicateKey.
func (x *Index) add(r *row) error {
	key, err := x.keyOf(r.rec)
	if err != nil {
		return err
	}

	b, ok := x.buckets[key]
	if ok && x.unique {
		return WithContext(ErrDuplicateKey, map[string]interface{}{
			"field": x.field,
			"key":   key,
		})
	}
	if !ok {
		x.insertKey(key)
	}
	x.buckets[key] = append(b, r)
	return nil
}

// remove deletes the row from the bucket its current record value selects.
func (x *Index) remove(r *row) error {
	key, err := x.keyOf(r.rec)
	if err != nil {
		return err
	}
	return x.removeFrom(key, r)
}

// removeFrom deletes the row, matched by identity, from the bucket at key.
// The row must be present — anything else means the index disagrees with the
// canonical collection and is ErrConsistency. An emptied bucket is deleted
// immediately; it is never retained as a zero-length placeholder.
func (x *Index) removeFrom(key string, r *row) error {
	b, ok := x.buckets[key]
	if !ok {
		return WithContext(ErrConsistency, map[string]interface{}{
			"field":  x.field,
			"key":    key,
			"reason": "bucket missing for indexed record",
		})
	}

	at := -1
	for i, e := range b {
		if e == r {
			at = i
			break
		}
	}
	if at < 0 {
		return WithContext(ErrConsistency, map[string]interface{}{
			"field":  x.field,
			"key":    key,
			"record": r.id,
			"reason": "record not in expected bucket",
		})
	}

	b = append(b[:at], b[at+1:]...)
	if len(b) > 0 {
		x.buckets[key] = b
		return nil
	}

	delete(x.buckets, key)
	if !x.deleteKey(key) {
		return WithContext(ErrConsistency, map[string]interface{}{
			"field":  x.field,
			"key":    key,
			"reason": "empty bucket key absent from ordered key set",
		})
	}
	return nil
}

// update moves the row between buckets after its record reference was
// re-pointed. old is the record the row held before the update; the row
// itself already holds the new record. Keys that compare equal need no
// structural change — the bucket already holds the same handle. On a key
// change this is remove-then-add, which is not atomic: a failure between the
// two steps leaves the index missing the row.
func (x *Index) update(r *row, old Record) error {
	oldKey, err := x.keyOf(old)
	if err != nil {
		return err
	}
	newKey, err := x.keyOf(r.rec)
	if err != nil {
		return err
	}
	if oldKey == newKey {
		return nil
	}
	if err := x.removeFrom(oldKey, r); err != nil {
		return err
	}
	return x.add(r)
}

// rowsFor returns the live bucket for an exact key. Store internal.
func (x *Index) rowsFor(key string) []*row {
	return x.buckets[x.normalize(key)]
}

// insertKey adds key to the sorted key slice if not present.
func (x *Index) insertKey(key string) {
	i := sort.SearchStrings(x.keys, key)
	if i < len(x.keys) && x.keys[i] == key {
		return
	}
	x.keys = append(x.keys, "")
	copy(x.keys[i+1:], x.keys[i:])
	x.keys[i] = key
}

// deleteKey removes key from the sorted key slice, reporting whether it was
// present.
func (x *Index) deleteKey(key string) bool {
	i := sort.SearchStrings(x.keys, key)
	if i >= len(x.keys) || x.keys[i] != key {
		return false
	}
	x.keys = append(x.keys[:i], x.keys[i+1:]...)
	return true
}

package recordcache

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Record is a single caller-supplied record: a flat, field-named document.
// The store never defines record shape; it only reads named field values as
// strings for indexing. Records are shared by reference between the store's
// canonical collection and every index — mutating a record's fields in place
// without going through Store.Update silently desynchronizes any secondary
// index keyed on the mutated field. That zero-copy trade-off is deliberate.
type Record map[string]interface{}

// Clone returns a shallow copy of the record. Useful before modifying a
// record that was obtained from a lookup, since lookups return shared
// references, not copies.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// resolveField resolves name against the record's field names: exact match
// first, then a case-insensitive scan that recovers the field's original
// casing. The scan iterates field names in sorted order so resolution is
// deterministic when several names differ only by case.
func resolveField(rec Record, name string) (string, bool) {
	if _, ok := rec[name]; ok {
		return name, true
	}

	names := make([]string, 0, len(rec))
	for k := range rec {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// fieldValue reads the named field (exact match, already resolved) as a
// string key. Non-string values are rendered with their default formatting;
// nil renders as the empty string.
func fieldValue(rec Record, field string) (string, bool) {
	v, ok := rec[field]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case nil:
		return "", true
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// foldKey normalizes a key for case-insensitive comparison using Unicode
// case folding. A fresh Caser per call: cases.Caser carries transformer
// state and is not safe for concurrent use.
func foldKey(s string) string {
	return cases.Fold().String(s)
}

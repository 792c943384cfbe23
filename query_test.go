package recordcache

import (
	"errors"
	"testing"
)

func queryTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New([]Record{
		{"id": "u1", "name": "Alice", "city": "Berlin", "age": 30},
		{"id": "u2", "name": "Bob", "city": "Berlin", "age": 25},
		{"id": "u3", "name": "Carol", "city": "Paris", "age": 35},
		{"id": "u4", "name": "Dave", "city": "Oslo", "age": 28},
	}, "id")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestQueryAll(t *testing.T) {
	s := queryTestStore(t)

	got := s.Query().All()
	if len(got) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(got))
	}
	if got[0]["id"] != "u1" || got[3]["id"] != "u4" {
		t.Error("Query without sort should preserve canonical order")
	}
}

func TestQueryWhereMetrics(t *testing.T) {
	s := queryTestStore(t)
	metrics := NewInMemoryMetrics()
	s.SetMetrics(metrics)

	// No index on city yet: the equality predicate falls back to a scan.
	s.Query().Where("city", "Berlin").All()
	if metrics.Counters[MetricLookupMiss] != 1 {
		t.Errorf("Expected 1 lookup miss, got %d", metrics.Counters[MetricLookupMiss])
	}

	if err := s.NewIndex("city"); err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	s.Query().Where("city", "Berlin").All()
	if metrics.Counters[MetricLookupHit] != 1 {
		t.Errorf("Expected 1 lookup hit, got %d", metrics.Counters[MetricLookupHit])
	}
	if metrics.Counters[MetricLookupMiss] != 1 {
		t.Errorf("Indexed query should not count a miss, got %d", metrics.Counters[MetricLookupMiss])
	}
}

func TestQueryWhereScans(t *testing.T) {
	s := queryTestStore(t)

	got := s.Query().Where("city", "Berlin").All()
	if len(got) != 2 {
		t.Fatalf("Expected 2 Berlin records, got %d", len(got))
	}
}

func TestQueryWhereUsesIndex(t *testing.T) {
	s := queryTestStore(t)
	if err := s.NewIndex("city"); err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}

	got := s.Query().Where("city", "Berlin").All()
	if len(got) != 2 || got[0]["id"] != "u1" || got[1]["id"] != "u2" {
		t.Errorf("Indexed equality should return the bucket in insertion order, got %v", got)
	}
}

func TestQueryFilterAndContains(t *testing.T) {
	s := queryTestStore(t)

	got := s.Query().
		Filter(func(rec Record) bool { return rec["city"] != "Paris" }).
		FieldContains("name", "li").
		All()

	// Only Alice passes both predicates.
	if len(got) != 1 || got[0]["id"] != "u1" {
		t.Fatalf("Expected [u1], got %v", got)
	}
}

func TestQueryLimitOffset(t *testing.T) {
	s := queryTestStore(t)

	got := s.Query().Offset(1).Limit(2).All()
	if len(got) != 2 || got[0]["id"] != "u2" || got[1]["id"] != "u3" {
		t.Errorf("Expected [u2 u3], got %v", got)
	}
}

func TestQuerySortByField(t *testing.T) {
	s := queryTestStore(t)

	got := s.Query().SortByField("age", true).All()
	want := []string{"u2", "u4", "u1", "u3"}
	for i, id := range want {
		if got[i]["id"] != id {
			t.Errorf("Position %d: expected %s, got %v", i, id, got[i]["id"])
		}
	}

	desc := s.Query().SortByField("age", false).Limit(1).All()
	if len(desc) != 1 || desc[0]["id"] != "u3" {
		t.Errorf("Expected oldest record u3, got %v", desc)
	}
}

func TestQueryFirstAndCount(t *testing.T) {
	s := queryTestStore(t)

	rec, ok := s.Query().Where("city", "Paris").First()
	if !ok || rec["id"] != "u3" {
		t.Errorf("Expected u3, got %v (%v)", rec, ok)
	}

	if _, ok := s.Query().Where("city", "Rome").First(); ok {
		t.Error("Expected miss for Rome")
	}

	if n := s.Query().Where("city", "Berlin").Count(); n != 2 {
		t.Errorf("Expected count 2, got %d", n)
	}
}

func TestQueryEach(t *testing.T) {
	s := queryTestStore(t)

	var ids []string
	err := s.Query().Limit(3).Each(func(rec Record) error {
		ids = append(ids, rec["id"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("Expected 3 visits, got %v", ids)
	}

	stop := errors.New("stop")
	err = s.Query().Each(func(rec Record) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("Each should surface the callback error, got %v", err)
	}
}

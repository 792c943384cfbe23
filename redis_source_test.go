package recordcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisSourceLoad(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	seed := map[string]string{
		"user:u1":  `{"id": "u1", "name": "Alice"}`,
		"user:u2":  `{"id": "u2", "name": "Bob"}`,
		"order:o1": `{"id": "o1", "total": "10"}`,
	}
	for key, val := range seed {
		if err := client.Set(ctx, key, val, 0).Err(); err != nil {
			t.Fatalf("Failed to seed %s: %v", key, err)
		}
	}

	src := NewRedisSource(client, "user:*")
	records, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Sorted key order: user:u1 before user:u2.
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0]["id"] != "u1" || records[1]["id"] != "u2" {
		t.Errorf("Expected [u1 u2], got %v", records)
	}
}

func TestRedisSourceInvalidJSON(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	if err := client.Set(ctx, "user:bad", `{broken`, 0).Err(); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}

	_, err := NewRedisSource(client, "user:*").Load(ctx)
	if err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
}

func TestRedisSourceInvalidConfig(t *testing.T) {
	client := setupRedis(t)

	src := NewRedisSource(client, "user:*").WithConfig(SourceConfig{})
	_, err := src.Load(context.Background())
	if err == nil {
		t.Fatal("Expected validation error for zero config")
	}
}

func TestLoadFromRedisBuildsIndexedStore(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	seed := map[string]string{
		"user:u1": `{"id": "u1", "city": "Berlin"}`,
		"user:u2": `{"id": "u2", "city": "Berlin"}`,
		"user:u3": `{"id": "u3", "city": "Paris"}`,
	}
	for key, val := range seed {
		if err := client.Set(ctx, key, val, 0).Err(); err != nil {
			t.Fatalf("Failed to seed %s: %v", key, err)
		}
	}

	store, err := Load(ctx, NewRedisSource(client, "user:*"), "id")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.NewIndex("city"); err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}

	x, _ := store.Index("city")
	if got := x.Lookup("Berlin"); len(got) != 2 {
		t.Errorf("Expected 2 Berlin records, got %d", len(got))
	}
}

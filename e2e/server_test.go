package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adrianmcphee/recordcache"
	"github.com/adrianmcphee/recordcache/internal/protocol"
	"github.com/jackc/pgx/v5"
)

var portCounter int32 = 15432

func nextPort() int {
	return int(atomic.AddInt32(&portCounter, 1))
}

type testEnv struct {
	port    int
	dataDir string
	store   *recordcache.Store
}

func setupTest(t *testing.T) *testEnv {
	port := nextPort()
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("recordcache_test_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create test dir: %v", err)
	}

	seed := `[
		{"id": "u1", "name": "Alice", "city": "Berlin"},
		{"id": "u2", "name": "Bob", "city": "Berlin"},
		{"id": "u3", "name": "Carol", "city": "Paris"}
	]`
	if err := os.WriteFile(filepath.Join(dir, "users.json"), []byte(seed), 0644); err != nil {
		t.Fatalf("Failed to write seed data: %v", err)
	}

	source := recordcache.NewDirSource(dir)
	store, err := recordcache.Load(context.Background(), source, "id")
	if err != nil {
		t.Fatalf("Failed to load store: %v", err)
	}
	if err := store.NewIndex("city"); err != nil {
		t.Fatalf("Failed to build city index: %v", err)
	}

	registry := recordcache.NewRegistry()
	if err := registry.Bind("users", store); err != nil {
		t.Fatalf("Failed to bind store: %v", err)
	}

	server := protocol.NewServer(port, registry)
	go func() {
		_ = server.Start()
	}()

	time.Sleep(200 * time.Millisecond)

	return &testEnv{port: port, dataDir: dir, store: store}
}

func (env *testEnv) cleanup() {
	os.RemoveAll(env.dataDir)
}

func (env *testEnv) connect(t *testing.T) *pgx.Conn {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, fmt.Sprintf("host=localhost port=%d sslmode=disable default_query_exec_mode=simple_protocol", env.port))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	return conn
}

func TestSelectAll(t *testing.T) {
	env := setupTest(t)
	defer env.cleanup()

	ctx := context.Background()
	conn := env.connect(t)
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "SELECT id, name FROM users")
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("Failed to scan: %v", err)
		}
		got = append(got, id+"="+name)
	}

	want := []string{"u1=Alice", "u2=Bob", "u3=Carol"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d rows, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSelectWhereIndexed(t *testing.T) {
	env := setupTest(t)
	defer env.cleanup()

	ctx := context.Background()
	conn := env.connect(t)
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "SELECT name FROM users WHERE city = 'Berlin'")
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("Failed to scan: %v", err)
		}
		names = append(names, name)
	}

	if len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Errorf("Expected [Alice Bob], got %v", names)
	}
}

func TestInsertAndLookup(t *testing.T) {
	env := setupTest(t)
	defer env.cleanup()

	ctx := context.Background()
	conn := env.connect(t)
	defer conn.Close(ctx)

	_, err := conn.Exec(ctx, "INSERT INTO users (id, name, city) VALUES ('u4', 'Dave', 'Lisbon')")
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	rec, ok := env.store.Lookup("u4")
	if !ok {
		t.Fatal("Inserted record not found in store")
	}
	if rec["name"] != "Dave" {
		t.Errorf("Expected name Dave, got %v", rec["name"])
	}
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	env := setupTest(t)
	defer env.cleanup()

	ctx := context.Background()
	conn := env.connect(t)
	defer conn.Close(ctx)

	_, err := conn.Exec(ctx, "INSERT INTO users (id, name, city) VALUES ('u1', 'Imposter', 'Oslo')")
	if err == nil {
		t.Fatal("Expected duplicate key error, got nil")
	}

	if env.store.Len() != 3 {
		t.Errorf("Store should still hold 3 records, got %d", env.store.Len())
	}
}

func TestUpdateMovesIndexEntry(t *testing.T) {
	env := setupTest(t)
	defer env.cleanup()

	ctx := context.Background()
	conn := env.connect(t)
	defer conn.Close(ctx)

	_, err := conn.Exec(ctx, "UPDATE users SET city = 'Paris' WHERE id = 'u1'")
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	rows, err := conn.Query(ctx, "SELECT name FROM users WHERE city = 'Paris'")
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("Failed to scan: %v", err)
		}
		names = append(names, name)
	}

	if len(names) != 2 {
		t.Fatalf("Expected 2 Paris records, got %v", names)
	}
}

func TestDelete(t *testing.T) {
	env := setupTest(t)
	defer env.cleanup()

	ctx := context.Background()
	conn := env.connect(t)
	defer conn.Close(ctx)

	tag, err := conn.Exec(ctx, "DELETE FROM users WHERE id = 'u2'")
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Errorf("Expected 1 row affected, got %d", tag.RowsAffected())
	}

	if _, ok := env.store.Lookup("u2"); ok {
		t.Error("Deleted record still present in store")
	}
}

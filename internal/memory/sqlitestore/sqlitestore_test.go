package sqlitestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/agentengine/internal/memory"
)

func floatp(f float64) *float64 { return &f }

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestAddGetDelete(t *testing.T) {
	b := openTestBackend(t)
	it := memory.Item{
		ID: "a", TaskID: "task-1", Kind: "note", Source: "user",
		Tags: []string{"system"}, Importance: floatp(0.9), TokenCost: floatp(12),
		Payload: map[string]any{"text": "hello"}, Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	if err := b.Add(it); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, ok, err := b.Get("a")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.TaskID != "task-1" || *got.Importance != 0.9 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if err := b.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := b.Get("a"); ok {
		t.Fatal("expected item gone after delete")
	}
}

func TestQuery_ScalarEqualityAndTagOverlap(t *testing.T) {
	b := openTestBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	b.Add(memory.Item{ID: "1", TaskID: "t1", Kind: "note", Tags: []string{"system"}, Timestamp: now})
	b.Add(memory.Item{ID: "2", TaskID: "t1", Kind: "note", Tags: []string{"user"}, Timestamp: now.Add(time.Second)})
	b.Add(memory.Item{ID: "3", TaskID: "t2", Kind: "note", Tags: []string{"user"}, Timestamp: now.Add(2 * time.Second)})

	results, err := b.Query(memory.Query{
		Filters: []memory.Filter{{Field: "task_id", Value: "t1"}},
		Tags:    []string{"system", "user"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results scoped to t1, got %d: %+v", len(results), results)
	}
}

func TestEnforceRetention(t *testing.T) {
	b := openTestBackend(t)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		b.Add(memory.Item{ID: string(rune('a' + i)), Timestamp: now.Add(time.Duration(i) * time.Minute)})
	}
	if err := b.EnforceRetention(2); err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	count, err := b.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 remaining, got %d", count)
	}
}

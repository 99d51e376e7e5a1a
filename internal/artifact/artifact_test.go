package artifact

import "testing"

func TestStoreAndGet(t *testing.T) {
	s := New(0)
	id, err := s.Store("task-1", "tool_result", map[string]any{"ok": true}, "node_a", "", nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, ok := s.Get(id)
	if !ok {
		t.Fatal("expected artifact to be retrievable")
	}
	if got.TaskID != "task-1" || got.NodeID != "node_a" {
		t.Fatalf("unexpected artifact: %+v", got)
	}
}

func TestByTaskAndByNode(t *testing.T) {
	s := New(0)
	s.Store("task-1", "tool_result", "a", "node_a", "", nil)
	s.Store("task-1", "tool_result", "b", "node_b", "", nil)
	s.Store("task-2", "tool_result", "c", "node_a", "", nil)

	byTask := s.ByTask("task-1")
	if len(byTask) != 2 {
		t.Fatalf("expected 2 artifacts for task-1, got %d", len(byTask))
	}
	byNode := s.ByNode("node_a")
	if len(byNode) != 2 {
		t.Fatalf("expected 2 artifacts for node_a, got %d", len(byNode))
	}
}

func TestByType_ScopedToTask(t *testing.T) {
	s := New(0)
	s.Store("task-1", "tool_result", "a", "", "", nil)
	s.Store("task-1", "telemetry_snapshot", "b", "", "", nil)
	s.Store("task-2", "tool_result", "c", "", "", nil)

	results := s.ByType("tool_result", "task-1")
	if len(results) != 1 {
		t.Fatalf("expected 1 scoped result, got %d", len(results))
	}
	unscoped := s.ByType("tool_result", "")
	if len(unscoped) != 2 {
		t.Fatalf("expected 2 unscoped results, got %d", len(unscoped))
	}
}

func TestMaxItems_EvictsOldest(t *testing.T) {
	s := New(2)
	first, _ := s.Store("task-1", "x", "a", "", "", nil)
	s.Store("task-1", "x", "b", "", "", nil)
	s.Store("task-1", "x", "c", "", "", nil)

	if s.Count() != 2 {
		t.Fatalf("expected eviction to cap count at 2, got %d", s.Count())
	}
	if _, ok := s.Get(first); ok {
		t.Fatal("expected the oldest artifact to have been evicted")
	}
}

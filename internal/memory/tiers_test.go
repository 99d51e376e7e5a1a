package memory

import (
	"testing"

	"github.com/antigravity-dev/agentengine/internal/memory/inmem"
)

func TestTiers_LazyTaskStoreCreatedOnce(t *testing.T) {
	calls := 0
	factory := func() (Backend, error) {
		calls++
		return inmem.New(), nil
	}
	tiers := NewTiers(factory, factory, inmem.New())

	a, err := tiers.Store(TierTask, "task-1")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	b, err := tiers.Store(TierTask, "task-1")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if a != b {
		t.Fatal("expected the same backend instance on repeated lookups")
	}
	if calls != 1 {
		t.Fatalf("expected factory invoked once, got %d", calls)
	}
}

func TestTiers_GlobalIsSingleton(t *testing.T) {
	g := inmem.New()
	tiers := NewTiers(func() (Backend, error) { return inmem.New(), nil }, func() (Backend, error) { return inmem.New(), nil }, g)
	got, err := tiers.Store(TierGlobal, "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if got != g {
		t.Fatal("expected global store to be the injected singleton")
	}
}

func TestTiers_ConcludeTaskClearsStore(t *testing.T) {
	tiers := NewTiers(func() (Backend, error) { return inmem.New(), nil }, func() (Backend, error) { return inmem.New(), nil }, inmem.New())
	b, err := tiers.Store(TierTask, "task-1")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	b.Add(Item{ID: "x"})
	if err := tiers.ConcludeTask("task-1"); err != nil {
		t.Fatalf("ConcludeTask: %v", err)
	}
	fresh, err := tiers.Store(TierTask, "task-1")
	if err != nil {
		t.Fatalf("Store after conclude: %v", err)
	}
	count, _ := fresh.Count()
	if count != 0 {
		t.Fatalf("expected a fresh empty store after conclusion, got count=%d", count)
	}
}

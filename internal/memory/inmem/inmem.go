// Package inmem is the volatile memory.Backend: a mutex-guarded map, used
// by default for the task tier and in tests for the other two.
package inmem

import (
	"sort"
	"sync"

	"github.com/antigravity-dev/agentengine/internal/memory"
)

// Backend is an in-process, non-persistent memory.Backend.
type Backend struct {
	mu    sync.Mutex
	items map[string]memory.Item
	order []string // insertion order for stable iteration
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{items: make(map[string]memory.Item)}
}

func (b *Backend) Add(item memory.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.items[item.ID]; !exists {
		b.order = append(b.order, item.ID)
	}
	b.items[item.ID] = item
	return nil
}

func (b *Backend) Get(id string) (memory.Item, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.items[id]
	return it, ok, nil
}

func (b *Backend) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[id]; !ok {
		return nil
	}
	delete(b.items, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Backend) ListAll() ([]memory.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]memory.Item, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.items[id])
	}
	return out, nil
}

func (b *Backend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]memory.Item)
	b.order = nil
	return nil
}

func (b *Backend) Count() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items), nil
}

func (b *Backend) Query(q memory.Query) ([]memory.Item, error) {
	all, _ := b.ListAll()
	matched := make([]memory.Item, 0, len(all))
	for _, it := range all {
		if !matchesTags(it, q.Tags) {
			continue
		}
		if !matchesFilters(it, q.Filters) {
			continue
		}
		matched = append(matched, it)
	}
	sortItems(matched, q.OrderBy)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// EnforceRetention deletes the oldest-by-timestamp items until count <=
// maxItems (spec.md §4.3).
func (b *Backend) EnforceRetention(maxItems int) error {
	if maxItems <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) <= maxItems {
		return nil
	}
	all := make([]memory.Item, 0, len(b.order))
	for _, id := range b.order {
		all = append(all, b.items[id])
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	evict := len(all) - maxItems
	for i := 0; i < evict; i++ {
		id := all[i].ID
		delete(b.items, id)
	}
	newOrder := make([]string, 0, maxItems)
	for _, id := range b.order {
		if _, ok := b.items[id]; ok {
			newOrder = append(newOrder, id)
		}
	}
	b.order = newOrder
	return nil
}

func matchesTags(it memory.Item, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		for _, have := range it.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

func matchesFilters(it memory.Item, filters []memory.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(it, f) {
			return false
		}
	}
	return true
}

func matchesFilter(it memory.Item, f memory.Filter) bool {
	var actual any
	switch f.Field {
	case "task_id":
		actual = it.TaskID
	case "node_id":
		actual = it.NodeID
	case "kind":
		actual = it.Kind
	case "source":
		actual = it.Source
	case "role":
		actual = it.Role
	case "timestamp":
		actual = it.Timestamp
	default:
		if it.Metadata != nil {
			actual = it.Metadata[f.Field]
		}
	}
	if tags, ok := f.Value.([]string); ok {
		actualTags, ok2 := actual.([]string)
		if f.Field == "tags" {
			actualTags = it.Tags
			ok2 = true
		}
		if !ok2 {
			return false
		}
		for _, want := range tags {
			for _, have := range actualTags {
				if want == have {
					return true
				}
			}
		}
		return false
	}
	op := f.Op
	if op == "" {
		op = memory.OpEq
	}
	return compare(actual, f.Value, op)
}

func compare(actual, want any, op memory.Op) bool {
	switch a := actual.(type) {
	case string:
		w, ok := want.(string)
		if !ok {
			return false
		}
		switch op {
		case memory.OpEq:
			return a == w
		case memory.OpNe:
			return a != w
		case memory.OpGt:
			return a > w
		case memory.OpGte:
			return a >= w
		case memory.OpLt:
			return a < w
		case memory.OpLte:
			return a <= w
		}
	case float64:
		w, ok := toFloat(want)
		if !ok {
			return false
		}
		switch op {
		case memory.OpEq:
			return a == w
		case memory.OpNe:
			return a != w
		case memory.OpGt:
			return a > w
		case memory.OpGte:
			return a >= w
		case memory.OpLt:
			return a < w
		case memory.OpLte:
			return a <= w
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func sortItems(items []memory.Item, orderBy string) {
	field := orderBy
	desc := true
	switch {
	case field == "":
		field = "timestamp"
	case field[0] == '-':
		field = field[1:]
		desc = true
	default:
		desc = false
	}
	less := func(i, j int) bool {
		switch field {
		case "timestamp":
			if desc {
				return items[i].Timestamp.After(items[j].Timestamp)
			}
			return items[i].Timestamp.Before(items[j].Timestamp)
		default:
			return false
		}
	}
	sort.SliceStable(items, less)
}

var _ memory.Backend = (*Backend)(nil)

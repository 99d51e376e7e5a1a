// Package filelog is the append-log file memory.Backend (spec.md §4.3):
// every add appends one JSON line and fsyncs; delete rewrites the file in
// place; malformed lines are skipped on load rather than failing it.
package filelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/memory"
)

// Backend persists items as newline-delimited JSON at path.
type Backend struct {
	mu   sync.Mutex
	path string
	// cache mirrors the on-disk log for fast reads; rebuilt from disk at
	// Open and kept in sync on every mutation.
	cache map[string]memory.Item
	order []string
}

// Open loads (or creates) the append-log at path.
func Open(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_mkdir_failed", err)
	}
	b := &Backend{path: path, cache: make(map[string]memory.Item)}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) load() error {
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_open_failed", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry logEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// malformed lines are skipped on load, never fail it.
			continue
		}
		if entry.Deleted {
			if _, ok := b.cache[entry.Item.ID]; ok {
				delete(b.cache, entry.Item.ID)
				b.removeFromOrder(entry.Item.ID)
			}
			continue
		}
		if _, exists := b.cache[entry.Item.ID]; !exists {
			b.order = append(b.order, entry.Item.ID)
		}
		b.cache[entry.Item.ID] = entry.Item
	}
	return nil
}

type logEntry struct {
	Item    memory.Item `json:"item"`
	Deleted bool        `json:"deleted,omitempty"`
}

func (b *Backend) appendEntry(entry logEntry) error {
	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_append_open_failed", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return errs.Wrap(errs.CategoryJSON, errs.SourceMemory, "filelog_marshal_failed", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_write_failed", err)
	}
	return f.Sync()
}

func (b *Backend) removeFromOrder(id string) {
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

func (b *Backend) Add(item memory.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.appendEntry(logEntry{Item: item}); err != nil {
		return err
	}
	if _, exists := b.cache[item.ID]; !exists {
		b.order = append(b.order, item.ID)
	}
	b.cache[item.ID] = item
	return nil
}

func (b *Backend) Get(id string) (memory.Item, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.cache[id]
	return it, ok, nil
}

// Delete drops the item from the cache and triggers a compacting rewrite
// of the log; no tombstone line is appended (spec.md §4.3: "delete
// triggers an in-place rewrite").
func (b *Backend) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cache[id]; !ok {
		return nil
	}
	delete(b.cache, id)
	b.removeFromOrder(id)
	return b.compact()
}

// compact rewrites the log from the in-memory cache, dropping tombstones
// and superseded lines. Caller must hold b.mu.
func (b *Backend) compact() error {
	tmp := b.path + ".compact.tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_compact_open_failed", err)
	}
	w := bufio.NewWriter(f)
	for _, id := range b.order {
		data, err := json.Marshal(logEntry{Item: b.cache[id]})
		if err != nil {
			f.Close()
			return errs.Wrap(errs.CategoryJSON, errs.SourceMemory, "filelog_compact_marshal_failed", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_compact_write_failed", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_compact_flush_failed", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_compact_sync_failed", err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_compact_close_failed", err)
	}
	return os.Rename(tmp, b.path)
}

func (b *Backend) ListAll() ([]memory.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]memory.Item, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.cache[id])
	}
	return out, nil
}

func (b *Backend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[string]memory.Item)
	b.order = nil
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "filelog_clear_failed", err)
	}
	return f.Close()
}

func (b *Backend) Count() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cache), nil
}

func (b *Backend) Query(q memory.Query) ([]memory.Item, error) {
	all, _ := b.ListAll()
	matched := make([]memory.Item, 0, len(all))
	for _, it := range all {
		if !tagsMatch(it.Tags, q.Tags) {
			continue
		}
		if !fieldsMatch(it, q.Filters) {
			continue
		}
		matched = append(matched, it)
	}
	orderItems(matched, q.OrderBy)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// EnforceRetention deletes oldest-by-timestamp entries beyond maxItems,
// then compacts once (spec.md §4.3).
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
		all = append(all, b.cache[id])
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	evict := len(all) - maxItems
	for i := 0; i < evict; i++ {
		delete(b.cache, all[i].ID)
		b.removeFromOrder(all[i].ID)
	}
	return b.compact()
}

func tagsMatch(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func fieldsMatch(it memory.Item, filters []memory.Filter) bool {
	for _, f := range filters {
		switch f.Field {
		case "task_id":
			if it.TaskID != f.Value {
				return false
			}
		case "node_id":
			if it.NodeID != f.Value {
				return false
			}
		case "kind":
			if it.Kind != f.Value {
				return false
			}
		case "source":
			if it.Source != f.Value {
				return false
			}
		case "role":
			if it.Role != f.Value {
				return false
			}
		}
	}
	return true
}

func orderItems(items []memory.Item, orderBy string) {
	field := orderBy
	desc := true
	if len(field) > 0 && field[0] == '-' {
		field = field[1:]
		desc = true
	} else if field != "" {
		desc = false
	} else {
		field = "timestamp"
	}
	sort.SliceStable(items, func(i, j int) bool {
		if field != "timestamp" {
			return false
		}
		if desc {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
}

var _ memory.Backend = (*Backend)(nil)

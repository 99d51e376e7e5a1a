// Package sqlitestore is the embedded relational memory.Backend (spec.md
// §4.3): two tables, memory_items and artifacts, indexed on task_id,
// node_id, and artifact_type, with synchronous writes under WAL. The schema
// is a named constant; queries are inline SQL, and rows are decoded
// through a rowScanner interface.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS memory_items (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL DEFAULT '',
	node_id TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	importance REAL,
	token_cost REAL,
	payload TEXT NOT NULL DEFAULT 'null',
	metadata TEXT NOT NULL DEFAULT '{}',
	timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL DEFAULT '',
	node_id TEXT NOT NULL DEFAULT '',
	artifact_type TEXT NOT NULL DEFAULT '',
	schema_ref TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT 'null',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_items_task ON memory_items(task_id);
CREATE INDEX IF NOT EXISTS idx_memory_items_node ON memory_items(node_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_task ON artifacts(task_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_node ON artifacts(node_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts(artifact_type);
`

// Backend is a SQLite-backed memory.Backend for the memory_items table.
type Backend struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at dbPath in WAL mode and ensures
// the schema exists.
func Open(dbPath string) (*Backend, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_open_failed", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_schema_failed", err)
	}
	return &Backend{db: db}, nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Add(item memory.Item) error {
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return errs.Wrap(errs.CategoryJSON, errs.SourceMemory, "sqlite_tags_marshal_failed", err)
	}
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return errs.Wrap(errs.CategoryJSON, errs.SourceMemory, "sqlite_payload_marshal_failed", err)
	}
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return errs.Wrap(errs.CategoryJSON, errs.SourceMemory, "sqlite_metadata_marshal_failed", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO memory_items (id, task_id, node_id, kind, source, role, tags, importance, token_cost, payload, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_id=excluded.task_id, node_id=excluded.node_id, kind=excluded.kind, source=excluded.source,
			role=excluded.role, tags=excluded.tags, importance=excluded.importance, token_cost=excluded.token_cost,
			payload=excluded.payload, metadata=excluded.metadata, timestamp=excluded.timestamp`,
		item.ID, item.TaskID, item.NodeID, item.Kind, item.Source, item.Role, string(tags),
		item.Importance, item.TokenCost, string(payload), string(metadata), item.Timestamp)
	if err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_insert_failed", err)
	}
	return nil
}

func (b *Backend) Get(id string) (memory.Item, bool, error) {
	row := b.db.QueryRow(`SELECT id, task_id, node_id, kind, source, role, tags, importance, token_cost, payload, metadata, timestamp FROM memory_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return memory.Item{}, false, nil
	}
	if err != nil {
		return memory.Item{}, false, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_get_failed", err)
	}
	return it, true, nil
}

func (b *Backend) Delete(id string) error {
	if _, err := b.db.Exec(`DELETE FROM memory_items WHERE id = ?`, id); err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_delete_failed", err)
	}
	return nil
}

func (b *Backend) ListAll() ([]memory.Item, error) {
	rows, err := b.db.Query(`SELECT id, task_id, node_id, kind, source, role, tags, importance, token_cost, payload, metadata, timestamp FROM memory_items ORDER BY timestamp DESC`)
	if err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_list_failed", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func (b *Backend) Clear() error {
	if _, err := b.db.Exec(`DELETE FROM memory_items`); err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_clear_failed", err)
	}
	return nil
}

func (b *Backend) Count() (int, error) {
	var n int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM memory_items`).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_count_failed", err)
	}
	return n, nil
}

// Query applies equality filters on scalar columns in the SQL WHERE
// clause; OR-semantics tag matching and non-equality filters on
// importance/token_cost are applied in Go after the SELECT (SQLite's JSON1
// extension is not assumed available across builds).
func (b *Backend) Query(q memory.Query) ([]memory.Item, error) {
	where := ""
	args := []any{}
	for _, f := range q.Filters {
		col, ok := scalarColumn(f.Field)
		if !ok || f.Op != "" && f.Op != memory.OpEq {
			continue // non-equality/scalar ops applied in the Go fallback below
		}
		where += fmt.Sprintf(" AND %s = ?", col)
		args = append(args, f.Value)
	}
	order := "timestamp DESC"
	if q.OrderBy != "" {
		field := q.OrderBy
		dir := "DESC"
		if field[0] == '-' {
			field = field[1:]
		} else {
			dir = "ASC"
		}
		if col, ok := scalarColumn(field); ok {
			order = fmt.Sprintf("%s %s", col, dir)
		}
	}
	rows, err := b.db.Query(fmt.Sprintf(`SELECT id, task_id, node_id, kind, source, role, tags, importance, token_cost, payload, metadata, timestamp FROM memory_items WHERE 1=1%s ORDER BY %s`, where, order), args...)
	if err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_query_failed", err)
	}
	defer rows.Close()
	items, err := scanAll(rows)
	if err != nil {
		return nil, err
	}

	filtered := make([]memory.Item, 0, len(items))
	for _, it := range items {
		if len(q.Tags) > 0 && !tagsOverlap(it.Tags, q.Tags) {
			continue
		}
		if !nonEqFiltersMatch(it, q.Filters) {
			continue
		}
		filtered = append(filtered, it)
	}
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered, nil
}

// EnforceRetention deletes oldest-by-timestamp rows beyond maxItems.
func (b *Backend) EnforceRetention(maxItems int) error {
	if maxItems <= 0 {
		return nil
	}
	var total int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM memory_items`).Scan(&total); err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_retention_count_failed", err)
	}
	if total <= maxItems {
		return nil
	}
	evict := total - maxItems
	_, err := b.db.Exec(`DELETE FROM memory_items WHERE id IN (SELECT id FROM memory_items ORDER BY timestamp ASC LIMIT ?)`, evict)
	if err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_retention_delete_failed", err)
	}
	return nil
}

func scalarColumn(field string) (string, bool) {
	switch field {
	case "task_id", "node_id", "kind", "source", "role", "timestamp", "importance", "token_cost":
		return field, true
	default:
		return "", false
	}
}

func nonEqFiltersMatch(it memory.Item, filters []memory.Filter) bool {
	for _, f := range filters {
		if f.Op == "" || f.Op == memory.OpEq {
			continue
		}
		var actual float64
		switch f.Field {
		case "importance":
			if it.Importance == nil {
				return false
			}
			actual = *it.Importance
		case "token_cost":
			if it.TokenCost == nil {
				return false
			}
			actual = *it.TokenCost
		default:
			continue
		}
		want, ok := toFloat(f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case memory.OpNe:
			if actual == want {
				return false
			}
		case memory.OpGt:
			if !(actual > want) {
				return false
			}
		case memory.OpGte:
			if !(actual >= want) {
				return false
			}
		case memory.OpLt:
			if !(actual < want) {
				return false
			}
		case memory.OpLte:
			if !(actual <= want) {
				return false
			}
		}
	}
	return true
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

func tagsOverlap(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (memory.Item, error) {
	var it memory.Item
	var tagsJSON, payloadJSON, metadataJSON string
	var importance, tokenCost sql.NullFloat64
	var ts time.Time
	if err := row.Scan(&it.ID, &it.TaskID, &it.NodeID, &it.Kind, &it.Source, &it.Role, &tagsJSON, &importance, &tokenCost, &payloadJSON, &metadataJSON, &ts); err != nil {
		return memory.Item{}, err
	}
	_ = json.Unmarshal([]byte(tagsJSON), &it.Tags)
	_ = json.Unmarshal([]byte(payloadJSON), &it.Payload)
	_ = json.Unmarshal([]byte(metadataJSON), &it.Metadata)
	if importance.Valid {
		v := importance.Float64
		it.Importance = &v
	}
	if tokenCost.Valid {
		v := tokenCost.Float64
		it.TokenCost = &v
	}
	it.Timestamp = ts
	return it, nil
}

func scanAll(rows *sql.Rows) ([]memory.Item, error) {
	var out []memory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_scan_failed", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "sqlite_rows_failed", err)
	}
	return out, nil
}

var _ memory.Backend = (*Backend)(nil)

// Package memory implements the three memory tiers (task/project/global)
// described in spec.md §4.3: a shared Backend interface plus in-memory,
// append-log, and embedded-relational implementations.
package memory

import "time"

// Item is one stored unit of memory. It doubles as the context assembler's
// candidate record (spec.md §4.4's ContextItem).
type Item struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id,omitempty"`
	NodeID    string         `json:"node_id,omitempty"`
	Kind      string         `json:"kind"`
	Source    string         `json:"source"`
	Role      string         `json:"role,omitempty"` // e.g. "system", "user", "assistant"
	Tags      []string       `json:"tags,omitempty"`
	Importance *float64      `json:"importance,omitempty"`
	TokenCost  *float64      `json:"token_cost,omitempty"`
	Payload    any           `json:"payload"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Op is a scalar comparison operator supported by Filter (spec.md §4.3).
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
)

// Filter is a single field constraint. List-valued fields (e.g. tags) match
// on any overlap with Value when it is a []string; scalar fields compare
// via Op (default $eq).
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query describes a backend.Query call: a filter set, an optional limit, and
// an order_by field with an optional leading '-' for descending (the
// default order is descending by Field "timestamp").
type Query struct {
	Filters []Filter
	Tags    []string // OR semantics: any overlap matches; empty = no tag filter
	Limit   int
	OrderBy string
}

// Backend is the storage contract every memory tier wraps (spec.md §4.3).
type Backend interface {
	Add(item Item) error
	Get(id string) (Item, bool, error)
	Delete(id string) error
	Query(q Query) ([]Item, error)
	ListAll() ([]Item, error)
	Clear() error
	Count() (int, error)
	EnforceRetention(maxItems int) error
}

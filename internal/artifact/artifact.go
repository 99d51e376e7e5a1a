// Package artifact implements the artifact store described in spec.md
// §4.5: a hash map keyed by artifact_id with secondary indexes by task and
// node, and an optional oldest-first eviction cap. Grounded on
// original_source/runtime/artifact_store.py, following the same
// indexed-row conventions used throughout this module's stores.
package artifact

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is one stored output (spec.md §4.5).
type Artifact struct {
	ArtifactID string         `json:"artifact_id"`
	TaskID     string         `json:"task_id"`
	NodeID     string         `json:"node_id,omitempty"`
	Type       string         `json:"type"`
	SchemaRef  string         `json:"schema_ref,omitempty"`
	Payload    any            `json:"payload"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store is a thread-safe, monotonically growing artifact store with an
// optional maximum-size eviction policy.
type Store struct {
	mu        sync.Mutex
	maxItems  int // 0 = unbounded
	artifacts map[string]Artifact
	byTask    map[string][]string
	byNode    map[string][]string
	order     []string // insertion order, used to find the oldest entry
}

// New creates a Store. maxItems <= 0 means unbounded growth.
func New(maxItems int) *Store {
	return &Store{
		maxItems:  maxItems,
		artifacts: make(map[string]Artifact),
		byTask:    make(map[string][]string),
		byNode:    make(map[string][]string),
	}
}

// Store records a new artifact and returns its generated id.
func (s *Store) Store(taskID, artifactType string, payload any, nodeID, schemaRef string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	a := Artifact{
		ArtifactID: id,
		TaskID:     taskID,
		NodeID:     nodeID,
		Type:       artifactType,
		SchemaRef:  schemaRef,
		Payload:    payload,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	s.artifacts[id] = a
	s.order = append(s.order, id)
	s.byTask[taskID] = append(s.byTask[taskID], id)
	if nodeID != "" {
		s.byNode[nodeID] = append(s.byNode[nodeID], id)
	}

	if s.maxItems > 0 && len(s.order) > s.maxItems {
		s.evictOldestLocked()
	}
	return id, nil
}

// evictOldestLocked removes the single oldest-by-timestamp artifact.
// Caller must hold s.mu.
func (s *Store) evictOldestLocked() {
	if len(s.order) == 0 {
		return
	}
	oldestIdx := 0
	oldest := s.artifacts[s.order[0]]
	for i, id := range s.order {
		a := s.artifacts[id]
		if a.CreatedAt.Before(oldest.CreatedAt) {
			oldest = a
			oldestIdx = i
		}
	}
	s.removeLocked(oldest.ArtifactID, oldestIdx)
}

func (s *Store) removeLocked(id string, orderIdx int) {
	a, ok := s.artifacts[id]
	if !ok {
		return
	}
	delete(s.artifacts, id)
	s.order = append(s.order[:orderIdx], s.order[orderIdx+1:]...)
	s.byTask[a.TaskID] = removeID(s.byTask[a.TaskID], id)
	if a.NodeID != "" {
		s.byNode[a.NodeID] = removeID(s.byNode[a.NodeID], id)
	}
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Get retrieves an artifact by id.
func (s *Store) Get(artifactID string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[artifactID]
	return a, ok
}

// ByTask returns every artifact produced for a task, oldest first.
func (s *Store) ByTask(taskID string) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.byTask[taskID])
}

// ByNode returns every artifact produced by a node, oldest first.
func (s *Store) ByNode(nodeID string) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.byNode[nodeID])
}

// ByType returns every artifact of the given type, optionally scoped to a
// task, oldest first.
func (s *Store) ByType(artifactType string, taskID string) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Artifact
	for _, id := range s.order {
		a := s.artifacts[id]
		if a.Type != artifactType {
			continue
		}
		if taskID != "" && a.TaskID != taskID {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (s *Store) collect(ids []string) []Artifact {
	out := make([]Artifact, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.artifacts[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count returns the number of stored artifacts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

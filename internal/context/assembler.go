package context

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/memory"
	"github.com/antigravity-dev/agentengine/internal/task"
)

// TaskConclusionCount is the number of most-recent conversation turns
// protected from eviction alongside system-tagged items (spec.md §4.4).
const TaskConclusionCount = 3

// Assembler resolves context selectors and assembles Package values from
// the three memory tiers.
type Assembler struct {
	Tiers     *memory.Tiers
	Profiles  map[string]Profile
	Retriever Retriever
}

// NewAssembler builds an Assembler over the given tiers and named profiles.
func NewAssembler(tiers *memory.Tiers, profiles map[string]Profile) *Assembler {
	return &Assembler{Tiers: tiers, Profiles: profiles}
}

// ResolveProfile implements spec.md §4.4's selector resolution: "none"
// returns (nil, nil); "global" returns the synthesized built-in profile;
// any other string looks up a named profile and validates it.
func (a *Assembler) ResolveProfile(contextSpec string) (*Profile, error) {
	if contextSpec == "" || contextSpec == "none" {
		return nil, nil
	}
	if contextSpec == "global" {
		p := globalDefault()
		return &p, nil
	}
	p, ok := a.Profiles[contextSpec]
	if !ok {
		return nil, errs.Validation(errs.SourceRuntime, "profile_not_found", "context profile %q not found", contextSpec)
	}
	if err := validateProfile(p); err != nil {
		return nil, err
	}
	return &p, nil
}

func validateProfile(p Profile) error {
	if p.MaxTokens <= 0 {
		return errs.Validation(errs.SourceRuntime, "invalid_max_tokens", "context profile %q: max_tokens must be > 0, got %d", p.ID, p.MaxTokens)
	}
	switch p.RetrievalPolicy {
	case PolicyRecency, PolicySemantic, PolicyHybrid:
	default:
		return errs.Validation(errs.SourceRuntime, "invalid_retrieval_policy", "context profile %q: unsupported retrieval_policy %q", p.ID, p.RetrievalPolicy)
	}
	for _, s := range p.Sources {
		switch s.Store {
		case memory.TierTask, memory.TierProject, memory.TierGlobal:
		default:
			return errs.Validation(errs.SourceRuntime, "invalid_source_store", "context profile %q: source store %q invalid", p.ID, s.Store)
		}
	}
	return nil
}

// Build assembles a Package for t using the given context selector. A nil
// Package (and nil error) means the node receives no context.
func (a *Assembler) Build(t task.Task, contextSpec string) (*Package, error) {
	profile, err := a.ResolveProfile(contextSpec)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}

	var candidates []memory.Item
	for _, src := range profile.Sources {
		scopeID := ""
		switch src.Store {
		case memory.TierTask:
			scopeID = t.TaskID
		case memory.TierProject:
			scopeID = t.Spec.ProjectID()
		}
		backend, err := a.Tiers.Store(src.Store, scopeID)
		if err != nil {
			return nil, err
		}
		items, err := backend.ListAll()
		if err != nil {
			return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "context_source_query_failed", err)
		}
		items = filterByTags(items, src.Tags)
		candidates = append(candidates, items...)
	}

	if usesRetrieval(profile) && a.Retriever != nil {
		ragItems, err := a.retrieveChunks(t, *profile)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, ragItems...)
	}

	sortByRecencyDesc(candidates)
	protected := protectedItems(candidates)
	selected := selectWithinBudget(candidates, profile.MaxTokens, protected, profile.HeadTailPreserve)

	ratio := 1.0
	if len(candidates) > 0 {
		totalCost := sumTokenCost(candidates)
		if totalCost > 0 {
			ratio = sumTokenCost(selected) / totalCost
		}
	}

	return &Package{
		ID:               fmt.Sprintf("ctx-%s-%s", t.TaskID, profile.ID),
		Items:            selected,
		CompressionRatio: ratio,
	}, nil
}

func usesRetrieval(p *Profile) bool {
	if p.Metadata != nil {
		if v, ok := p.Metadata["rag_enabled"].(bool); ok && v {
			return true
		}
	}
	return p.RetrievalPolicy == PolicySemantic || p.RetrievalPolicy == PolicyHybrid
}

func (a *Assembler) retrieveChunks(t task.Task, p Profile) ([]memory.Item, error) {
	query := inferQuery(t)
	if query == "" {
		return nil, nil
	}
	topK := 5
	if p.Metadata != nil {
		if v, ok := p.Metadata["rag_top_k"].(int); ok && v > 0 {
			topK = v
		}
	}
	chunks, err := a.Retriever.Search(query, topK)
	if err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceRuntime, "retrieval_failed", err)
	}
	items := make([]memory.Item, 0, len(chunks))
	for _, c := range chunks {
		score := c.Score
		cost := float64(len(tokenizeWords(c.Text)))
		md := map[string]any{}
		for k, v := range c.Metadata {
			md[k] = v
		}
		md["retrieval_score"] = c.Score
		items = append(items, memory.Item{
			ID:         "rag-" + c.ChunkID,
			Kind:       "retrieval_chunk",
			Source:     "retrieval",
			Tags:       []string{"retrieval"},
			Importance: &score,
			TokenCost:  &cost,
			Payload:    c.Text,
			Metadata:   md,
		})
	}
	return items, nil
}

func inferQuery(t task.Task) string {
	if s, ok := t.Spec.Request.(string); ok {
		return s
	}
	if t.Spec.Request != nil {
		if data, err := json.Marshal(t.Spec.Request); err == nil {
			return string(data)
		}
	}
	if s, ok := t.CurrentOutput.(string); ok {
		return s
	}
	return ""
}

func tokenizeWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

func filterByTags(items []memory.Item, tags []string) []memory.Item {
	if len(tags) == 0 {
		return items
	}
	out := make([]memory.Item, 0, len(items))
	for _, it := range items {
		for _, want := range tags {
			matched := false
			for _, have := range it.Tags {
				if want == have {
					matched = true
					break
				}
			}
			if matched {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

func sortByRecencyDesc(items []memory.Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
}

// protectedItems returns system-tagged items plus the TaskConclusionCount
// most-recent user/assistant turns, deduplicated by id (spec.md §4.4 step 5).
func protectedItems(items []memory.Item) []memory.Item {
	seen := map[string]bool{}
	var protected []memory.Item

	for _, it := range items {
		if it.Role == "system" && !seen[it.ID] {
			protected = append(protected, it)
			seen[it.ID] = true
		}
	}

	var convo []memory.Item
	for _, it := range items {
		if it.Role == "user" || it.Role == "assistant" {
			convo = append(convo, it)
		}
	}
	sort.SliceStable(convo, func(i, j int) bool { return convo[i].Timestamp.Before(convo[j].Timestamp) })
	if len(convo) > TaskConclusionCount {
		convo = convo[len(convo)-TaskConclusionCount:]
	}
	for _, it := range convo {
		if !seen[it.ID] {
			protected = append(protected, it)
			seen[it.ID] = true
		}
	}
	return protected
}

// selectWithinBudget implements spec.md §4.4 steps 6-7: protected items are
// included unconditionally, then the non-protected remainder (optionally
// reordered so head/tail candidates are preferred over the middle) is
// added greedily by (importance desc, timestamp desc) while the running
// token sum stays within budget.
func selectWithinBudget(recencyOrdered []memory.Item, budget int, protected []memory.Item, headTailPreserve int) []memory.Item {
	protectedIDs := map[string]bool{}
	selected := make([]memory.Item, 0, len(protected))
	var used float64
	for _, it := range protected {
		selected = append(selected, it)
		used += tokenCost(it)
		protectedIDs[it.ID] = true
	}

	var remaining []memory.Item
	for _, it := range recencyOrdered {
		if !protectedIDs[it.ID] {
			remaining = append(remaining, it)
		}
	}

	ordered := orderForSelection(remaining, headTailPreserve)

	budgetF := float64(budget)
	for _, it := range ordered {
		cost := tokenCost(it)
		if used+cost <= budgetF {
			selected = append(selected, it)
			used += cost
		}
		if used >= budgetF {
			break
		}
	}
	return selected
}

// orderForSelection sorts by (importance desc, timestamp desc), then, if a
// head/tail preservation count is configured and there are enough
// candidates, promotes the head and tail of the recency-ordered input
// ahead of the untouched middle (spec.md §4.4 step 7).
func orderForSelection(recencyOrdered []memory.Item, headTailPreserve int) []memory.Item {
	importanceOrdered := append([]memory.Item(nil), recencyOrdered...)
	sort.SliceStable(importanceOrdered, func(i, j int) bool {
		ii, ij := importanceOrdered[i], importanceOrdered[j]
		iv, jv := importanceValue(ii), importanceValue(ij)
		if iv != jv {
			return iv > jv
		}
		return ii.Timestamp.After(ij.Timestamp)
	})

	if headTailPreserve <= 0 || len(recencyOrdered) <= 2*headTailPreserve {
		return importanceOrdered
	}

	headIDs := map[string]bool{}
	tailIDs := map[string]bool{}
	for _, it := range recencyOrdered[:headTailPreserve] {
		headIDs[it.ID] = true
	}
	for _, it := range recencyOrdered[len(recencyOrdered)-headTailPreserve:] {
		tailIDs[it.ID] = true
	}

	var head, middle, tail []memory.Item
	for _, it := range importanceOrdered {
		switch {
		case headIDs[it.ID]:
			head = append(head, it)
		case tailIDs[it.ID]:
			tail = append(tail, it)
		default:
			middle = append(middle, it)
		}
	}
	out := make([]memory.Item, 0, len(importanceOrdered))
	out = append(out, head...)
	out = append(out, tail...)
	out = append(out, middle...)
	return out
}

func importanceValue(it memory.Item) float64 {
	if it.Importance == nil {
		return 0
	}
	return *it.Importance
}

func tokenCost(it memory.Item) float64 {
	if it.TokenCost == nil {
		return 0
	}
	return *it.TokenCost
}

func sumTokenCost(items []memory.Item) float64 {
	var sum float64
	for _, it := range items {
		sum += tokenCost(it)
	}
	return sum
}

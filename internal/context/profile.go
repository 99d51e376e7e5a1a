// Package context implements the context assembler described in spec.md
// §4.4: profile resolution, multi-tier querying, protected-set
// computation, and token-budgeted selection. Grounded on
// original_source/runtime/context.py's build_context_for_profile.
package context

import "github.com/antigravity-dev/agentengine/internal/memory"

// Policy is a supported retrieval_policy value.
type Policy string

const (
	PolicyRecency Policy = "recency"
	PolicySemantic Policy = "semantic"
	PolicyHybrid  Policy = "hybrid"
)

// Source binds one profile source to a memory tier and an optional tag
// filter (OR semantics; empty means no filter).
type Source struct {
	Store memory.Tier `yaml:"store" json:"store"`
	Tags  []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Profile describes how to assemble a context package (spec.md §4.4).
type Profile struct {
	ID               string         `yaml:"id" json:"id"`
	MaxTokens        int            `yaml:"max_tokens" json:"max_tokens"`
	RetrievalPolicy  Policy         `yaml:"retrieval_policy" json:"retrieval_policy"`
	Sources          []Source       `yaml:"sources" json:"sources"`
	HeadTailPreserve int            `yaml:"head_tail_preserve,omitempty" json:"head_tail_preserve,omitempty"`
	Metadata         map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// globalDefault is the synthesized built-in profile returned for the
// context spec value "global" (spec.md §4.4).
func globalDefault() Profile {
	return Profile{
		ID:              "global_default",
		MaxTokens:       8000,
		RetrievalPolicy: PolicyRecency,
		Sources: []Source{
			{Store: memory.TierTask},
			{Store: memory.TierProject},
			{Store: memory.TierGlobal},
		},
	}
}

// Package is the assembled context handed to a node (spec.md §4.4's
// ContextPackage).
type Package struct {
	ID               string        `json:"context_package_id"`
	Items            []memory.Item `json:"items"`
	Summary          string        `json:"summary,omitempty"`
	CompressionRatio float64       `json:"compression_ratio"`
}

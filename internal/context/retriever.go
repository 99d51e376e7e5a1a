package context

// Chunk is one semantically retrieved candidate (spec.md §4.4 step 3).
type Chunk struct {
	ChunkID  string
	Text     string
	Score    float64
	Metadata map[string]any
}

// Retriever augments recency-ordered candidates with semantically or
// hybrid-ranked chunks when a profile's policy calls for it. Engines that
// do not wire a retrieval subsystem simply never set one on the
// Assembler, and step 3 of the assembly algorithm is skipped.
type Retriever interface {
	Search(query string, topK int) ([]Chunk, error)
}

package store

// TableName is the single table holding every tenant's chunks.
const TableName = "knowledge_documents"

// Chunk is the persisted unit: one text segment of a document together with
// its embedding vector and an opaque serialized metadata blob. Chunks are
// never mutated after write; updates are modeled as delete-then-reinsert.
type Chunk struct {
	ID         string    // deterministic composed key: "{documentID}_chunk_{index}"
	DocumentID string    // owning logical document
	Content    string    // text segment
	Vector     []float32 // embedding of Content, fixed dimension per table
	Metadata   string    // serialized JSON, not filterable inside the store
}

// ScoredChunk is a similarity-search hit with its cosine similarity score.
type ScoredChunk struct {
	Chunk
	Score float64 // higher is closer
}

package kb

// ChunkMetadata is the fixed metadata record serialized as JSON into the
// store's opaque metadata column. The store cannot filter on any of these
// fields, so every read path parses and filters in memory.
type ChunkMetadata struct {
	Name           string   `json:"name"`
	AgentIDs       []string `json:"agentIds"`
	OrganizationID string   `json:"organizationId"`
	ChunkIndex     int      `json:"chunkIndex"`
	TotalChunks    int      `json:"totalChunks"`
}

// SearchResult is one retrieval hit, scoped to the caller's organization
// and agent.
type SearchResult struct {
	Content      string  `json:"content"`
	DocumentName string  `json:"documentName"`
	Score        float64 `json:"score"`
	ChunkIndex   int     `json:"chunkIndex"`
	TotalChunks  int     `json:"totalChunks"`
}

// DocumentSummary is one logical document reconstructed by grouping its
// chunks. Chunks is the total recorded at ingestion time.
type DocumentSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	AgentIDs []string `json:"agentIds"`
	Chunks   int      `json:"chunks"`
}

// IntegrityReport describes whether a document's persisted chunks match the
// totals recorded in their metadata. An incomplete report indicates a
// partial ingestion: a chunk-level failure left fewer chunks than the
// ingestion intended to write.
type IntegrityReport struct {
	DocumentID      string `json:"documentId"`
	Complete        bool   `json:"complete"`
	PersistedChunks int    `json:"persistedChunks"`
	ExpectedChunks  int    `json:"expectedChunks"`
	MissingIndices  []int  `json:"missingIndices,omitempty"`
}

// Package kb orchestrates chunking, embedding and vector storage into a
// tenant-scoped knowledge base for voice agents.
//
// Ingestion failures propagate: adding a document is an explicit admin
// action and the caller must see what failed. Retrieval failures degrade to
// empty results with a logged warning, because retrieval runs inside live
// conversation flows where a knowledge gap beats a hard failure.
package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/voxadmin/kb-indexer/internal/chunker"
	"github.com/voxadmin/kb-indexer/internal/store"
)

const (
	// DefaultSearchLimit is the number of results returned when the caller
	// does not specify a limit.
	DefaultSearchLimit = 5

	// OverfetchMultiplier controls how many similarity hits are requested
	// per wanted result. The store cannot filter by tenant or agent, so the
	// service fetches multiplier*k nearest chunks and post-filters; if more
	// near neighbors than that belong to other tenants, results under-fill
	// below k.
	OverfetchMultiplier = 3
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the subset of the embedded store the service depends on.
type VectorStore interface {
	InsertMany(ctx context.Context, chunks []store.Chunk) error
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]store.ScoredChunk, error)
	ScanAll(ctx context.Context) ([]store.Chunk, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// Service is the knowledge base facade: ingestion, retrieval, listing,
// deletion and content reassembly, always scoped to an organization.
type Service struct {
	chunker  *chunker.Chunker
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
}

// NewService creates a Service from its injected collaborators.
func NewService(c *chunker.Chunker, embedder Embedder, vs VectorStore, logger *slog.Logger) *Service {
	if c == nil {
		c = chunker.New(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chunker:  c,
		embedder: embedder,
		store:    vs,
		logger:   logger,
	}
}

// chunkID builds the deterministic chunk key for a document chunk.
func chunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// AddDocument chunks content, embeds every chunk and persists the records.
// The caller supplies the stable documentID; re-adding an existing id
// requires deleting it first, since the store has no upsert semantics.
//
// A failure partway through leaves already-written chunks in place with no
// rollback; VerifyDocument detects the resulting incomplete state.
func (s *Service) AddDocument(ctx context.Context, documentID, name, content string, agentIDs []string, organizationID string) error {
	texts := s.chunker.Split(content)
	if len(texts) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyDocument, documentID)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", documentID, err)
	}

	chunks := make([]store.Chunk, len(texts))
	for i, text := range texts {
		metadata, err := json.Marshal(ChunkMetadata{
			Name:           name,
			AgentIDs:       agentIDs,
			OrganizationID: organizationID,
			ChunkIndex:     i,
			TotalChunks:    len(texts),
		})
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		chunks[i] = store.Chunk{
			ID:         chunkID(documentID, i),
			DocumentID: documentID,
			Content:    text,
			Vector:     vectors[i],
			Metadata:   string(metadata),
		}
	}

	if err := s.store.InsertMany(ctx, chunks); err != nil {
		return fmt.Errorf("storing document %s: %w", documentID, err)
	}

	s.logger.Info("Indexed document",
		"document", documentID,
		"name", name,
		"organization", organizationID,
		"chunks", len(chunks),
	)
	return nil
}

// SearchDocuments embeds the query, over-fetches similarity hits and filters
// them down to chunks visible to the given organization and agent, truncated
// to limit (DefaultSearchLimit when limit <= 0).
//
// It never returns an error for embedding or store failures: retrieval
// degradation is logged and an empty result is returned so the caller's
// conversation flow keeps working.
func (s *Service) SearchDocuments(ctx context.Context, query, agentID, organizationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("Knowledge search degraded: query embedding failed", "error", err)
		return nil, nil
	}

	hits, err := s.store.SimilaritySearch(ctx, queryVector, limit*OverfetchMultiplier)
	if err != nil {
		s.logger.Warn("Knowledge search degraded: similarity search failed", "error", err)
		return nil, nil
	}

	results := make([]SearchResult, 0, limit)
	for _, hit := range hits {
		meta, ok := s.parseMetadata(hit.Chunk)
		if !ok {
			continue
		}
		if meta.OrganizationID != organizationID || !slices.Contains(meta.AgentIDs, agentID) {
			continue
		}
		results = append(results, SearchResult{
			Content:      hit.Content,
			DocumentName: meta.Name,
			Score:        hit.Score,
			ChunkIndex:   meta.ChunkIndex,
			TotalChunks:  meta.TotalChunks,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// GetDocuments returns one summary per logical document owned by the
// organization, reconstructed by grouping chunks. Empty when the store has
// never been written to.
func (s *Service) GetDocuments(ctx context.Context, organizationID string) ([]DocumentSummary, error) {
	chunks, err := s.store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	seen := make(map[string]bool)
	var summaries []DocumentSummary
	for _, chunk := range chunks {
		if seen[chunk.DocumentID] {
			continue
		}
		meta, ok := s.parseMetadata(chunk)
		if !ok || meta.OrganizationID != organizationID {
			continue
		}
		seen[chunk.DocumentID] = true
		summaries = append(summaries, DocumentSummary{
			ID:       chunk.DocumentID,
			Name:     meta.Name,
			AgentIDs: meta.AgentIDs,
			Chunks:   meta.TotalChunks,
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// DeleteDocument removes every chunk of the document owned by the
// organization. Deleting a document that does not exist (or belongs to a
// different organization) is a no-op, so deletion is idempotent.
func (s *Service) DeleteDocument(ctx context.Context, documentID, organizationID string) error {
	chunks, err := s.ownedChunks(ctx, documentID, organizationID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}
	if err := s.store.DeleteByIDs(ctx, ids); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}

	s.logger.Info("Deleted document",
		"document", documentID,
		"organization", organizationID,
		"chunks", len(ids),
	)
	return nil
}

// GetDocumentContent reassembles the document's text by sorting its chunks
// by index and joining them with blank lines — the inverse of chunking,
// modulo boundary whitespace and overlap duplication.
func (s *Service) GetDocumentContent(ctx context.Context, documentID, organizationID string) (string, error) {
	chunks, err := s.ownedChunks(ctx, documentID, organizationID)
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	type ordered struct {
		index   int
		content string
	}
	parts := make([]ordered, 0, len(chunks))
	for _, chunk := range chunks {
		meta, ok := s.parseMetadata(chunk)
		if !ok {
			continue
		}
		parts = append(parts, ordered{index: meta.ChunkIndex, content: chunk.Content})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].index < parts[j].index })

	contents := make([]string, len(parts))
	for i, part := range parts {
		contents[i] = part.content
	}
	return strings.Join(contents, "\n\n"), nil
}

// VerifyDocument compares the persisted chunks of a document against the
// totals recorded at ingestion time. An incomplete report means a previous
// AddDocument failed partway through; the fix is delete and re-add.
func (s *Service) VerifyDocument(ctx context.Context, documentID, organizationID string) (*IntegrityReport, error) {
	chunks, err := s.ownedChunks(ctx, documentID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("verifying document %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	expected := 0
	present := make(map[int]bool, len(chunks))
	consistent := true
	for _, chunk := range chunks {
		meta, ok := s.parseMetadata(chunk)
		if !ok {
			consistent = false
			continue
		}
		if expected == 0 {
			expected = meta.TotalChunks
		} else if meta.TotalChunks != expected {
			consistent = false
		}
		if present[meta.ChunkIndex] {
			consistent = false
		}
		present[meta.ChunkIndex] = true
	}

	var missing []int
	for i := 0; i < expected; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}

	return &IntegrityReport{
		DocumentID:      documentID,
		Complete:        consistent && len(missing) == 0 && len(chunks) == expected,
		PersistedChunks: len(chunks),
		ExpectedChunks:  expected,
		MissingIndices:  missing,
	}, nil
}

// ownedChunks scans the store and returns the chunks belonging to the given
// document and organization. The organization check is an access-control
// invariant: chunks of other tenants are never returned, even for a matching
// document id.
func (s *Service) ownedChunks(ctx context.Context, documentID, organizationID string) ([]store.Chunk, error) {
	all, err := s.store.ScanAll(ctx)
	if err != nil {
		return nil, err
	}

	var owned []store.Chunk
	for _, chunk := range all {
		if chunk.DocumentID != documentID {
			continue
		}
		meta, ok := s.parseMetadata(chunk)
		if !ok || meta.OrganizationID != organizationID {
			continue
		}
		owned = append(owned, chunk)
	}
	return owned, nil
}

// parseMetadata decodes a chunk's metadata blob. Records with unparseable
// metadata are skipped with a warning rather than failing the read path.
func (s *Service) parseMetadata(chunk store.Chunk) (ChunkMetadata, bool) {
	var meta ChunkMetadata
	if err := json.Unmarshal([]byte(chunk.Metadata), &meta); err != nil {
		s.logger.Warn("Skipping chunk with unreadable metadata", "chunk", chunk.ID, "error", err)
		return ChunkMetadata{}, false
	}
	return meta, true
}

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a store in a fresh temp directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { s.Close() })
	return s
}

func testChunk(docID string, index int, vector []float32) Chunk {
	return Chunk{
		ID:         fmt.Sprintf("%s_chunk_%d", docID, index),
		DocumentID: docID,
		Content:    fmt.Sprintf("content of chunk %d", index),
		Vector:     vector,
		Metadata:   `{"organizationId":"org-1"}`,
	}
}

func TestEmptyStateBeforeTableCreation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Every operation must tolerate the table never having been created.
	results, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	chunks, err := s.ScanAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	require.NoError(t, s.DeleteByIDs(ctx, []string{"doc_chunk_0"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Zero(t, dim)
}

func TestEnsureTableIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureTable(ctx, 3))
	require.NoError(t, s.EnsureTable(ctx, 3))

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

func TestEnsureTableDimensionMismatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureTable(ctx, 3))
	err := s.EnsureTable(ctx, 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsertAndScanRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	chunks := []Chunk{
		testChunk("doc-1", 0, []float32{1, 0, 0}),
		testChunk("doc-1", 1, []float32{0, 1, 0}),
	}
	require.NoError(t, s.InsertMany(ctx, chunks))

	got, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[string]Chunk{}
	for _, c := range got {
		byID[c.ID] = c
	}
	for _, want := range chunks {
		c, ok := byID[want.ID]
		require.True(t, ok, "chunk %s missing after insert", want.ID)
		assert.Equal(t, want.DocumentID, c.DocumentID)
		assert.Equal(t, want.Content, c.Content)
		assert.Equal(t, want.Vector, c.Vector)
		assert.Equal(t, want.Metadata, c.Metadata)
	}
}

func TestInsertManyCreatesTableLazily(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// No EnsureTable call: the first insert establishes the dimension.
	require.NoError(t, s.InsertMany(ctx, []Chunk{testChunk("doc-1", 0, []float32{1, 2, 3, 4})}))

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, dim)
}

func TestInsertManyRejectsMixedDimensions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.InsertMany(ctx, []Chunk{
		testChunk("doc-1", 0, []float32{1, 0, 0}),
		testChunk("doc-1", 1, []float32{1, 0}),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = s.InsertMany(ctx, []Chunk{testChunk("doc-2", 0, []float32{1, 0, 0})})
	require.NoError(t, err)

	err = s.InsertMany(ctx, []Chunk{testChunk("doc-3", 0, []float32{1, 0})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSimilaritySearchOrdering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, []Chunk{
		testChunk("far", 0, []float32{0, 1, 0}),
		testChunk("near", 0, []float32{0.9, 0.1, 0}),
		testChunk("exact", 0, []float32{1, 0, 0}),
	}))

	results, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact_chunk_0", results[0].ID)
	assert.Equal(t, "near_chunk_0", results[1].ID)
	assert.Equal(t, "far_chunk_0", results[2].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestSimilaritySearchTruncatesToK(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var chunks []Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, testChunk(fmt.Sprintf("doc-%d", i), 0, []float32{float32(i), 1, 0}))
	}
	require.NoError(t, s.InsertMany(ctx, chunks))

	results, err := s.SimilaritySearch(ctx, []float32{1, 1, 0}, 4)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestSimilaritySearchDimensionMismatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, []Chunk{testChunk("doc-1", 0, []float32{1, 0, 0})}))

	_, err := s.SimilaritySearch(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDeleteByIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, []Chunk{
		testChunk("doc-1", 0, []float32{1, 0, 0}),
		testChunk("doc-1", 1, []float32{0, 1, 0}),
		testChunk("doc-2", 0, []float32{0, 0, 1}),
	}))

	require.NoError(t, s.DeleteByIDs(ctx, []string{"doc-1_chunk_0", "doc-1_chunk_1"}))

	chunks, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc-2_chunk_0", chunks[0].ID)

	// Deleting the same ids again is a no-op, not an error.
	require.NoError(t, s.DeleteByIDs(ctx, []string{"doc-1_chunk_0", "doc-1_chunk_1"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "knowledge.db"), s.Path())
	require.NoError(t, s.InsertMany(ctx, []Chunk{testChunk("doc-1", 0, []float32{0.5, 0.25, -1})}))
	require.NoError(t, s.Close())

	// Reopen the same directory: data and dimension must survive.
	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	chunks, err := s2.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc-1_chunk_0", chunks[0].ID)
	assert.Equal(t, []float32{0.5, 0.25, -1}, chunks[0].Vector)

	dim, err := s2.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

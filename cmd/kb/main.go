// Package main provides the kb CLI for managing the voice-agent knowledge base.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voxadmin/kb-indexer/internal/chunker"
	"github.com/voxadmin/kb-indexer/internal/embedding"
	"github.com/voxadmin/kb-indexer/internal/extract"
	"github.com/voxadmin/kb-indexer/internal/kb"
	"github.com/voxadmin/kb-indexer/internal/store"
)

var (
	flagDocID  string
	flagName   string
	flagOrg    string
	flagAgents []string
	flagMime   string
	flagLimit  int
)

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Voice-agent knowledge base management tool",
	Long: `CLI for the document knowledge base: ingest documents, run
similarity searches, and inspect or delete indexed content.

Environment variables:
  OPENAI_API_KEY Embedding API key (required for ingest and search)
  KB_DATA_DIR    Vector store directory (default: ./kb-data)`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Extract, chunk, embed and index a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Similarity search scoped to an organization and agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's indexed documents",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var contentCmd = &cobra.Command{
	Use:   "content <document-id>",
	Short: "Reassemble and print a document's indexed text",
	Args:  cobra.ExactArgs(1),
	RunE:  runContent,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vector store location, size and dimension",
	RunE:  runStatus,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <document-id>",
	Short: "Check a document's chunks for partial-ingestion damage",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	ingestCmd.Flags().StringVar(&flagDocID, "id", "", "document id (default: new UUID)")
	ingestCmd.Flags().StringVar(&flagName, "name", "", "document name (default: file name)")
	ingestCmd.Flags().StringVar(&flagMime, "mime", "", "mime type (default: by file extension)")
	ingestCmd.Flags().StringSliceVar(&flagAgents, "agent", nil, "agent ids allowed to retrieve this document")
	searchCmd.Flags().StringSliceVar(&flagAgents, "agent", nil, "agent id performing the search")
	searchCmd.Flags().IntVar(&flagLimit, "limit", kb.DefaultSearchLimit, "maximum results")

	for _, cmd := range []*cobra.Command{ingestCmd, searchCmd, listCmd, deleteCmd, contentCmd, verifyCmd} {
		cmd.Flags().StringVar(&flagOrg, "org", "", "organization id (required)")
		_ = cmd.MarkFlagRequired("org")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(statusCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openService wires the service against the configured store directory.
// Pass a nil embedder for operations that never embed.
func openService(embedder kb.Embedder) (*kb.Service, *store.Store, error) {
	dataDir := getEnv("KB_DATA_DIR", "./kb-data")
	st, err := store.Open(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening vector store in %s: %w", dataDir, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return kb.NewService(chunker.New(0, 0), embedder, st, logger), st, nil
}

func newEmbedder() (*embedding.Embedder, error) {
	client, err := embedding.NewClient()
	if err != nil {
		return nil, err
	}
	return embedding.NewEmbedder(client, 0), nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	text, err := extract.NewExtractor().Extract(data, flagMime, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("extracting %s: %w", path, err)
	}

	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	svc, st, err := openService(embedder)
	if err != nil {
		return err
	}
	defer st.Close()

	docID := flagDocID
	if docID == "" {
		docID = uuid.New().String()
	}
	name := flagName
	if name == "" {
		name = filepath.Base(path)
	}

	if err := svc.AddDocument(ctx, docID, name, text, flagAgents, flagOrg); err != nil {
		return fmt.Errorf("ingesting %s: %w", name, err)
	}

	fmt.Printf("Indexed %s as document %s\n", name, docID)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	agentID := ""
	if len(flagAgents) > 0 {
		agentID = flagAgents[0]
	}

	embedder, err := newEmbedder()
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			fmt.Println("Embedding credentials not configured; knowledge search returns no results.")
			return nil
		}
		return err
	}
	svc, st, err := openService(embedder)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := svc.SearchDocuments(ctx, args[0], agentID, flagOrg, flagLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, result := range results {
		fmt.Printf("%d. %s (chunk %d/%d, score %.3f)\n   %s\n",
			i+1, result.DocumentName, result.ChunkIndex+1, result.TotalChunks,
			result.Score, result.Content)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	svc, st, err := openService(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	docs, err := svc.GetDocuments(context.Background(), flagOrg)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%s  %s  chunks=%d  agents=%v\n", doc.ID, doc.Name, doc.Chunks, doc.AgentIDs)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	svc, st, err := openService(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := svc.DeleteDocument(context.Background(), args[0], flagOrg); err != nil {
		return err
	}
	fmt.Printf("Deleted document %s\n", args[0])
	return nil
}

func runContent(cmd *cobra.Command, args []string) error {
	svc, st, err := openService(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	content, err := svc.GetDocumentContent(context.Background(), args[0], flagOrg)
	if err != nil {
		return err
	}
	fmt.Println(content)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dataDir := getEnv("KB_DATA_DIR", "./kb-data")
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := st.Count(ctx)
	if err != nil {
		return err
	}
	dim, err := st.Dimension(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Store:     %s\n", st.Path())
	fmt.Printf("Chunks:    %d\n", count)
	if dim > 0 {
		fmt.Printf("Dimension: %d\n", dim)
	} else {
		fmt.Println("Dimension: not yet established (no documents ingested)")
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	svc, st, err := openService(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := svc.VerifyDocument(context.Background(), args[0], flagOrg)
	if err != nil {
		return err
	}
	if report.Complete {
		fmt.Printf("Document %s is complete (%d chunks)\n", report.DocumentID, report.PersistedChunks)
		return nil
	}
	fmt.Printf("Document %s is INCOMPLETE: %d of %d chunks present, missing indices %v\n",
		report.DocumentID, report.PersistedChunks, report.ExpectedChunks, report.MissingIndices)
	fmt.Println("Delete and re-ingest the document to repair it.")
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anser-ai/anser/internal/app"
	"github.com/anser-ai/anser/internal/ingest"
)

var (
	ingestWorkspace  string
	ingestCollection string
	ingestSourceURL  string
	ingestNoEmbed    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a document into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestWorkspace, "workspace", "", "workspace id (required)")
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "collection id (required)")
	ingestCmd.Flags().StringVar(&ingestSourceURL, "source-url", "", "durable source URL stored on the document")
	ingestCmd.Flags().BoolVar(&ingestNoEmbed, "no-embed", false, "register the document without chunking and embedding")
	_ = ingestCmd.MarkFlagRequired("workspace")
	_ = ingestCmd.MarkFlagRequired("collection")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(path string) error {
	workspaceID, err := uuid.Parse(ingestWorkspace)
	if err != nil {
		return fmt.Errorf("workspace must be a UUID: %w", err)
	}
	collectionID, err := uuid.Parse(ingestCollection)
	if err != nil {
		return fmt.Errorf("collection must be a UUID: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	doc, err := a.Pipeline.Ingest(ctx, ingest.Params{
		WorkspaceID:  workspaceID,
		CollectionID: collectionID,
		FilePath:     path,
		SourceURL:    ingestSourceURL,
		Embed:        !ingestNoEmbed,
	})
	if err != nil {
		if doc != nil {
			return fmt.Errorf("document %s left in status %s: %w", doc.ID, doc.Status, err)
		}
		return err
	}

	fmt.Printf("document %s ingested (status %s)\n", doc.ID, doc.Status)
	return nil
}

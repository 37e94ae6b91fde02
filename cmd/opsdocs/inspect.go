package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/vectorstore"
)

var inspectJSON bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the metadata as JSON")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show what the saved index contains",
	Long: `Print the index metadata: document and chunk counts, sources,
categories and the embedding model it was built with.

The metadata file is read directly. When it is missing the index itself is
loaded and the metadata reconstructed from it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		meta, err := vectorstore.ReadMetadata(cfg.Index.Dir)
		if errors.Is(err, ragerr.ErrNotFound) || errors.Is(err, ragerr.ErrCorruptIndex) {
			a, openErr := openApp(cmd.Context(), false)
			if openErr != nil {
				return openErr
			}
			defer a.Close()
			meta, err = a.registry.Retriever().Stats()
		}
		if err != nil {
			return err
		}
		return printMetadata(cmd.OutOrStdout(), cfg.Index.Dir, meta, inspectJSON)
	},
}

func printMetadata(w io.Writer, dir string, m *vectorstore.Metadata, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	fmt.Fprintf(w, "Index:       %s\n", dir)
	fmt.Fprintf(w, "ID:          %s\n", m.IndexID)
	fmt.Fprintf(w, "Created:     %s\n", formatTime(m.CreatedAt))
	fmt.Fprintf(w, "Updated:     %s\n", formatTime(m.UpdatedAt))
	fmt.Fprintf(w, "Documents:   %d\n", m.DocumentCount)
	fmt.Fprintf(w, "Chunks:      %d\n", m.ChunkCount)
	fmt.Fprintf(w, "Chunking:    size %d, overlap %d, batch %d\n", m.ChunkSize, m.ChunkOverlap, m.BatchSize)
	fmt.Fprintf(w, "Embeddings:  %s %s (dimension %d)\n", m.EmbeddingProvider, m.EmbeddingModel, m.Dimension)
	fmt.Fprintf(w, "Storage:     %s compressed=%t encrypted=%t\n", m.BlobFile, m.Compressed, m.Encrypted)
	if len(m.Categories) > 0 {
		fmt.Fprintf(w, "Categories:  %s\n", strings.Join(m.Categories, ", "))
	}
	fmt.Fprintf(w, "Sources (%d):\n", len(m.Sources))
	for _, s := range m.Sources {
		fmt.Fprintf(w, "  %s\n", s)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(time.RFC3339)
}

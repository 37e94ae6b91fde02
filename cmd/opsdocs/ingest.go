package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
	"github.com/fyrsmithlabs/opsdocs/internal/services"
)

var ingestFlags struct {
	append       bool
	chunkSize    int
	chunkOverlap int
	batchSize    int
	concurrency  int
	quiet        bool
	json         bool
}

func init() {
	f := ingestCmd.Flags()
	f.BoolVar(&ingestFlags.append, "append", false, "append to the existing index instead of rebuilding it")
	f.IntVar(&ingestFlags.chunkSize, "chunk-size", 0, "chunk size in characters (default: config)")
	f.IntVar(&ingestFlags.chunkOverlap, "chunk-overlap", 0, "overlap between consecutive chunks (default: config)")
	f.IntVar(&ingestFlags.batchSize, "batch-size", 0, "chunks per embedding request (default: config)")
	f.IntVar(&ingestFlags.concurrency, "concurrency", 0, "embedding batches in flight (default: config)")
	f.BoolVarP(&ingestFlags.quiet, "quiet", "q", false, "suppress progress output")
	f.BoolVar(&ingestFlags.json, "json", false, "print the report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Build the vector index from documents",
	Long: `Load documents, split them into chunks, embed them and save the index.

Without paths the configured corpus directory is indexed. With paths only
those files and directories are indexed. --append adds to the existing index
instead of replacing it.

If embedding fails part way, the documents indexed so far are saved and the
report tells how many were processed; rerun with --append on the rest.

Examples:
  # Rebuild from the corpus directory
  opsdocs ingest

  # Index two folders with smaller chunks
  opsdocs ingest --chunk-size 500 --chunk-overlap 100 ./docs/aws ./docs/gcp

  # Add a new runbook to the existing index
  opsdocs ingest --append ./runbooks/rds-failover.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := ingestOptions(cmd)
		if !ingestFlags.quiet {
			opts.Progress = progressPrinter(cmd.ErrOrStderr())
		}
		report, err := runIngest(cmd.Context(), a.registry.Indexer(), args, ingestFlags.append, opts)
		if report != nil {
			if perr := printIngestReport(cmd.OutOrStdout(), report, ingestFlags.json); perr != nil {
				return errors.Join(err, perr)
			}
		}
		return err
	},
}

// ingestOptions turns the flags that were set into retriever overrides.
func ingestOptions(cmd *cobra.Command) retriever.IngestOptions {
	return retriever.IngestOptions{
		ChunkSize:    ingestFlags.chunkSize,
		ChunkOverlap: ingestFlags.chunkOverlap,
		OverlapSet:   cmd.Flags().Changed("chunk-overlap"),
		BatchSize:    ingestFlags.batchSize,
		Concurrency:  ingestFlags.concurrency,
	}
}

// runIngest picks rebuild, fresh-from-paths or append.
func runIngest(ctx context.Context, ix *services.Indexer, paths []string, appendMode bool, opts retriever.IngestOptions) (*services.IndexReport, error) {
	switch {
	case appendMode && len(paths) == 0:
		return ix.AddPaths(ctx, []string{ix.CorpusDir()}, opts)
	case appendMode:
		return ix.AddPaths(ctx, paths, opts)
	case len(paths) == 0:
		return ix.Rebuild(ctx, opts)
	default:
		return ix.IngestPaths(ctx, paths, opts)
	}
}

func progressPrinter(w io.Writer) func(retriever.Progress) {
	return func(p retriever.Progress) {
		fmt.Fprintf(w, "\rembedded %d/%d chunks, %d/%d documents", p.ChunksDone, p.ChunksTotal, p.DocumentsDone, p.DocumentsTotal)
		if p.ChunksDone == p.ChunksTotal {
			fmt.Fprintln(w)
		}
	}
}

func printIngestReport(w io.Writer, report *services.IndexReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	for _, f := range report.Files {
		if f.Error != "" {
			fmt.Fprintf(w, "  FAILED  %s: %s\n", f.Path, f.Error)
		}
	}
	if report.Ingest == nil {
		fmt.Fprintf(w, "Nothing indexed (%d files, %d failed)\n", len(report.Files), report.Failed)
		return nil
	}
	in := report.Ingest
	fmt.Fprintf(w, "Indexed %d documents as %d chunks in %d batches (%s)\n",
		in.Documents, in.Chunks, in.Batches, in.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Index %s now holds %d chunks", in.IndexID, in.IndexChunks)
	if report.Saved {
		fmt.Fprint(w, " (saved)")
	}
	fmt.Fprintln(w)
	if len(report.Redacted) > 0 {
		rules := slices.Sorted(maps.Keys(report.Redacted))
		parts := make([]string, len(rules))
		total := 0
		for i, id := range rules {
			parts[i] = fmt.Sprintf("%s=%d", id, report.Redacted[id])
			total += report.Redacted[id]
		}
		fmt.Fprintf(w, "Redacted %d credential matches (%s)\n", total, strings.Join(parts, ", "))
	}
	if report.Failed > 0 {
		fmt.Fprintf(w, "%d of %d files could not be loaded\n", report.Failed, len(report.Files))
	}
	return nil
}

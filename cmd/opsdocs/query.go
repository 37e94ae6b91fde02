package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
)

var queryFlags struct {
	k         int
	threshold float64
	json      bool
}

func init() {
	f := queryCmd.Flags()
	f.IntVarP(&queryFlags.k, "k", "k", 0, "number of chunks to retrieve (default: config)")
	f.Float64VarP(&queryFlags.threshold, "threshold", "t", 0, "minimum score in [0,1] (default: config)")
	f.BoolVar(&queryFlags.json, "json", false, "print results as JSON")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve the passages most relevant to a question",
	Long: `Embed the question, search the index and print the matching chunks
best first with their source and score. An empty result is not an error.

Examples:
  opsdocs query "How do I rotate IAM access keys?"
  opsdocs query -k 8 -t 0.5 "GKE node pool autoscaling"
  opsdocs query --json "S3 lifecycle rules" | jq '.[0].metadata.source'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := retriever.QueryOptions{K: queryFlags.k}
		if cmd.Flags().Changed("threshold") {
			opts.ScoreThreshold = retriever.Threshold(queryFlags.threshold)
		}
		results, err := a.registry.Retriever().Query(cmd.Context(), strings.Join(args, " "), opts)
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), results, queryFlags.json)
	},
}

type jsonResult struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

func printResults(w io.Writer, results []retriever.Result, asJSON bool) error {
	if asJSON {
		out := make([]jsonResult, len(results))
		for i, r := range results {
			out[i] = jsonResult{Content: r.Chunk.Content, Metadata: r.Chunk.Metadata, Score: r.Score}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No results above the score threshold.")
		return err
	}
	for i, r := range results {
		md := r.Chunk.Metadata
		fmt.Fprintf(w, "[%d] score=%.3f  %s", i+1, r.Score, md[document.MetaSource])
		if page := md[document.MetaPage]; page != "" {
			fmt.Fprintf(w, "  page %s", page)
		}
		if cat := md[document.MetaCategory]; cat != "" {
			fmt.Fprintf(w, "  [%s]", cat)
		}
		fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(r.Chunk.Content))
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/opsdocs/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search_docs and index_stats over MCP stdio",
	Long: `Run an MCP server on stdin/stdout for an answer synthesizer.

Tools:
  search_docs  {query, k?, score_threshold?} -> chunks with source and score
  index_stats  {} -> document and chunk counts, sources, embedding model

Logs go to stderr. Register it with an MCP client, for example:

  {"command": "opsdocs", "args": ["mcp", "--config", "/etc/opsdocs.yaml"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		srv, err := mcp.NewServer(&mcp.Config{
			Name:    "opsdocs",
			Version: version,
			Logger:  a.logger.Underlying(),
		}, a.registry.Retriever())
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}

		fmt.Fprintf(os.Stderr, "opsdocs MCP server ready (index: %s)\n", a.cfg.Index.Dir)
		return srv.Run(cmd.Context())
	},
}

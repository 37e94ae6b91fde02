// Package services wires the opsdocs components together.
//
// Open builds the embedding provider and the retriever from a loaded
// configuration and loads the persisted index when one exists. The
// resulting Registry is shared by the CLI, the HTTP API and the MCP server.
// Indexer turns files on disk into index updates and persists them.
package services

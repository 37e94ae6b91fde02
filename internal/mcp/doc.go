// Package mcp exposes the retriever as an MCP tool server.
//
// Two tools are registered: search_docs returns the chunks most similar to a
// question together with their source metadata and scores, and index_stats
// describes the loaded index. An answer synthesizer connects over stdio and
// composes its response from the returned context.
package mcp

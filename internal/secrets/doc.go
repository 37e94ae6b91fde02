// Package secrets detects and redacts credentials in corpus text.
//
// Runbooks and incident notes often carry pasted keys and connection
// strings. The indexer passes every loaded document through a Redactor
// before chunking so that embedded chunks, the persisted index and search
// results never contain the matched text. Findings carry the rule ID and
// line only, never the matched value.
package secrets

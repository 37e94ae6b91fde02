package document

import "maps"

// Well-known metadata keys.
const (
	MetaSource     = "source"
	MetaCategory   = "category"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaLoader     = "loader"
	MetaChunkIndex = "chunk_index"
	MetaStartIndex = "start_index"
)

// Document is an immutable unit of source text.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// New returns a Document with a source attribute.
func New(content, source string) Document {
	return Document{Content: content, Metadata: map[string]string{MetaSource: source}}
}

// Source returns the source attribute.
func (d Document) Source() string { return d.Metadata[MetaSource] }

// Category returns the category attribute, if any.
func (d Document) Category() string { return d.Metadata[MetaCategory] }

// WithMetadata returns a copy of d with key set to value.
func (d Document) WithMetadata(key, value string) Document {
	md := maps.Clone(d.Metadata)
	if md == nil {
		md = map[string]string{}
	}
	md[key] = value
	return Document{Content: d.Content, Metadata: md}
}

// Chunk is a bounded slice of a Document and the unit stored in the index.
type Chunk struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`

	// Doc is the position of the parent document in the input passed to
	// the chunker. It is not persisted.
	Doc int `json:"-"`
	// Index is the position of the chunk within its parent document.
	Index int `json:"index"`
}

// Source returns the source attribute inherited from the parent document.
func (c Chunk) Source() string { return c.Metadata[MetaSource] }

package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// MetadataFile is the sidecar file name.
const MetadataFile = "vector_store_metadata.json"

const metadataVersion = 1

// Metadata describes a persisted index. It is advisory: search never
// depends on it and a missing sidecar is rebuilt from the index.
type Metadata struct {
	Version           int       `json:"version"`
	IndexID           string    `json:"index_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	DocumentCount     int       `json:"document_count"`
	ChunkCount        int       `json:"chunk_count"`
	Sources           []string  `json:"sources"`
	Categories        []string  `json:"categories"`
	BatchSize         int       `json:"batch_size"`
	ChunkSize         int       `json:"chunk_size,omitempty"`
	ChunkOverlap      int       `json:"chunk_overlap"`
	EmbeddingProvider string    `json:"embedding_provider,omitempty"`
	EmbeddingModel    string    `json:"embedding_model,omitempty"`
	Dimension         int       `json:"dimension"`
	BlobFile          string    `json:"blob_file,omitempty"`
	Compressed        bool      `json:"compressed"`
	Encrypted         bool      `json:"encrypted"`
}

// AddSources merges sources into the sorted, de-duplicated set.
func (m *Metadata) AddSources(sources ...string) {
	m.Sources = mergeSet(m.Sources, sources)
}

// AddCategories merges categories into the sorted, de-duplicated set.
func (m *Metadata) AddCategories(categories ...string) {
	m.Categories = mergeSet(m.Categories, categories)
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Sources = slices.Clone(m.Sources)
	c.Categories = slices.Clone(m.Categories)
	return &c
}

func mergeSet(set, add []string) []string {
	for _, s := range add {
		if s == "" {
			continue
		}
		if i, found := slices.BinarySearch(set, s); !found {
			set = slices.Insert(set, i, s)
		}
	}
	if set == nil {
		set = []string{}
	}
	return set
}

// ReadMetadata reads the sidecar in dir. A missing sidecar returns an
// error wrapping ragerr.ErrNotFound.
func ReadMetadata(dir string) (*Metadata, error) {
	b, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ragerr.ErrNotFound, filepath.Join(dir, MetadataFile))
		}
		return nil, fmt.Errorf("%w: reading metadata: %v", ragerr.ErrIO, err)
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata: %v", ragerr.ErrCorruptIndex, err)
	}
	return &m, nil
}

func writeMetadata(dir string, m *Metadata) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding metadata: %v", ragerr.ErrIO, err)
	}
	b = append(b, '\n')
	return writeAtomic(filepath.Join(dir, MetadataFile), func(f *os.File) error {
		_, err := f.Write(b)
		return err
	})
}

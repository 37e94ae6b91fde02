package vectorstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

// Blob file names. chromem detects gzip on import, the name only tells
// humans and Load which variant was written last.
const (
	BlobFile           = "index.gob"
	CompressedBlobFile = "index.gob.gz"
)

// SaveOptions controls the blob encoding.
type SaveOptions struct {
	Compress bool
	// EncryptionKey enables AES-GCM encryption of the blob. It must be
	// exactly 32 bytes; the same key is required to load.
	EncryptionKey string
}

// LoadOptions controls how a blob is read and verified.
type LoadOptions struct {
	EncryptionKey string
	// Dimension is the embedder's output size. When non-zero, an index
	// with a different dimension fails with ragerr.ErrCorruptIndex.
	Dimension int
	Logger    *zap.Logger
}

// Save persists ix and meta into dir, creating dir if needed. Each file is
// written to a temp file in dir, synced and renamed, so a crash leaves
// either the old or the new file. Failures wrap ragerr.ErrIO.
func Save(ctx context.Context, ix *Index, meta *Metadata, dir string, opts SaveOptions) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Save")
	defer span.End()
	span.SetAttributes(attribute.String("dir", dir), attribute.Bool("compress", opts.Compress))
	start := time.Now()
	defer func() {
		observe("save", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if ix == nil {
		return fmt.Errorf("%w: nil index", ragerr.ErrConfiguration)
	}
	if k := opts.EncryptionKey; k != "" && len(k) != 32 {
		return fmt.Errorf("%w: encryption key must be 32 bytes", ragerr.ErrConfiguration)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: save: %w", ragerr.ErrIO, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ragerr.ErrIO, dir, err)
	}

	name, stale := BlobFile, CompressedBlobFile
	if opts.Compress {
		name, stale = CompressedBlobFile, BlobFile
	}

	// Hold the read lock so the blob and the counts in the sidecar agree.
	ix.mu.RLock()
	err = writeAtomic(filepath.Join(dir, name), func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := ix.db.ExportToWriter(w, opts.Compress, opts.EncryptionKey, collectionName); err != nil {
			return err
		}
		return w.Flush()
	})
	count, dim := ix.count, ix.dim
	ix.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, stale)); err != nil && !os.IsNotExist(err) {
		ix.logger.Warn("could not remove stale blob", zap.String("file", stale), zap.Error(err))
	}

	if meta == nil {
		meta = &Metadata{}
	}
	m := meta.Clone()
	m.Version = metadataVersion
	m.ChunkCount = count
	m.Dimension = dim
	m.BlobFile = name
	m.Compressed = opts.Compress
	m.Encrypted = opts.EncryptionKey != ""
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Categories == nil {
		m.Categories = []string{}
	}
	if err := writeMetadata(dir, m); err != nil {
		return err
	}

	ix.logger.Info("index saved",
		zap.String("dir", dir),
		zap.String("blob", name),
		zap.Int("chunks", count),
		zap.Int("dimension", dim),
	)
	return nil
}

// Load reads the index in dir.
//
// A missing dir or blob wraps ragerr.ErrNotFound. A blob that cannot be
// decoded, or whose dimension differs from opts.Dimension, wraps
// ragerr.ErrCorruptIndex. A missing or unreadable sidecar is logged and
// metadata is rebuilt from the chunks.
func Load(ctx context.Context, dir string, opts LoadOptions) (ix *Index, meta *Metadata, err error) {
	ctx, span := tracer.Start(ctx, "Store.Load")
	defer span.End()
	span.SetAttributes(attribute.String("dir", dir))
	start := time.Now()
	defer func() {
		observe("load", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return nil, nil, fmt.Errorf("%w: index directory %s", ragerr.ErrNotFound, dir)
	case err != nil:
		return nil, nil, fmt.Errorf("%w: %v", ragerr.ErrIO, err)
	case !info.IsDir():
		return nil, nil, fmt.Errorf("%w: %s is not a directory", ragerr.ErrNotFound, dir)
	}

	sidecar, sidecarErr := ReadMetadata(dir)
	if sidecarErr != nil {
		logger.Warn("index metadata unavailable; rebuilding from index",
			zap.String("dir", dir), zap.Error(sidecarErr))
		sidecar = nil
	}

	blob, err := findBlob(dir, sidecar)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening %s: %v", ragerr.ErrIO, blob, err)
	}
	defer f.Close()

	db := chromem.NewDB()
	if err := db.ImportFromReader(f, opts.EncryptionKey, collectionName); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding %s: %v", ragerr.ErrCorruptIndex, filepath.Base(blob), err)
	}
	col := db.GetCollection(collectionName, noEmbed)
	if col == nil {
		return nil, nil, fmt.Errorf("%w: %s holds no %q collection", ragerr.ErrCorruptIndex, filepath.Base(blob), collectionName)
	}

	ix = &Index{db: db, col: col, logger: logger, count: col.Count()}
	if ix.count == 0 {
		return nil, nil, fmt.Errorf("%w: %s holds no chunks", ragerr.ErrCorruptIndex, filepath.Base(blob))
	}
	first, err := col.GetByID(ctx, chunkID(0))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: first chunk missing: %v", ragerr.ErrCorruptIndex, err)
	}
	ix.dim = len(first.Embedding)
	if last, err := col.GetByID(ctx, chunkID(ix.count-1)); err != nil || len(last.Embedding) != ix.dim {
		return nil, nil, fmt.Errorf("%w: chunk ordinals are not contiguous", ragerr.ErrCorruptIndex)
	}
	if opts.Dimension > 0 && opts.Dimension != ix.dim {
		return nil, nil, fmt.Errorf("%w: index has dimension %d, embedder produces %d", ErrDimensionMismatch, ix.dim, opts.Dimension)
	}
	indexChunks.Set(float64(ix.count))

	if sidecar == nil {
		sidecar, err = rebuildMetadata(ctx, ix)
		if err != nil {
			return nil, nil, err
		}
	} else if sidecar.ChunkCount != ix.count || (sidecar.Dimension != 0 && sidecar.Dimension != ix.dim) {
		logger.Warn("index metadata disagrees with index; trusting index",
			zap.Int("metadata_chunks", sidecar.ChunkCount), zap.Int("index_chunks", ix.count),
			zap.Int("metadata_dimension", sidecar.Dimension), zap.Int("index_dimension", ix.dim))
		sidecar.ChunkCount = ix.count
		sidecar.Dimension = ix.dim
	}

	logger.Info("index loaded",
		zap.String("dir", dir),
		zap.Int("chunks", ix.count),
		zap.Int("dimension", ix.dim),
	)
	return ix, sidecar, nil
}

func findBlob(dir string, sidecar *Metadata) (string, error) {
	candidates := []string{CompressedBlobFile, BlobFile}
	if sidecar != nil && sidecar.BlobFile != "" {
		candidates = append([]string{filepath.Base(sidecar.BlobFile)}, candidates...)
	}
	for _, name := range candidates {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %v", ragerr.ErrIO, err)
		}
	}
	return "", fmt.Errorf("%w: no index blob in %s", ragerr.ErrNotFound, dir)
}

// rebuildMetadata derives what it can from the stored chunks. Creation time
// and batch size are unknown and left zero.
func rebuildMetadata(ctx context.Context, ix *Index) (*Metadata, error) {
	m := &Metadata{
		Version:    metadataVersion,
		ChunkCount: ix.Count(),
		Dimension:  ix.Dimension(),
		Sources:    []string{},
		Categories: []string{},
	}
	docs := map[string]struct{}{}
	err := ix.Each(ctx, func(_ int, c document.Chunk) error {
		m.AddSources(c.Source())
		m.AddCategories(c.Metadata[document.MetaCategory])
		docs[c.Source()+"\x00"+c.Metadata[document.MetaPage]] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning chunks: %v", ragerr.ErrCorruptIndex, err)
	}
	m.DocumentCount = len(docs)
	return m, nil
}

// writeAtomic writes path through a temp file in the same directory.
func writeAtomic(path string, write func(*os.File) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %v", ragerr.ErrIO, dir, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ragerr.ErrIO, filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ragerr.ErrIO, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ragerr.ErrIO, filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", ragerr.ErrIO, filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: renaming into %s: %v", ragerr.ErrIO, path, err)
	}
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return
	}
}

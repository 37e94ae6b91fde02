package document_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ignore"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

func corpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "Corpus overview.")
	writeFile(t, dir, "aws/lambda.md", "Lambda runs code without servers.")
	writeFile(t, dir, "aws/s3.html", "<h1>S3</h1><p>Object storage.</p>")
	writeFile(t, dir, "gcp/run.txt", "Cloud Run hosts containers.")
	writeFile(t, dir, "gcp/drafts/wip.txt", "unfinished")
	writeFile(t, dir, "gcp/notes.tmp", "scratch")
	writeFile(t, dir, "azure/bad.txt", "caf\xe9")
	writePDF(t, filepath.Join(dir, "aws", "ec2.pdf"), "EC2 instances", "Auto Scaling groups")
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := corpus(t)
	m, err := ignore.New([]string{"*.tmp", "drafts/"})
	require.NoError(t, err)

	res, err := document.LoadDir(context.Background(), dir, document.DirOptions{
		Categories: map[string]string{"aws": "Amazon Web Services"},
		Ignore:     m,
	})
	require.NoError(t, err)

	bySource := map[string][]document.Document{}
	for _, d := range res.Documents {
		bySource[d.Source()] = append(bySource[d.Source()], d)
	}
	assert.Len(t, bySource["aws/ec2.pdf"], 2)
	assert.Len(t, bySource["aws/lambda.md"], 1)
	assert.Len(t, bySource["aws/s3.html"], 1)
	assert.Len(t, bySource["gcp/run.txt"], 1)
	assert.Len(t, bySource["README.md"], 1)
	assert.NotContains(t, bySource, "gcp/drafts/wip.txt")
	assert.NotContains(t, bySource, "gcp/notes.tmp")

	assert.Equal(t, "Amazon Web Services", bySource["aws/lambda.md"][0].Category())
	assert.Equal(t, "gcp", bySource["gcp/run.txt"][0].Category())
	assert.Empty(t, bySource["README.md"][0].Category())
	assert.Equal(t, "html-markdown", bySource["aws/s3.html"][0].Metadata[document.MetaLoader])

	assert.Equal(t, 1, res.Failed)
	var failed []string
	for _, f := range res.Files {
		if f.Error != "" {
			failed = append(failed, f.Path)
		}
	}
	assert.Equal(t, []string{"azure/bad.txt"}, failed)

	// walk order is lexical
	require.NotEmpty(t, res.Files)
	assert.Equal(t, "README.md", res.Files[0].Path)
}

func TestLoadDir_Errors(t *testing.T) {
	_, err := document.LoadDir(context.Background(), filepath.Join(t.TempDir(), "missing"), document.DirOptions{})
	assert.ErrorIs(t, err, ragerr.ErrNotFound)

	file := writeFile(t, t.TempDir(), "a.txt", "x")
	_, err = document.LoadDir(context.Background(), file, document.DirOptions{})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestLoadPaths(t *testing.T) {
	dir := corpus(t)
	single := writeFile(t, t.TempDir(), "standalone.md", "Standalone runbook.")

	res, err := document.LoadPaths(context.Background(), []string{filepath.Join(dir, "gcp"), single}, document.DirOptions{})
	require.NoError(t, err)

	sources := map[string]bool{}
	for _, d := range res.Documents {
		sources[d.Source()] = true
	}
	assert.True(t, sources[filepath.ToSlash(single)])
	assert.True(t, sources[filepath.ToSlash(filepath.Join(dir, "gcp", "run.txt"))])

	_, err = document.LoadPaths(context.Background(), []string{filepath.Join(dir, "nope.md")}, document.DirOptions{})
	assert.ErrorIs(t, err, ragerr.ErrNotFound)
}

func TestWatch_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "aws/lambda.md", "v1")
	m, err := ignore.New([]string{"*.tmp"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		calls [][]string
	)
	done := make(chan error, 1)
	go func() {
		done <- document.Watch(ctx, dir, document.WatchOptions{Debounce: 100 * time.Millisecond, Ignore: m},
			func(_ context.Context, changed []string) {
				mu.Lock()
				calls = append(calls, changed)
				mu.Unlock()
			})
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "aws/lambda.md", "v2")
	writeFile(t, dir, "aws/s3.md", "new")
	writeFile(t, dir, "aws/skip.tmp", "ignored")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) > 0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	var all []string
	for _, c := range calls {
		all = append(all, c...)
	}
	mu.Unlock()
	assert.Contains(t, all, "aws/lambda.md")
	assert.Contains(t, all, "aws/s3.md")
	assert.NotContains(t, all, "aws/skip.tmp")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

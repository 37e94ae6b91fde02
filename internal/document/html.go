package document

import (
	"context"
	"fmt"
	"os"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gabriel-vasile/mimetype"
)

// HTMLLoader converts HTML pages to Markdown so headings and lists
// survive as paragraph and sentence breaks for the chunker.
type HTMLLoader struct{}

func (*HTMLLoader) Name() string { return "html-markdown" }

func (*HTMLLoader) Supports(path string, mime *mimetype.MIME) bool {
	return mime.Is("text/html") || hasExt(path, ".html", ".htm")
}

func (*HTMLLoader) Load(_ context.Context, path string) ([]Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	md, err := htmltomarkdown.ConvertString(string(b))
	if err != nil {
		return nil, fmt.Errorf("converting html: %w", err)
	}
	return []Document{New(md, path)}, nil
}

package document

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// TextLoader reads plain text and Markdown verbatim.
type TextLoader struct{}

func (*TextLoader) Name() string { return "text" }

func (*TextLoader) Supports(path string, mime *mimetype.MIME) bool {
	return hasExt(path, ".txt", ".md", ".markdown", ".rst") || isText(mime)
}

func (*TextLoader) Load(_ context.Context, path string) ([]Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%s is not valid UTF-8", path)
	}
	return []Document{New(string(b), path)}, nil
}

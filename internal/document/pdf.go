package document

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// PDFPageLoader emits one document per PDF page with page and
// total_pages metadata.
type PDFPageLoader struct{}

func (*PDFPageLoader) Name() string { return "pdf-pages" }

func (*PDFPageLoader) Supports(path string, mime *mimetype.MIME) bool {
	return isPDF(path, mime)
}

func (*PDFPageLoader) Load(ctx context.Context, path string) (docs []Document, err error) {
	defer recoverPDF(path, &err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, Document{
			Content: text,
			Metadata: map[string]string{
				MetaSource:     path,
				MetaPage:       strconv.Itoa(i),
				MetaTotalPages: strconv.Itoa(total),
			},
		})
	}
	return docs, nil
}

// PDFTextLoader extracts the whole PDF as a single document. It is the
// fallback when per-page extraction yields nothing.
type PDFTextLoader struct{}

func (*PDFTextLoader) Name() string { return "pdf-text" }

func (*PDFTextLoader) Supports(path string, mime *mimetype.MIME) bool {
	return isPDF(path, mime)
}

func (*PDFTextLoader) Load(ctx context.Context, path string) (docs []Document, err error) {
	defer recoverPDF(path, &err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}
	doc := New(string(b), path).WithMetadata(MetaTotalPages, strconv.Itoa(r.NumPage()))
	return []Document{doc}, nil
}

func isPDF(path string, mime *mimetype.MIME) bool {
	return mime.Is("application/pdf") || hasExt(path, ".pdf")
}

// recoverPDF converts a panic inside the pdf parser into an error.
func recoverPDF(path string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("malformed pdf %s: %v", path, r)
	}
}

package chunker_test

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/opsdocs/internal/chunker"
	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
)

var words = []string{
	"instance", "subnet", "bucket", "lambda", "cluster", "IAM", "policy",
	"région", "volume", "snapshot", "autoscaling", "route", "zone", "日本",
}

// randomText builds prose with sentences and paragraphs of varying length.
func randomText(r *rand.Rand, n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sentence := 3 + r.Intn(15)
		for i := 0; i < sentence; i++ {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(words[r.Intn(len(words))])
		}
		switch r.Intn(6) {
		case 0:
			sb.WriteString(".\n\n")
		case 1:
			sb.WriteString("!\n")
		default:
			sb.WriteString(". ")
		}
		if r.Intn(40) == 0 {
			// a long unbroken token forces a hard cut
			sb.WriteString(strings.Repeat("x", 50+r.Intn(400)))
		}
	}
	return sb.String()
}

func TestSplit_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	params := []struct{ size, overlap int }{
		{1000, 200}, {100, 0}, {100, 99}, {50, 10}, {7, 3}, {1, 0}, {300, 150},
	}

	for _, p := range params {
		for trial := 0; trial < 20; trial++ {
			text := randomText(r, 200+r.Intn(5000))
			docs := []document.Document{document.New(text, "a.txt"), document.New(randomText(r, 800), "b.txt")}

			chunks, err := chunker.Split(docs, p.size, p.overlap)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			for i, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), p.size, "chunk %d too long", i)
				assert.NotEmpty(t, c.Content)
			}

			for i := 1; i < len(chunks); i++ {
				prev, cur := chunks[i-1], chunks[i]
				if prev.Doc != cur.Doc || p.overlap == 0 {
					continue
				}
				pr, cr := []rune(prev.Content), []rune(cur.Content)
				require.GreaterOrEqual(t, len(cr), p.overlap)
				assert.Equal(t, string(pr[len(pr)-p.overlap:]), string(cr[:p.overlap]),
					"size=%d overlap=%d chunk %d", p.size, p.overlap, i)
			}

			// Removing the overlap reconstructs each document exactly.
			rebuilt := map[int]*strings.Builder{}
			for _, c := range chunks {
				b, ok := rebuilt[c.Doc]
				if !ok {
					b = &strings.Builder{}
					rebuilt[c.Doc] = b
					b.WriteString(c.Content)
					continue
				}
				b.WriteString(string([]rune(c.Content)[p.overlap:]))
			}
			for i, d := range docs {
				assert.Equal(t, d.Content, rebuilt[i].String())
			}
		}
	}
}

func TestSplit_PrefersParagraphThenSentence(t *testing.T) {
	para1 := "EC2 provides resizable compute capacity."
	para2 := "S3 stores objects. It is durable. It scales."
	text := para1 + "\n\n" + para2

	chunks, err := chunker.Split([]document.Document{document.New(text, "aws.md")}, 60, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, para1+"\n\n", chunks[0].Content)
	assert.Equal(t, para2, chunks[1].Content)

	chunks, err = chunker.Split([]document.Document{document.New(para2, "s3.md")}, 25, 0)
	require.NoError(t, err)
	assert.Equal(t, "S3 stores objects. ", chunks[0].Content)
}

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks, err := chunker.Split([]document.Document{document.New(text, "blob")}, 10, 2)
	require.NoError(t, err)

	got := make([]string, len(chunks))
	for i, c := range chunks {
		got[i] = c.Content
	}
	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 9)}, got)
}

func TestSplit_Metadata(t *testing.T) {
	doc := document.New(strings.Repeat("word ", 100), "guide.pdf").WithMetadata(document.MetaCategory, "compute")
	chunks, err := chunker.Split([]document.Document{doc}, 100, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, "guide.pdf", c.Source())
		assert.Equal(t, "compute", c.Metadata[document.MetaCategory])
		assert.Equal(t, i, c.Index)
		assert.Equal(t, 0, c.Doc)
	}
	assert.Equal(t, "0", chunks[0].Metadata[document.MetaStartIndex])
	// parent metadata is not aliased
	chunks[0].Metadata["source"] = "changed"
	assert.Equal(t, "guide.pdf", doc.Source())
}

func TestSplit_ShortAndEmptyDocuments(t *testing.T) {
	docs := []document.Document{
		document.New("", "empty.txt"),
		document.New("AWS Lambda lets you run code without provisioning servers", "lambda.txt"),
		document.New("Amazon S3 is an object storage service", "s3.txt"),
	}
	chunks, err := chunker.Split(docs, 1000, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, docs[1].Content, chunks[0].Content)
	assert.Equal(t, 1, chunks[0].Doc)
	assert.Equal(t, 2, chunks[1].Doc)
}

func TestSplit_InvalidParameters(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunker.Split([]document.Document{document.New("text", "a")}, tt.size, tt.overlap)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
		})
	}
}

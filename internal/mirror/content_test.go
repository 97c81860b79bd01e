package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSummaryAndBody(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantSummary string
		wantBody    string
	}{
		{
			name:        "summary and body",
			input:       "///Hello\n///World\n# Title\nbody",
			wantSummary: "Hello World",
			wantBody:    "# Title\nbody",
		},
		{
			name:     "no summary",
			input:    "# Title\n\nbody\n",
			wantBody: "# Title\n\nbody\n",
		},
		{
			name:        "interleaved",
			input:       "a\n/// one\nb\n/// two",
			wantSummary: " one  two",
			wantBody:    "a\nb",
		},
		{
			name:        "crlf summary",
			input:       "///x\r\nbody",
			wantSummary: "x",
			wantBody:    "body",
		},
		{
			name:        "sigil must lead",
			input:       " ///not summary",
			wantBody:    " ///not summary",
			wantSummary: "",
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, body := SplitSummaryAndBody(tt.input)
			assert.Equal(t, tt.wantSummary, summary)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "Getting Started", DocumentName("Getting Started.md"))
	assert.Equal(t, "notes.txt", DocumentName("notes.txt"))
	assert.True(t, IsDocument("Home.md"))
	assert.False(t, IsDocument("image.png"))
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"My Repo! 2.0": "MyRepo20",
		"blog-posts":   "blogposts",
		"Home":         "Home",
		"héllo wörld":  "hllowrld",
		"":             "",
	}

	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}

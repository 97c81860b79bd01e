// Package render turns cached markdown into HTML that is safe to serve.
package render

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

const cacheSize = 1024

// Renderer converts markdown with GitHub flavored extensions and strips
// anything the UGC policy doesn't allow. Output is cached by input hash.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	cache  *lru.Cache[[sha256.Size]byte, string]
}

func New() (*Renderer, error) {
	cache, err := lru.New[[sha256.Size]byte, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("error creating render cache: %s", err)
	}

	policy := bluemonday.UGCPolicy()
	// Keep language classes on code blocks for client side highlighting.
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		policy: policy,
		cache:  cache,
	}, nil
}

// HTML renders markdown.
func (r *Renderer) HTML(markdown string) (string, error) {
	key := sha256.Sum256([]byte(markdown))
	if html, ok := r.cache.Get(key); ok {
		return html, nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("error converting markdown: %w", err)
	}
	html := r.policy.Sanitize(buf.String())
	r.cache.Add(key, html)

	return html, nil
}

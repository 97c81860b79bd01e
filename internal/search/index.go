// Package search keeps a full-text index of the cached documents.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/jdholdren/mirror/internal/mirror"
)

var (
	_ mirror.Indexer  = (*Index)(nil)
	_ mirror.Searcher = (*Index)(nil)
)

const DefaultLimit = 10

// Index wraps a bleve index of documents keyed by slug.
type Index struct {
	index bleve.Index
}

type indexedDocument struct {
	Name    string
	Summary string
	Body    string
}

// Open opens the index at path, creating it when missing. An empty path
// keeps the index in memory.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("error creating index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("error opening index: %w", err)
	}

	return &Index{index: idx}, nil
}

// Names are analyzed in English for stemming and weighted above bodies at
// query time.
func buildIndexMapping() mapping.IndexMapping {
	nameMapping := bleve.NewTextFieldMapping()
	nameMapping.Analyzer = "en"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Name", nameMapping)
	docMapping.AddFieldMappingsAt("Summary", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Body", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

func (i *Index) Close() error {
	return i.index.Close()
}

func (i *Index) IndexDocument(_ context.Context, d mirror.Document) error {
	return i.index.Index(d.Slug, indexedDocument{
		Name:    d.Name,
		Summary: d.Summary,
		Body:    d.Body,
	})
}

func (i *Index) RemoveDocument(_ context.Context, slug string) error {
	return i.index.Delete(slug)
}

// Rebuild replaces the index content with docs, used at startup so the index
// matches a cache that was written while it was not running. Documents no
// longer in docs are removed.
func (i *Index) Rebuild(ctx context.Context, docs []mirror.Document) error {
	existing, err := i.ids(ctx)
	if err != nil {
		return err
	}

	batch := i.index.NewBatch()
	keep := make(map[string]bool, len(docs))
	for _, d := range docs {
		keep[d.Slug] = true
		if err := batch.Index(d.Slug, indexedDocument{Name: d.Name, Summary: d.Summary, Body: d.Body}); err != nil {
			return fmt.Errorf("error batching %s: %w", d.Slug, err)
		}
	}
	for _, id := range existing {
		if !keep[id] {
			batch.Delete(id)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("error committing batch: %w", err)
	}

	return nil
}

// Every document ID currently in the index.
func (i *Index) ids(ctx context.Context) ([]string, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("error counting documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	results, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}

	ids := make([]string, 0, len(results.Hits))
	for _, h := range results.Hits {
		ids = append(ids, h.ID)
	}

	return ids, nil
}

// Search runs a query string query and returns hits with highlighted
// fragments.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]mirror.SearchHit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Fields = []string{"Name"}

	results, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error searching: %w", err)
	}

	hits := make([]mirror.SearchHit, 0, len(results.Hits))
	for _, h := range results.Hits {
		name, _ := h.Fields["Name"].(string)
		hits = append(hits, mirror.SearchHit{
			Slug:      h.ID,
			Name:      name,
			Score:     h.Score,
			Fragments: h.Fragments,
		})
	}

	return hits, nil
}

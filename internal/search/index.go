package search

import (
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

// Index wraps a Bleve search index over the corpus
type Index struct {
	index bleve.Index
}

// IndexedPost is the searchable projection of a post
type IndexedPost struct {
	ID        string
	Title     string
	Body      string
	Author    string
	Community string
	URL       string
	Upvotes   int
	Published bool
}

// Result is one search hit
type Result struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Author    string              `json:"author"`
	Community string              `json:"community"`
	URL       string              `json:"url"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// Open opens or creates a Bleve index at path
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx}, nil
}

// OpenMem creates an index that lives only in memory
func OpenMem() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	keywordMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", keywordMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Body", textFieldMapping)
	docMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Community", keywordMapping)
	docMapping.AddFieldMappingsAt("URL", keywordMapping)
	docMapping.AddFieldMappingsAt("Upvotes", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("Published", bleve.NewBooleanFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = "en"
	return indexMapping
}

func (i *Index) Close() error {
	return i.index.Close()
}

var _ ports.Indexer = (*Index)(nil)

// IndexPosts adds or replaces every post in one batch
func (i *Index) IndexPosts(posts []domain.Post) error {
	batch := i.index.NewBatch()
	for _, p := range posts {
		doc := IndexedPost{
			ID:        p.ID,
			Title:     p.Title,
			Body:      p.BodyText,
			Author:    p.AuthorName,
			Community: p.Community,
			URL:       p.CanonicalURL,
			Upvotes:   p.Upvotes,
			Published: p.Published,
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", p.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Search runs a query string query (quotes, +/-, field:term, fuzzy ~).
func (i *Index) Search(queryStr string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	query := bleve.NewQueryStringQuery(queryStr)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Highlight = bleve.NewHighlight()
	req.Fields = []string{"Title", "Author", "Community", "URL"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := Result{ID: hit.ID, Score: hit.Score, Fragments: hit.Fragments}
		r.Title, _ = hit.Fields["Title"].(string)
		r.Author, _ = hit.Fields["Author"].(string)
		r.Community, _ = hit.Fields["Community"].(string)
		r.URL, _ = hit.Fields["URL"].(string)
		out = append(out, r)
	}
	return out, nil
}

// Count returns the number of indexed posts
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

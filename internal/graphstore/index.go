package graphstore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"document-index/internal/models"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/lang/en"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
	"github.com/rs/zerolog/log"
)

const (
	fieldUser     = "user_id"
	fieldDocument = "document"
	fieldDocFold  = "document_fold"
	fieldText     = "text"
	idSeparator   = "\x1f"
	deletePage    = 500
)

// Hit is one full-text match: the exact document it belongs to, a node id
// and its score.
type Hit struct {
	Document string
	NodeID   string
	Score    float64
}

// Index is the full-text index over node id and description. Scope fields
// are indexed verbatim so queries can be restricted to one scope; a
// lowercased copy of the document name serves case-insensitive search.
type Index struct {
	index bleve.Index
}

func indexMapping() mapping.IndexMapping {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldUser, kw)
	doc.AddFieldMappingsAt(fieldDocument, kw)
	doc.AddFieldMappingsAt(fieldDocFold, kw)
	doc.AddFieldMappingsAt(fieldText, text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// OpenIndex opens the index at path, creating it when absent. An empty path
// keeps the index in memory.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(indexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating in-memory index: %w", err)
		}
		return &Index{index: idx}, nil
	}
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening index: %w", err)
		}
		return &Index{index: idx}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	idx, err := bleve.New(path, indexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	log.Info().Str("path", path).Msg("Created graph full-text index")
	return &Index{index: idx}, nil
}

func (i *Index) Close() error { return i.index.Close() }

func docID(scope Scope, nodeID string) string {
	return strings.Join([]string{scope.UserID, scope.Document, nodeID}, idSeparator)
}

// splitDocID returns the document and node id encoded by docID.
func splitDocID(id string) (string, string) {
	parts := strings.SplitN(id, idSeparator, 3)
	if len(parts) < 3 {
		return "", parts[len(parts)-1]
	}
	return parts[1], parts[2]
}

// Put indexes or reindexes nodes of the scope.
func (i *Index) Put(scope Scope, nodes []models.GraphNode) error {
	batch := i.index.NewBatch()
	for _, n := range nodes {
		err := batch.Index(docID(scope, n.ID), map[string]interface{}{
			fieldUser:     scope.UserID,
			fieldDocument: scope.Document,
			fieldDocFold:  strings.ToLower(scope.Document),
			fieldText:     n.ID + " " + n.Description,
		})
		if err != nil {
			return fmt.Errorf("indexing node %q: %w", n.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("writing index batch: %w", err)
	}
	return nil
}

// scopeQuery matches the scope exactly, or ignoring the document's case when
// fold is set.
func scopeQuery(scope Scope, fold bool) *query.ConjunctionQuery {
	user := bleve.NewTermQuery(scope.UserID)
	user.SetField(fieldUser)
	doc := bleve.NewTermQuery(scope.Document)
	doc.SetField(fieldDocument)
	if fold {
		doc = bleve.NewTermQuery(strings.ToLower(scope.Document))
		doc.SetField(fieldDocFold)
	}
	return bleve.NewConjunctionQuery(user, doc)
}

// Search returns up to k nodes matching text, best first. The document name
// is matched case-insensitively.
func (i *Index) Search(scope Scope, text string, k int) ([]Hit, error) {
	match := bleve.NewMatchQuery(text)
	match.SetField(fieldText)
	q := scopeQuery(scope, true)
	q.AddQuery(match)

	res, err := i.index.Search(bleve.NewSearchRequestOptions(q, k, 0, false))
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		doc, node := splitDocID(h.ID)
		hits = append(hits, Hit{Document: doc, NodeID: node, Score: h.Score})
	}
	return hits, nil
}

// DeleteScope removes every indexed node of the exact scope.
func (i *Index) DeleteScope(scope Scope) error {
	for {
		res, err := i.index.Search(bleve.NewSearchRequestOptions(scopeQuery(scope, false), deletePage, 0, false))
		if err != nil {
			return fmt.Errorf("listing scope: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := i.index.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("deleting scope: %w", err)
		}
	}
}

// Package retrieval ranks stored passages against a free-text query.
//
// The semantic path embeds the query and scores every embedded passage by
// cosine similarity. When the embedding gateway or the store cannot serve
// that path, or no passage has an embedding yet, the query falls through to
// keyword matching. Only a failure of the keyword path is returned to the
// caller.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/pavelanni/studymate/internal/model"
)

// SimilarityThreshold is the minimum similarity the top semantic hit must
// reach for semantic results to be returned at all.
const SimilarityThreshold = 0.30

// KeywordRelevance is the flat score given to every keyword match.
const KeywordRelevance = 0.5

// DefaultLimit is used when a non-positive limit is requested.
const DefaultLimit = 5

// minKeywordLen is the length a token must exceed to become a pattern.
const minKeywordLen = 3

var errNoEmbeddedPassages = errors.New("no embedded passages")

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PassageStore is the read side of the passage store used for ranking.
type PassageStore interface {
	ListEmbeddedPassages(ctx context.Context, setID string) ([]model.Passage, error)
	SearchPassages(ctx context.Context, patterns []string, setID string, limit int) ([]model.Passage, error)
}

// Retriever ranks passages with semantic search and keyword fallback.
type Retriever struct {
	embedder Embedder
	passages PassageStore
}

// New creates a Retriever. A nil embedder disables the semantic path.
func New(embedder Embedder, passages PassageStore) *Retriever {
	return &Retriever{embedder: embedder, passages: passages}
}

// Retrieve returns up to limit passages relevant to query, optionally
// restricted to one set. An empty result is a valid outcome.
func (r *Retriever) Retrieve(ctx context.Context, query, setID string, limit int) (*model.Retrieval, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	res, err := r.semantic(ctx, query, setID, limit)
	if err == nil {
		return res, nil
	}
	slog.Warn("semantic search unavailable, falling back to keyword search", "error", err)
	return r.Keyword(ctx, query, setID, limit)
}

type scored struct {
	passage model.Passage
	score   float64
}

func (r *Retriever) semantic(ctx context.Context, query, setID string, limit int) (*model.Retrieval, error) {
	if r.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) == 0 {
		return nil, errors.New("embedder returned an empty vector")
	}

	passages, err := r.passages.ListEmbeddedPassages(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("list embedded passages: %w", err)
	}
	if len(passages) == 0 {
		return nil, errNoEmbeddedPassages
	}

	ranked := make([]scored, len(passages))
	for i, p := range passages {
		ranked[i] = scored{passage: p, score: Cosine(qvec, p.Embedding)}
	}
	// Stable so equal scores keep store order.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	maxSim := ranked[0].score
	out := &model.Retrieval{
		Query:         query,
		Results:       []model.RetrievalResult{},
		SearchType:    model.SearchSemantic,
		MaxSimilarity: maxSim,
	}
	if maxSim < SimilarityThreshold {
		slog.Debug("no semantic results above threshold",
			"query", query, "max_similarity", maxSim, "threshold", SimilarityThreshold)
		return out, nil
	}

	for _, s := range ranked {
		out.Results = append(out.Results, newResult(s.passage, s.score, model.SearchSemantic))
	}
	out.TotalFound = len(out.Results)
	slog.Debug("semantic results", "query", query, "found", out.TotalFound, "max_similarity", maxSim)
	return out, nil
}

// Keyword ranks passages by case-insensitive substring matching. Every match
// gets the same relevance. A store failure here is returned as an error.
func (r *Retriever) Keyword(ctx context.Context, query, setID string, limit int) (*model.Retrieval, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	passages, err := r.passages.SearchPassages(ctx, KeywordPatterns(query), setID, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	out := &model.Retrieval{
		Query:      query,
		Results:    make([]model.RetrievalResult, 0, len(passages)),
		SearchType: model.SearchKeyword,
	}
	for _, p := range passages {
		out.Results = append(out.Results, newResult(p, KeywordRelevance, model.SearchKeyword))
	}
	out.TotalFound = len(out.Results)
	return out, nil
}

// KeywordPatterns splits query on whitespace and keeps tokens longer than
// three characters. With no such token the whole query is the only pattern.
func KeywordPatterns(query string) []string {
	var patterns []string
	for _, tok := range strings.Fields(query) {
		if len([]rune(tok)) > minKeywordLen {
			patterns = append(patterns, tok)
		}
	}
	if len(patterns) == 0 {
		patterns = []string{query}
	}
	return patterns
}

// Citation formats the label of a passage.
func Citation(filename string, index int) string {
	return fmt.Sprintf("%s (Chunk %d)", filename, index)
}

func newResult(p model.Passage, score float64, st model.SearchType) model.RetrievalResult {
	return model.RetrievalResult{
		Content:        p.Content,
		Source:         p.Filename,
		SetName:        p.SetName,
		ChunkID:        p.ID,
		RelevanceScore: score,
		Citation:       Citation(p.Filename, p.Index),
		SearchType:     st,
	}
}

// Cosine returns the cosine similarity of a and b. It is 0 when either vector
// has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

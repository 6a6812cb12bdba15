// Package rag synthesizes answers, headlines and coverage reports from
// retrieved study passages.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/studymate/internal/i18n"
	"github.com/pavelanni/studymate/internal/llm"
	"github.com/pavelanni/studymate/internal/llm/prompts"
	"github.com/pavelanni/studymate/internal/model"
)

const (
	answerLimit = 5

	DefaultHeadlineLimit    = 5
	DefaultAllHeadlineLimit = 10

	headlinePassages = 10
	recentSets       = 5
	coveragePassages = 20

	unknown = "Unknown"
)

var (
	answerOpts   = llm.GenerateOptions{Temperature: 0.7, MaxTokens: 1000}
	headlineOpts = llm.GenerateOptions{Temperature: 0.5, MaxTokens: 500}
	coverageOpts = llm.GenerateOptions{Temperature: 0.7, MaxTokens: 800}
)

// Retriever ranks passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, setID string, limit int) (*model.Retrieval, error)
}

// PassageStore is the read side of the store used for headlines and coverage.
type PassageStore interface {
	ListPassagesBySet(ctx context.Context, setID string, limit int) ([]model.Passage, error)
	ListRecentSetsWithPassages(ctx context.Context, limit int) ([]model.Set, error)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error)
}

// Engine combines retrieval and generation.
type Engine struct {
	retriever   Retriever
	passages    PassageStore
	gen         Generator
	concurrency int
}

// New creates an Engine. Aggregate headline generation runs sequentially
// until SetConcurrency is called.
func New(retriever Retriever, passages PassageStore, gen Generator) *Engine {
	return &Engine{retriever: retriever, passages: passages, gen: gen, concurrency: 1}
}

// SetConcurrency bounds how many sets are generated at once by AllHeadlines.
func (e *Engine) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	e.concurrency = n
}

// Concurrency returns how many sets aggregate headlines generate in parallel.
func (e *Engine) Concurrency() int {
	return e.concurrency
}

// Answer answers query from the passages of one set, or all sets when setID
// is empty. When nothing relevant is found a fixed localized answer is
// returned with zero confidence and no generation call.
func (e *Engine) Answer(ctx context.Context, query, setID string) (*model.AnswerResult, error) {
	ret, err := e.retriever.Retrieve(ctx, query, setID, answerLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}
	if len(ret.Results) == 0 {
		return &model.AnswerResult{
			Answer:     i18n.T(ctx, "NoRelevantInformation"),
			Sources:    []model.Source{},
			Confidence: 0,
			SearchType: ret.SearchType,
		}, nil
	}

	passages := make([]prompts.QAPassage, len(ret.Results))
	sources := make([]model.Source, len(ret.Results))
	for i, r := range ret.Results {
		passages[i] = prompts.QAPassage{Citation: r.Citation, Content: r.Content}
		sources[i] = model.Source{Citation: r.Citation, Source: r.Source, Relevance: r.RelevanceScore}
	}
	prompt, err := prompts.BuildQA(query, passages)
	if err != nil {
		return nil, err
	}
	answer, err := e.gen.Generate(ctx, prompt, answerOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrGenerationFailed, err)
	}

	return &model.AnswerResult{
		Answer:     answer,
		Sources:    sources,
		Confidence: Confidence(ret.Results),
		SearchType: ret.SearchType,
	}, nil
}

// Confidence is the mean relevance of results, capped at 1.
func Confidence(results []model.RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.RelevanceScore
	}
	return min(sum/float64(len(results)), 1)
}

// Headlines generates up to limit titles for one set. Errors are returned to
// the caller.
func (e *Engine) Headlines(ctx context.Context, setID string, limit int) ([]model.Headline, error) {
	if limit <= 0 {
		limit = DefaultHeadlineLimit
	}
	chunks, err := e.passages.ListPassagesBySet(ctx, setID, headlinePassages)
	if err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}
	if len(chunks) == 0 {
		return []model.Headline{}, nil
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	prompt, err := prompts.BuildHeadlines(strings.Join(contents, "\n\n"), limit)
	if err != nil {
		return nil, err
	}
	text, err := e.gen.Generate(ctx, prompt, headlineOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrGenerationFailed, err)
	}

	titles := splitTitles(text, limit)
	out := make([]model.Headline, len(titles))
	for i, title := range titles {
		h := model.Headline{Title: title, Source: unknown, SetName: unknown, Subject: unknown}
		if i < len(chunks) {
			h.Source = chunks[i].Filename
			h.SetName = chunks[i].SetName
			h.Subject = chunks[i].Subject
		}
		out[i] = h
	}
	return out, nil
}

func splitTitles(text string, limit int) []string {
	var titles []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		titles = append(titles, line)
		if len(titles) == limit {
			break
		}
	}
	return titles
}

// AllHeadlines generates up to limit titles spread over the most recently
// created sets that have passages. A set that fails is logged and skipped.
func (e *Engine) AllHeadlines(ctx context.Context, limit int) ([]model.Headline, error) {
	if limit <= 0 {
		limit = DefaultAllHeadlineLimit
	}
	sets, err := e.passages.ListRecentSetsWithPassages(ctx, recentSets)
	if err != nil {
		return nil, fmt.Errorf("list recent sets: %w", err)
	}
	if len(sets) == 0 {
		return []model.Headline{}, nil
	}
	perSet := (limit + len(sets) - 1) / len(sets)

	// Each goroutine owns one slot so recency order survives concurrency.
	slots := make([][]model.Headline, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, set := range sets {
		g.Go(func() error {
			hs, err := e.Headlines(gctx, set.ID, perSet)
			if err != nil {
				slog.Warn("headline generation failed for set", "set_id", set.ID, "set", set.Name, "error", err)
				return nil
			}
			createdAt := set.CreatedAt
			for j := range hs {
				hs[j].SetID = set.ID
				hs[j].CreatedAt = &createdAt
			}
			slots[i] = hs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []model.Headline{}
	for _, hs := range slots {
		out = append(out, hs...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AnalyzeContent reports how well a set's material covers its subject.
func (e *Engine) AnalyzeContent(ctx context.Context, setID string) (*model.ContentCoverage, error) {
	chunks, err := e.passages.ListPassagesBySet(ctx, setID, 0)
	if err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}
	if len(chunks) == 0 {
		return &model.ContentCoverage{
			TotalChunks:     0,
			Coverage:        model.CoverageNone,
			Recommendations: []string{},
		}, nil
	}

	sample := chunks
	if len(sample) > coveragePassages {
		sample = sample[:coveragePassages]
	}
	contents := make([]string, len(sample))
	for i, c := range sample {
		contents[i] = c.Content
	}
	first := chunks[0]
	prompt, err := prompts.BuildCoverage(prompts.CoverageData{
		SetName: first.SetName,
		Subject: first.Subject,
		Grade:   first.Grade,
		Content: strings.Join(contents, "\n\n"),
	})
	if err != nil {
		return nil, err
	}
	analysis, err := e.gen.Generate(ctx, prompt, coverageOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrGenerationFailed, err)
	}

	return &model.ContentCoverage{
		TotalChunks:     len(chunks),
		Coverage:        CoverageLabel(len(chunks)),
		Analysis:        analysis,
		Recommendations: coverageAdvice(ctx, len(chunks)),
	}, nil
}

// CoverageLabel maps a passage count to a coverage label.
func CoverageLabel(n int) model.Coverage {
	switch {
	case n == 0:
		return model.CoverageNone
	case n > 20:
		return model.CoverageGood
	case n > 10:
		return model.CoverageModerate
	default:
		return model.CoverageLimited
	}
}

func coverageAdvice(ctx context.Context, n int) []string {
	var recs []string
	if n < 5 {
		recs = append(recs, i18n.T(ctx, "CoverageAddMaterials"))
	}
	if n > 50 {
		recs = append(recs, i18n.T(ctx, "CoverageSplitSet"))
	}
	return append(recs,
		i18n.T(ctx, "CoverageReviewWeakAreas"),
		i18n.T(ctx, "CoveragePractice"),
		i18n.T(ctx, "CoverageContentFinder"),
	)
}

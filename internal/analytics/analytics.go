// Package analytics mines quiz and session history for weak areas, learning
// status and coaching recommendations.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/studymate/internal/i18n"
	"github.com/pavelanni/studymate/internal/llm"
	"github.com/pavelanni/studymate/internal/llm/prompts"
	"github.com/pavelanni/studymate/internal/model"
)

const (
	maxWeakAreas = 5

	// Synthetic gap scores fall in [gapScoreMin, gapScoreMin+gapScoreSpan).
	gapScoreMin  = 20
	gapScoreSpan = 30
)

var coachOpts = llm.GenerateOptions{Temperature: 0.7, MaxTokens: 300}

// ActivityStore is the store surface the analyzer reads and appends to.
type ActivityStore interface {
	GetSet(ctx context.Context, id string) (model.Set, error)
	ListQuizResults(ctx context.Context, setID string) ([]model.QuizResult, error)
	ListStudySessions(ctx context.Context, setID string) ([]model.StudySession, error)
	ProgressTotals(ctx context.Context) ([]model.ProgressTotals, error)
	AddQuizResult(ctx context.Context, in model.QuizInput) (model.QuizResult, error)
	AddStudySession(ctx context.Context, in model.SessionInput) (model.StudySession, error)
	AddInteraction(ctx context.Context, in model.InteractionInput) (model.Interaction, error)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error)
}

// Analyzer computes progress analytics.
type Analyzer struct {
	store ActivityStore
	gen   Generator
	intn  func(n int) int
}

// New creates an Analyzer. A nil generator makes Recommend always use the
// templated fallback.
func New(store ActivityStore, gen Generator) *Analyzer {
	return &Analyzer{store: store, gen: gen, intn: rand.IntN}
}

// AnalyzeGaps ranks the most frequent weak areas of a set's quizzes.
//
// Each weak area gets a synthetic score in [20,50). The score is a
// placeholder, not a measurement.
func (a *Analyzer) AnalyzeGaps(ctx context.Context, setID string) (*model.GapAnalysis, error) {
	quizzes, err := a.store.ListQuizResults(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	sessions, err := a.store.ListStudySessions(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("list study sessions: %w", err)
	}
	set, err := a.lookupSet(ctx, setID)
	if err != nil {
		return nil, err
	}

	var (
		counts = map[string]int{}
		order  []string
		total  float64
	)
	for _, q := range quizzes {
		total += q.Score
		for _, area := range ParseWeakAreas(q.WeakAreas).Areas() {
			if counts[area] == 0 {
				order = append(order, area)
			}
			counts[area]++
		}
	}
	// Stable so equally frequent areas keep first-seen order.
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxWeakAreas {
		order = order[:maxWeakAreas]
	}

	details := make(map[string]int, len(order))
	for _, area := range order {
		details[area] = gapScoreMin + a.intn(gapScoreSpan)
	}
	var avg float64
	if len(quizzes) > 0 {
		avg = total / float64(len(quizzes))
	}

	return &model.GapAnalysis{
		SetID:         set.ID,
		SetName:       set.Name,
		WeakAreas:     append([]string{}, order...),
		Strengths:     []string{},
		GapDetails:    details,
		TotalSessions: len(sessions),
		TotalQuizzes:  len(quizzes),
		AverageScore:  avg,
	}, nil
}

func (a *Analyzer) lookupSet(ctx context.Context, setID string) (model.Set, error) {
	set, err := a.store.GetSet(ctx, setID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Set{}, fmt.Errorf("set %s: %w", setID, model.ErrNotFound)
	}
	if err != nil {
		return model.Set{}, fmt.Errorf("get set: %w", err)
	}
	return set, nil
}

// ClassifyStatus derives a learning status from study hours and mean score.
// Mastery is checked first since the bands overlap.
func ClassifyStatus(hours, score float64) model.Status {
	switch {
	case score >= 80:
		return model.StatusMastered
	case (hours > 10 && score < 50) || (hours > 5 && score < 60):
		return model.StatusStruggling
	default:
		return model.StatusLearning
	}
}

// ProgressOverview returns one row per set that has any study time or quiz,
// ordered by time spent.
func (a *Analyzer) ProgressOverview(ctx context.Context) ([]model.ProgressRow, error) {
	totals, err := a.store.ProgressTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("progress totals: %w", err)
	}
	rows := []model.ProgressRow{}
	for _, t := range totals {
		if t.TimeHours <= 0 && t.QuizCount <= 0 {
			continue
		}
		rows = append(rows, model.ProgressRow{
			ID:           t.SetID,
			Topic:        t.Topic,
			Subject:      t.Subject,
			Difficulty:   t.Difficulty,
			TimeHours:    t.TimeHours,
			AvgScore:     t.AvgScore,
			SessionCount: t.SessionCount,
			QuizCount:    t.QuizCount,
			LastStudied:  t.LastStudied,
			Status:       ClassifyStatus(t.TimeHours, t.AvgScore),
			Time:         math.Round(t.TimeHours*10) / 10,
			Score:        int(math.Round(t.AvgScore)),
		})
	}
	return rows, nil
}

// Recommend produces coaching advice for the struggling rows. Generation
// failures fall back to a templated recommendation.
func (a *Analyzer) Recommend(ctx context.Context, rows []model.ProgressRow) *model.Recommendation {
	var struggling []model.ProgressRow
	for _, r := range rows {
		status := r.Status
		if status == "" {
			status = ClassifyStatus(r.TimeHours, r.AvgScore)
		}
		if status == model.StatusStruggling {
			struggling = append(struggling, r)
		}
	}
	if len(struggling) == 0 {
		return &model.Recommendation{
			Recommendation:   i18n.T(ctx, "AllTopicsOnTrack"),
			StrugglingTopics: []string{},
			Source:           model.RecommendationNone,
		}
	}

	names := make([]string, len(struggling))
	topics := make([]prompts.CoachTopic, len(struggling))
	for i, r := range struggling {
		names[i] = r.Topic
		topics[i] = prompts.CoachTopic{
			Topic: r.Topic,
			Hours: strconv.FormatFloat(r.Time, 'f', -1, 64),
			Score: r.Score,
		}
	}

	text, err := a.coach(ctx, topics)
	if err == nil {
		return &model.Recommendation{Recommendation: text, StrugglingTopics: names, Source: model.RecommendationAI}
	}
	slog.Warn("coaching recommendation failed, using template", "error", err)

	top := struggling[0]
	for _, r := range struggling[1:] {
		if r.TimeHours > top.TimeHours {
			top = r
		}
	}
	return &model.Recommendation{
		Recommendation:   i18n.Td(ctx, "FallbackRecommendation", map[string]any{"Topic": top.Topic}),
		StrugglingTopics: names,
		Source:           model.RecommendationTemplate,
	}
}

func (a *Analyzer) coach(ctx context.Context, topics []prompts.CoachTopic) (string, error) {
	if a.gen == nil {
		return "", errors.New("no generator configured")
	}
	prompt, err := prompts.BuildCoach(topics)
	if err != nil {
		return "", err
	}
	text, err := a.gen.Generate(ctx, prompt, coachOpts)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

package analytics

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelanni/studymate/internal/llm"
	"github.com/pavelanni/studymate/internal/model"
	"github.com/pavelanni/studymate/internal/store"
)

type fakeGenerator struct {
	calls  int
	prompt string
	opts   llm.GenerateOptions
	text   string
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.calls++
	f.prompt, f.opts = prompt, opts
	return f.text, f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestSet(t *testing.T, s *store.Store, name string) model.Set {
	t.Helper()
	set, err := s.CreateSet(context.Background(), model.Set{Name: name, Subject: "science", Difficulty: "medium"})
	if err != nil {
		t.Fatalf("CreateSet: %v", err)
	}
	return set
}

func newTestAnalyzer(s ActivityStore, gen Generator) *Analyzer {
	a := New(s, gen)
	a.intn = func(n int) int { return n - 1 }
	return a
}

func TestParseWeakAreas(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		format WeakAreaFormat
		want   []string
	}{
		{"json list", `["fractions","decimals"]`, WeakAreasJSON, []string{"fractions", "decimals"}},
		{"json drops blanks", `["a", " ", ""]`, WeakAreasJSON, []string{"a"}},
		{"json empty", `[]`, WeakAreasJSON, nil},
		{"csv", "fractions, decimals ,ratios", WeakAreasCSV, []string{"fractions", "decimals", "ratios"}},
		{"csv single", "geometry", WeakAreasCSV, []string{"geometry"}},
		{"csv blanks", " , ,", WeakAreasCSV, nil},
		{"empty field", "", WeakAreasCSV, nil},
		{"malformed json", `["unterminated`, WeakAreasCSV, []string{`["unterminated`}},
		{"json string", `"fractions"`, WeakAreasCSV, []string{"fractions"}},
		{"json string with commas", `"fractions, ratios"`, WeakAreasCSV, []string{"fractions", "ratios"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseWeakAreas(tt.raw)
			if got.Format != tt.format {
				t.Errorf("format = %v, want %v", got.Format, tt.format)
			}
			if areas := got.Areas(); !reflect.DeepEqual(areas, tt.want) {
				t.Errorf("Areas() = %q, want %q", areas, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		hours, score float64
		want         model.Status
	}{
		{12, 85, model.StatusMastered},
		{0, 80, model.StatusMastered},
		{12, 45, model.StatusStruggling},
		{6, 55, model.StatusStruggling},
		{6, 65, model.StatusLearning},
		{4, 30, model.StatusLearning},
		{10, 49, model.StatusStruggling},
		{5, 59, model.StatusLearning},
		{11, 59.9, model.StatusStruggling},
		{20, 60, model.StatusLearning},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.hours, tt.score); got != tt.want {
			t.Errorf("ClassifyStatus(%v, %v) = %q, want %q", tt.hours, tt.score, got, tt.want)
		}
	}
}

func TestAnalyzeGaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	set := createTestSet(t, s, "Algebra")

	// Mixed historical formats for the same set.
	for _, raw := range []string{
		`["fractions","decimals","ratios","graphs","angles","volume"]`,
		"fractions, decimals, ratios, graphs, angles",
		`["fractions","decimals","ratios","graphs"]`,
		"fractions,decimals,ratios",
		`["fractions","decimals"]`,
		"fractions",
	} {
		if _, err := s.ImportQuizResult(ctx, model.QuizResult{SetID: set.ID, Score: 60, WeakAreas: raw}); err != nil {
			t.Fatalf("ImportQuizResult: %v", err)
		}
	}
	if _, err := s.AddStudySession(ctx, model.SessionInput{SetID: set.ID, DurationMinutes: 30}); err != nil {
		t.Fatalf("AddStudySession: %v", err)
	}

	a := newTestAnalyzer(s, nil)
	got, err := a.AnalyzeGaps(ctx, set.ID)
	if err != nil {
		t.Fatalf("AnalyzeGaps: %v", err)
	}
	want := []string{"fractions", "decimals", "ratios", "graphs", "angles"}
	if !reflect.DeepEqual(got.WeakAreas, want) {
		t.Errorf("weak areas = %q, want %q", got.WeakAreas, want)
	}
	if got.SetName != "Algebra" || got.TotalQuizzes != 6 || got.TotalSessions != 1 || got.AverageScore != 60 {
		t.Errorf("unexpected summary %+v", got)
	}
	if len(got.GapDetails) != 5 {
		t.Fatalf("expected 5 gap details, got %d", len(got.GapDetails))
	}
	for area, score := range got.GapDetails {
		if score != 49 {
			t.Errorf("gap score for %q = %d, want 49 with the maximal draw", area, score)
		}
	}
}

func TestAnalyzeGapsScoreRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	set := createTestSet(t, s, "Physics")
	if _, err := s.AddQuizResult(ctx, model.QuizInput{SetID: set.ID, Score: 40, WeakAreas: []string{"optics", "waves"}}); err != nil {
		t.Fatalf("AddQuizResult: %v", err)
	}

	a := New(s, nil)
	for i := 0; i < 50; i++ {
		got, err := a.AnalyzeGaps(ctx, set.ID)
		if err != nil {
			t.Fatalf("AnalyzeGaps: %v", err)
		}
		for area, score := range got.GapDetails {
			if score < 20 || score >= 50 {
				t.Fatalf("gap score for %q = %d, outside [20,50)", area, score)
			}
		}
	}
}

func TestAnalyzeGapsNoQuizzes(t *testing.T) {
	s := newTestStore(t)
	set := createTestSet(t, s, "History")

	got, err := newTestAnalyzer(s, nil).AnalyzeGaps(context.Background(), set.ID)
	if err != nil {
		t.Fatalf("AnalyzeGaps: %v", err)
	}
	if got.AverageScore != 0 || got.TotalQuizzes != 0 || len(got.WeakAreas) != 0 || got.WeakAreas == nil {
		t.Errorf("unexpected empty analysis %+v", got)
	}
}

func TestAnalyzeGapsUnknownSet(t *testing.T) {
	s := newTestStore(t)
	_, err := newTestAnalyzer(s, nil).AnalyzeGaps(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProgressOverview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	struggling := createTestSet(t, s, "Chemistry")
	mastered := createTestSet(t, s, "Spelling")
	quizOnly := createTestSet(t, s, "Poetry")
	createTestSet(t, s, "Untouched")

	for _, mins := range []int{300, 330} {
		if _, err := s.AddStudySession(ctx, model.SessionInput{SetID: struggling.ID, DurationMinutes: mins}); err != nil {
			t.Fatalf("AddStudySession: %v", err)
		}
	}
	for _, score := range []float64{40, 45} {
		if _, err := s.AddQuizResult(ctx, model.QuizInput{SetID: struggling.ID, Score: score}); err != nil {
			t.Fatalf("AddQuizResult: %v", err)
		}
	}
	if _, err := s.AddStudySession(ctx, model.SessionInput{SetID: mastered.ID, DurationMinutes: 90}); err != nil {
		t.Fatalf("AddStudySession: %v", err)
	}
	if _, err := s.AddQuizResult(ctx, model.QuizInput{SetID: mastered.ID, Score: 92}); err != nil {
		t.Fatalf("AddQuizResult: %v", err)
	}
	if _, err := s.AddQuizResult(ctx, model.QuizInput{SetID: quizOnly.ID, Score: 70}); err != nil {
		t.Fatalf("AddQuizResult: %v", err)
	}

	rows, err := newTestAnalyzer(s, nil).ProgressOverview(ctx)
	if err != nil {
		t.Fatalf("ProgressOverview: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("sets without activity must be excluded, got %d rows", len(rows))
	}
	first := rows[0]
	if first.Topic != "Chemistry" || first.Status != model.StatusStruggling {
		t.Errorf("expected struggling Chemistry first, got %+v", first)
	}
	if first.Time != 10.5 || first.Score != 43 || first.SessionCount != 2 || first.QuizCount != 2 {
		t.Errorf("unexpected rounded chemistry row %+v", first)
	}
	if rows[1].Topic != "Spelling" || rows[1].Status != model.StatusMastered {
		t.Errorf("expected mastered Spelling second, got %+v", rows[1])
	}
	if rows[2].Topic != "Poetry" || rows[2].Status != model.StatusLearning || rows[2].Time != 0 {
		t.Errorf("expected quiz-only Poetry last, got %+v", rows[2])
	}
}

func TestRecommendAllOnTrack(t *testing.T) {
	gen := &fakeGenerator{text: "unused"}
	a := newTestAnalyzer(nil, gen)
	rows := []model.ProgressRow{
		{Topic: "Spelling", TimeHours: 2, AvgScore: 90, Status: model.StatusMastered},
		{Topic: "Poetry", TimeHours: 3, AvgScore: 65, Status: model.StatusLearning},
	}

	got := a.Recommend(context.Background(), rows)
	if got.Source != model.RecommendationNone || gen.calls != 0 {
		t.Errorf("expected fixed message without generation, got %+v, %d calls", got, gen.calls)
	}
	if !strings.HasPrefix(got.Recommendation, "Great job!") {
		t.Errorf("unexpected message %q", got.Recommendation)
	}
	if got.StrugglingTopics == nil || len(got.StrugglingTopics) != 0 {
		t.Errorf("expected empty struggling topics, got %v", got.StrugglingTopics)
	}
}

func TestRecommendGenerated(t *testing.T) {
	gen := &fakeGenerator{text: "Try spaced repetition."}
	a := newTestAnalyzer(nil, gen)
	rows := []model.ProgressRow{
		{Topic: "Chemistry", TimeHours: 12, AvgScore: 45, Time: 12, Score: 45, Status: model.StatusStruggling},
		{Topic: "Spelling", TimeHours: 2, AvgScore: 90, Status: model.StatusMastered},
	}

	got := a.Recommend(context.Background(), rows)
	if got.Source != model.RecommendationAI || got.Recommendation != "Try spaced repetition." {
		t.Errorf("unexpected recommendation %+v", got)
	}
	if !reflect.DeepEqual(got.StrugglingTopics, []string{"Chemistry"}) {
		t.Errorf("unexpected struggling topics %v", got.StrugglingTopics)
	}
	if !strings.Contains(gen.prompt, "- Chemistry: 12 hours spent, 45% average score") {
		t.Errorf("prompt missing struggling topic line:\n%s", gen.prompt)
	}
	if strings.Contains(gen.prompt, "Spelling") {
		t.Error("prompt should only list struggling topics")
	}
	if gen.opts.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", gen.opts.Temperature)
	}
}

func TestRecommendFallback(t *testing.T) {
	rows := []model.ProgressRow{
		{Topic: "Chemistry", TimeHours: 6, AvgScore: 55, Time: 6, Score: 55},
		{Topic: "Physics", TimeHours: 14, AvgScore: 30, Time: 14, Score: 30},
		{Topic: "Spelling", TimeHours: 20, AvgScore: 95},
	}
	tests := []struct {
		name string
		gen  Generator
	}{
		{"generation error", &fakeGenerator{err: errors.New("connection refused")}},
		{"empty completion", &fakeGenerator{text: "  "}},
		{"no generator", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestAnalyzer(nil, tt.gen).Recommend(context.Background(), rows)
			if got.Source != model.RecommendationTemplate {
				t.Errorf("expected template source, got %q", got.Source)
			}
			if !strings.HasPrefix(got.Recommendation, "You are spending significant time on Physics") {
				t.Errorf("fallback should name the most time-invested struggling topic, got %q", got.Recommendation)
			}
			if !reflect.DeepEqual(got.StrugglingTopics, []string{"Chemistry", "Physics"}) {
				t.Errorf("unexpected struggling topics %v", got.StrugglingTopics)
			}
		})
	}
}

func TestLogSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	set := createTestSet(t, s, "Biology")
	a := newTestAnalyzer(s, nil)

	tests := []struct {
		name    string
		in      model.SessionInput
		wantErr error
	}{
		{"valid", model.SessionInput{SetID: set.ID, DurationMinutes: 45, Activities: "reading", Notes: "chapter 3"}, nil},
		{"zero duration", model.SessionInput{SetID: set.ID}, nil},
		{"missing set id", model.SessionInput{DurationMinutes: 10}, model.ErrInvalidInput},
		{"negative duration", model.SessionInput{SetID: set.ID, DurationMinutes: -5}, model.ErrInvalidInput},
		{"unknown set", model.SessionInput{SetID: "missing", DurationMinutes: 10}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.LogSession(ctx, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LogSession: %v", err)
			}
			if got.ID == "" || got.Notes != tt.in.Notes {
				t.Errorf("unexpected session %+v", got)
			}
		})
	}

	sessions, err := s.ListStudySessions(ctx, set.ID)
	if err != nil {
		t.Fatalf("ListStudySessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 stored sessions, got %d", len(sessions))
	}
}

func TestLogQuizResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	set := createTestSet(t, s, "Geometry")
	a := newTestAnalyzer(s, nil)

	tests := []struct {
		name    string
		in      model.QuizInput
		wantErr error
	}{
		{"valid", model.QuizInput{SetID: set.ID, Score: 75, TotalQuestions: 4, CorrectAnswers: 3, WeakAreas: []string{"angles"}}, nil},
		{"perfect", model.QuizInput{SetID: set.ID, Score: 100}, nil},
		{"score above range", model.QuizInput{SetID: set.ID, Score: 101}, model.ErrInvalidInput},
		{"negative score", model.QuizInput{SetID: set.ID, Score: -1}, model.ErrInvalidInput},
		{"negative count", model.QuizInput{SetID: set.ID, Score: 50, TotalQuestions: -1}, model.ErrInvalidInput},
		{"missing set id", model.QuizInput{Score: 50}, model.ErrInvalidInput},
		{"unknown set", model.QuizInput{SetID: "missing", Score: 50}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.LogQuizResult(ctx, tt.in)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("LogQuizResult: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	got, err := a.AnalyzeGaps(ctx, set.ID)
	if err != nil {
		t.Fatalf("AnalyzeGaps: %v", err)
	}
	if got.TotalQuizzes != 2 || !reflect.DeepEqual(got.WeakAreas, []string{"angles"}) {
		t.Errorf("logged quizzes should feed gap analysis, got %+v", got)
	}
}

func TestLogInteraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	set := createTestSet(t, s, "Art")
	a := newTestAnalyzer(s, nil)
	quality := 0.8

	it, err := a.LogInteraction(ctx, model.InteractionInput{SetID: set.ID, Type: "query", Query: "cubism", ResultQuality: &quality})
	if err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}
	if it.ID == "" || it.Type != "query" {
		t.Errorf("unexpected interaction %+v", it)
	}

	if _, err := a.LogInteraction(ctx, model.InteractionInput{SetID: set.ID}); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing type, got %v", err)
	}
	if _, err := a.LogInteraction(ctx, model.InteractionInput{SetID: "missing", Type: "view"}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown set, got %v", err)
	}

	stored, err := s.ListInteractions(ctx, set.ID)
	if err != nil {
		t.Fatalf("ListInteractions: %v", err)
	}
	if len(stored) != 1 || stored[0].ResultQuality == nil || *stored[0].ResultQuality != 0.8 {
		t.Errorf("unexpected stored interactions %+v", stored)
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/studymate/internal/analytics"
	"github.com/pavelanni/studymate/internal/llm"
	"github.com/pavelanni/studymate/internal/model"
	"github.com/pavelanni/studymate/internal/rag"
	"github.com/pavelanni/studymate/internal/retrieval"
	"github.com/pavelanni/studymate/internal/store"
)

type fakeGenerator struct {
	calls int
	text  string
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.calls++
	return f.text, f.err
}

type testServer struct {
	store  *store.Store
	gen    *fakeGenerator
	router http.Handler
}

func newTestServer(t *testing.T, cfg model.ServeConfig) *testServer {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gen := &fakeGenerator{text: "generated answer"}
	engine := rag.New(retrieval.New(nil, st), st, gen)
	h, err := New(st, engine, analytics.New(st, gen), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	return &testServer{store: st, gen: gen, router: r}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) seedSet(t *testing.T, name string, contents ...string) model.Set {
	t.Helper()
	ctx := context.Background()
	set, err := s.store.CreateSet(ctx, model.Set{Name: name, Subject: "biology", Grade: "8"})
	if err != nil {
		t.Fatalf("CreateSet: %v", err)
	}
	if len(contents) == 0 {
		return set
	}
	doc, err := s.store.AddDocument(ctx, set.ID, "notes.pdf")
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	for i, c := range contents {
		if _, err := s.store.AddChunk(ctx, doc.ID, i, c, nil); err != nil {
			t.Fatalf("AddChunk: %v", err)
		}
	}
	return set
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{APIKey: "secret"})
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz should not need a key, got %d", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{})
	set := s.seedSet(t, "Plants", "Photosynthesis happens in the leaves.", "Roots absorb water.")

	rec := s.do(t, http.MethodPost, "/api/rag/query", queryRequest{Query: "explain photosynthesis", SetID: set.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decodeBody[model.AnswerResult](t, rec)
	if got.Answer != "generated answer" || got.SearchType != model.SearchKeyword {
		t.Errorf("unexpected answer %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].Citation != "notes.pdf (Chunk 0)" || got.Confidence != 0.5 {
		t.Errorf("unexpected sources %+v, confidence %f", got.Sources, got.Confidence)
	}
}

func TestQueryNoResults(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{})
	s.seedSet(t, "Plants", "Roots absorb water.")

	rec := s.do(t, http.MethodPost, "/api/rag/query", queryRequest{Query: "volcanoes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody[model.AnswerResult](t, rec)
	if got.Confidence != 0 || len(got.Sources) != 0 || s.gen.calls != 0 {
		t.Errorf("expected fixed answer without generation, got %+v after %d calls", got, s.gen.calls)
	}
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		genErr error
		status int
	}{
		{"empty query", queryRequest{Query: "  "}, nil, http.StatusBadRequest},
		{"malformed body", "{not json", nil, http.StatusBadRequest},
		{"generation failure", queryRequest{Query: "photosynthesis"}, errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, model.ServeConfig{})
			s.seedSet(t, "Plants", "Photosynthesis happens in the leaves.")
			s.gen.err = tt.genErr

			rec := s.do(t, http.MethodPost, "/api/rag/query", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
			body := decodeBody[errorBody](t, rec)
			if body.Error == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestHeadlineRoutes(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{})
	set := s.seedSet(t, "Plants", "Photosynthesis happens in the leaves.", "Roots absorb water.")
	s.gen.text = "Leaves Make Food\nRoots Drink Water\nExtra Title"

	rec := s.do(t, http.MethodPost, "/api/rag/headlines/"+set.ID, headlinesRequest{Limit: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	one := decodeBody[struct{ Headlines []model.Headline }](t, rec)
	if len(one.Headlines) != 2 || one.Headlines[0].Title != "Leaves Make Food" {
		t.Errorf("unexpected headlines %+v", one.Headlines)
	}

	// No body falls back to the default limit.
	rec = s.do(t, http.MethodPost, "/api/rag/headlines/"+set.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without body, got %d: %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/api/rag/headlines?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	all := decodeBody[struct{ Headlines []model.Headline }](t, rec)
	if len(all.Headlines) != 1 || all.Headlines[0].SetID != set.ID {
		t.Errorf("unexpected aggregate headlines %+v", all.Headlines)
	}

	if rec := s.do(t, http.MethodGet, "/api/rag/headlines?limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/rag/headlines/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown set, got %d", rec.Code)
	}
}

func TestContentGapRoute(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{})
	set := s.seedSet(t, "Plants", "Photosynthesis happens in the leaves.")
	s.gen.text = "Missing: plant reproduction."

	rec := s.do(t, http.MethodPost, "/api/rag/gap-analysis/"+set.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decodeBody[model.ContentCoverage](t, rec)
	if got.TotalChunks != 1 || got.Coverage != model.CoverageLimited || got.Analysis != "Missing: plant reproduction." {
		t.Errorf("unexpected coverage %+v", got)
	}

	if rec := s.do(t, http.MethodPost, "/api/rag/gap-analysis/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown set, got %d", rec.Code)
	}
}

func TestProgressFlow(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{})
	set := s.seedSet(t, "Chemistry")
	s.gen.err = errors.New("model offline")

	rec := s.do(t, http.MethodPost, "/api/progress/session", model.SessionInput{SetID: set.ID, DurationMinutes: 660, Notes: "titration"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("log session: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	rec = s.do(t, http.MethodPost, "/api/progress/quiz", model.QuizInput{SetID: set.ID, Score: 40, WeakAreas: []string{"moles", "bonds"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("log quiz: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	rec = s.do(t, http.MethodPost, "/api/progress/interaction", model.InteractionInput{SetID: set.ID, Type: "query", Query: "moles"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("log interaction: expected 201, got %d: %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/api/progress/overview", nil)
	rows := decodeBody[[]model.ProgressRow](t, rec)
	if len(rows) != 1 || rows[0].Status != model.StatusStruggling || rows[0].Time != 11 {
		t.Fatalf("unexpected overview %+v", rows)
	}

	rec = s.do(t, http.MethodGet, "/api/progress/gaps/"+set.ID, nil)
	gaps := decodeBody[model.GapAnalysis](t, rec)
	if gaps.TotalQuizzes != 1 || len(gaps.WeakAreas) != 2 {
		t.Errorf("unexpected gaps %+v", gaps)
	}

	rec = s.do(t, http.MethodGet, "/api/progress/recommendations", nil)
	reco := decodeBody[model.Recommendation](t, rec)
	if reco.Source != model.RecommendationTemplate || !strings.Contains(reco.Recommendation, "Chemistry") {
		t.Errorf("expected templated fallback naming Chemistry, got %+v", reco)
	}
}

func TestProgressValidation(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{})
	set := s.seedSet(t, "Chemistry")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"score out of range", "/api/progress/quiz", model.QuizInput{SetID: set.ID, Score: 150}, http.StatusBadRequest},
		{"negative duration", "/api/progress/session", model.SessionInput{SetID: set.ID, DurationMinutes: -1}, http.StatusBadRequest},
		{"unknown set", "/api/progress/session", model.SessionInput{SetID: "missing", DurationMinutes: 5}, http.StatusNotFound},
		{"missing type", "/api/progress/interaction", model.InteractionInput{SetID: set.ID}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, http.MethodPost, tt.path, tt.body); rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
		})
	}

	if rec := s.do(t, http.MethodGet, "/api/progress/gaps/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown set gaps, got %d", rec.Code)
	}
}

func TestSetRoutes(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{})

	rec := s.do(t, http.MethodPost, "/api/sets", map[string]string{"name": "Algebra", "subject": "math"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	created := decodeBody[model.Set](t, rec)

	rec = s.do(t, http.MethodPatch, "/api/sets/"+created.ID, map[string]string{"grade": "9"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	updated := decodeBody[model.Set](t, rec)
	if updated.Name != "Algebra" || updated.Subject != "math" || updated.Grade != "9" {
		t.Errorf("partial update should keep other fields, got %+v", updated)
	}

	rec = s.do(t, http.MethodGet, "/api/sets", nil)
	if sets := decodeBody[[]model.Set](t, rec); len(sets) != 1 {
		t.Errorf("expected 1 set, got %d", len(sets))
	}

	if rec := s.do(t, http.MethodPatch, "/api/sets/"+created.ID, map[string]string{"name": " "}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank name, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/sets", map[string]string{"subject": "math"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing name, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/sets/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/sets/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, "/api/sets/"+created.ID, map[string]string{"grade": "10"}); rec.Code != http.StatusNotFound {
		t.Errorf("update of deleted set: expected 404, got %d", rec.Code)
	}
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{APIKey: "secret"})

	tests := []struct {
		name   string
		header []string
		status int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong bearer", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", []string{"Authorization", "Bearer secret"}, http.StatusOK},
		{"header", []string{"X-API-Key", "secret"}, http.StatusOK},
		{"wrong header", []string{"X-API-Key", "Secret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/sets", nil, tt.header...)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestLocalizedAnswer(t *testing.T) {
	s := newTestServer(t, model.ServeConfig{Lang: "en"})
	rec := s.do(t, http.MethodPost, "/api/rag/query", queryRequest{Query: "anything"}, "Accept-Language", "ru")
	got := decodeBody[model.AnswerResult](t, rec)
	if !strings.HasPrefix(got.Answer, "Мне не удалось") {
		t.Errorf("expected Russian fixed answer, got %q", got.Answer)
	}
}

package model

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced collection does not exist.
	ErrNotFound = errors.New("not found")
	// ErrGenerationFailed wraps failures of the text-generation gateway.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrInvalidInput is returned for rejected log or edit requests.
	ErrInvalidInput = errors.New("invalid input")
)

// Set is a named collection of study documents.
type Set struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Subject    string    `json:"subject"`
	Grade      string    `json:"grade"`
	Difficulty string    `json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Document is an uploaded file belonging to a set.
type Document struct {
	ID        string    `json:"id"`
	SetID     string    `json:"set_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// Passage is a stored chunk of document text joined with its parent metadata.
// Embedding is nil until the chunk has been embedded.
type Passage struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	SetID      string    `json:"set_id"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	Filename   string    `json:"filename"`
	SetName    string    `json:"set_name"`
	Subject    string    `json:"subject"`
	Grade      string    `json:"grade"`
}

// QuizResult is an immutable record of a completed quiz.
// WeakAreas holds the raw stored field: a JSON list or a comma-separated string.
type QuizResult struct {
	ID             string    `json:"id"`
	SetID          string    `json:"set_id"`
	Topic          string    `json:"topic"`
	Score          float64   `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	TimeTaken      int       `json:"time_taken_minutes"`
	WeakAreas      string    `json:"weak_areas"`
	CompletedAt    time.Time `json:"completed_at"`
}

// StudySession is an immutable record of time spent on a set.
type StudySession struct {
	ID              string    `json:"id"`
	SetID           string    `json:"set_id"`
	DurationMinutes int       `json:"duration_minutes"`
	Activities      string    `json:"activities"`
	Notes           string    `json:"notes"`
	SessionDate     time.Time `json:"session_date"`
}

// Interaction records a user action such as a query or a document view.
type Interaction struct {
	ID            string    `json:"id"`
	SetID         string    `json:"set_id"`
	Type          string    `json:"interaction_type"`
	Query         string    `json:"query"`
	ResultQuality *float64  `json:"result_quality,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchType names the ranking path that produced a retrieval.
type SearchType string

const (
	SearchSemantic SearchType = "semantic_embeddings"
	SearchKeyword  SearchType = "keyword_fallback_enhanced"
)

// RetrievalResult is one ranked passage.
type RetrievalResult struct {
	Content        string     `json:"content"`
	Source         string     `json:"source"`
	SetName        string     `json:"set_name"`
	ChunkID        string     `json:"chunk_id"`
	RelevanceScore float64    `json:"relevance_score"`
	Citation       string     `json:"citation"`
	SearchType     SearchType `json:"search_type"`
}

// Retrieval is the outcome of a ranking call. An empty Results slice with
// TotalFound == 0 means nothing relevant was found; it is not an error.
type Retrieval struct {
	Query         string            `json:"query"`
	Results       []RetrievalResult `json:"results"`
	TotalFound    int               `json:"total_found"`
	SearchType    SearchType        `json:"search_type"`
	MaxSimilarity float64           `json:"max_similarity,omitempty"`
}

// Source is a citation attached to an answer.
type Source struct {
	Citation  string  `json:"citation"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

// AnswerResult is a grounded answer to a query.
type AnswerResult struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	Confidence float64    `json:"confidence"`
	SearchType SearchType `json:"search_type,omitempty"`
}

// Headline is a short generated title for a set's content.
type Headline struct {
	Title     string     `json:"title"`
	Source    string     `json:"source"`
	SetName   string     `json:"set_name"`
	Subject   string     `json:"subject"`
	SetID     string     `json:"set_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Coverage labels how much material a set holds.
type Coverage string

const (
	CoverageNone     Coverage = "none"
	CoverageLimited  Coverage = "limited"
	CoverageModerate Coverage = "moderate"
	CoverageGood     Coverage = "good"
)

// ContentCoverage is the content-based gap analysis of a set.
type ContentCoverage struct {
	TotalChunks     int      `json:"total_chunks"`
	Coverage        Coverage `json:"coverage"`
	Analysis        string   `json:"analysis,omitempty"`
	Recommendations []string `json:"recommendations"`
}

// GapAnalysis summarizes weak areas mined from a set's quiz history.
//
// GapDetails holds a synthetic low score in [20,50) per weak area. It is a
// placeholder until real subtopic scoring exists and must not be read as a
// measurement.
type GapAnalysis struct {
	SetID         string         `json:"setId"`
	SetName       string         `json:"setName"`
	WeakAreas     []string       `json:"weakAreas"`
	Strengths     []string       `json:"strengths"`
	GapDetails    map[string]int `json:"gapDetails"`
	TotalSessions int            `json:"totalSessions"`
	TotalQuizzes  int            `json:"totalQuizzes"`
	AverageScore  float64        `json:"averageScore"`
}

// Status is a derived learning status for a set.
type Status string

const (
	StatusMastered   Status = "mastered"
	StatusStruggling Status = "struggling"
	StatusLearning   Status = "learning"
)

// ProgressTotals are raw per-set activity aggregates read from the store.
type ProgressTotals struct {
	SetID        string
	Topic        string
	Subject      string
	Difficulty   string
	TimeHours    float64
	AvgScore     float64
	SessionCount int
	QuizCount    int
	LastStudied  *time.Time
}

// ProgressRow is a per-set overview row with its derived status.
// Time is rounded to one decimal and Score to an integer for display;
// Status is classified from the unrounded totals.
type ProgressRow struct {
	ID           string     `json:"id"`
	Topic        string     `json:"topic"`
	Subject      string     `json:"subject"`
	Difficulty   string     `json:"difficulty"`
	TimeHours    float64    `json:"time_hours"`
	AvgScore     float64    `json:"avg_score"`
	SessionCount int        `json:"session_count"`
	QuizCount    int        `json:"quiz_count"`
	LastStudied  *time.Time `json:"last_studied,omitempty"`
	Status       Status     `json:"status"`
	Time         float64    `json:"time"`
	Score        int        `json:"score"`
}

// RecommendationSource tells where a recommendation text came from.
type RecommendationSource string

const (
	RecommendationNone     RecommendationSource = "none"
	RecommendationAI       RecommendationSource = "ai"
	RecommendationTemplate RecommendationSource = "template"
)

// Recommendation is coaching advice derived from progress rows.
type Recommendation struct {
	Recommendation   string               `json:"recommendation"`
	StrugglingTopics []string             `json:"strugglingTopics"`
	Source           RecommendationSource `json:"source"`
}

// QuizInput carries the fields of a quiz result to log.
type QuizInput struct {
	SetID          string   `json:"setId"`
	Topic          string   `json:"topic"`
	Score          float64  `json:"score"`
	TotalQuestions int      `json:"totalQuestions"`
	CorrectAnswers int      `json:"correctAnswers"`
	TimeTaken      int      `json:"timeTaken"`
	WeakAreas      []string `json:"weakAreas"`
}

// SessionInput carries the fields of a study session to log.
type SessionInput struct {
	SetID           string `json:"setId"`
	DurationMinutes int    `json:"durationMinutes"`
	Activities      string `json:"activities"`
	Notes           string `json:"notes"`
}

// InteractionInput carries the fields of a user interaction to log.
type InteractionInput struct {
	SetID         string   `json:"setId"`
	Type          string   `json:"interactionType"`
	Query         string   `json:"query"`
	ResultQuality *float64 `json:"resultQuality,omitempty"`
}

// ServeConfig holds runtime parameters for the HTTP server set via CLI flags.
type ServeConfig struct {
	APIKey string // empty disables the API key check
	Lang   string
}

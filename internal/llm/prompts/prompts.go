package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentQuestionRegex    = regexp.MustCompile(`(?i)</?\s*student-question\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxQueryRunes bounds the user-controlled part of a prompt.
const maxQueryRunes = 4000

// Kind names a prompt template.
type Kind string

const (
	KindQA        Kind = "qa"
	KindHeadlines Kind = "headlines"
	KindCoverage  Kind = "coverage"
	KindCoach     Kind = "coach"
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Kind]*template.Template
)

// QAPassage is one labeled passage of a question-answering prompt.
type QAPassage struct {
	Citation string
	Content  string
}

// QAData holds template data for question-answering prompts.
type QAData struct {
	Query    string
	Passages []QAPassage
}

// HeadlineData holds template data for headline prompts.
type HeadlineData struct {
	Count   int
	Content string
}

// CoverageData holds template data for content coverage prompts.
type CoverageData struct {
	SetName string
	Subject string
	Grade   string
	Content string
}

// CoachTopic is one struggling topic listed in a coaching prompt.
type CoachTopic struct {
	Topic string
	Hours string
	Score int
}

// CoachData holds template data for coaching prompts.
type CoachData struct {
	Topics []CoachTopic
}

func load() error {
	loadOnce.Do(func() {
		templates = make(map[Kind]*template.Template)
		for _, k := range []Kind{KindQA, KindHeadlines, KindCoverage, KindCoach} {
			file := "templates/" + string(k) + ".txt"
			content, err := templateFS.ReadFile(file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(k)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[k] = tmpl
		}
	})
	return loadErr
}

func render(k Kind, data any) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates[k].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", k, err)
	}
	return buf.String(), nil
}

// BuildQA builds a grounded question-answering prompt. Prompt delimiter tags
// are stripped from the query and from every passage.
func BuildQA(query string, passages []QAPassage) (string, error) {
	clean := make([]QAPassage, len(passages))
	for i, p := range passages {
		clean[i] = QAPassage{Citation: stripTags(p.Citation), Content: stripTags(p.Content)}
	}
	return render(KindQA, QAData{Query: sanitizeQuery(query), Passages: clean})
}

// BuildHeadlines builds a prompt asking for up to count newline-separated titles.
func BuildHeadlines(content string, count int) (string, error) {
	return render(KindHeadlines, HeadlineData{Count: count, Content: content})
}

// BuildCoverage builds a content gap analysis prompt.
func BuildCoverage(data CoverageData) (string, error) {
	return render(KindCoverage, data)
}

// BuildCoach builds a coaching prompt for struggling topics.
func BuildCoach(topics []CoachTopic) (string, error) {
	return render(KindCoach, CoachData{Topics: topics})
}

func stripTags(s string) string {
	s = studentQuestionRegex.ReplaceAllString(s, "")
	return systemInstructionsRegex.ReplaceAllString(s, "")
}

func sanitizeQuery(query string) string {
	query = strings.TrimSpace(stripTags(query))

	if utf8.RuneCountInString(query) > maxQueryRunes {
		runes := []rune(query)
		query = string(runes[:maxQueryRunes])
	}
	return query
}

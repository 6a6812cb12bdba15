package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/studymate/internal/model"
)

// LogSession records a study session for an existing set.
func (a *Analyzer) LogSession(ctx context.Context, in model.SessionInput) (model.StudySession, error) {
	if strings.TrimSpace(in.SetID) == "" {
		return model.StudySession{}, fmt.Errorf("%w: set id is required", model.ErrInvalidInput)
	}
	if in.DurationMinutes < 0 {
		return model.StudySession{}, fmt.Errorf("%w: duration must not be negative", model.ErrInvalidInput)
	}
	if _, err := a.lookupSet(ctx, in.SetID); err != nil {
		return model.StudySession{}, err
	}
	s, err := a.store.AddStudySession(ctx, in)
	if err != nil {
		return model.StudySession{}, fmt.Errorf("add study session: %w", err)
	}
	return s, nil
}

// LogQuizResult records a completed quiz for an existing set.
func (a *Analyzer) LogQuizResult(ctx context.Context, in model.QuizInput) (model.QuizResult, error) {
	if strings.TrimSpace(in.SetID) == "" {
		return model.QuizResult{}, fmt.Errorf("%w: set id is required", model.ErrInvalidInput)
	}
	if in.Score < 0 || in.Score > 100 {
		return model.QuizResult{}, fmt.Errorf("%w: score %v outside 0-100", model.ErrInvalidInput, in.Score)
	}
	if in.TotalQuestions < 0 || in.CorrectAnswers < 0 || in.TimeTaken < 0 {
		return model.QuizResult{}, fmt.Errorf("%w: counts must not be negative", model.ErrInvalidInput)
	}
	if _, err := a.lookupSet(ctx, in.SetID); err != nil {
		return model.QuizResult{}, err
	}
	q, err := a.store.AddQuizResult(ctx, in)
	if err != nil {
		return model.QuizResult{}, fmt.Errorf("add quiz result: %w", err)
	}
	return q, nil
}

// LogInteraction records a user interaction such as a query or a document
// view.
func (a *Analyzer) LogInteraction(ctx context.Context, in model.InteractionInput) (model.Interaction, error) {
	if strings.TrimSpace(in.SetID) == "" {
		return model.Interaction{}, fmt.Errorf("%w: set id is required", model.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Type) == "" {
		return model.Interaction{}, fmt.Errorf("%w: interaction type is required", model.ErrInvalidInput)
	}
	if _, err := a.lookupSet(ctx, in.SetID); err != nil {
		return model.Interaction{}, err
	}
	it, err := a.store.AddInteraction(ctx, in)
	if err != nil {
		return model.Interaction{}, fmt.Errorf("add interaction: %w", err)
	}
	return it, nil
}

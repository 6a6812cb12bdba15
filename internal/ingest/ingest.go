// Package ingest loads pre-chunked study material and activity history into
// the store and backfills passage embeddings.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pavelanni/studymate/internal/model"
	"github.com/pavelanni/studymate/internal/store"
)

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Importer writes import files into a store.
type Importer struct {
	store    *store.Store
	embedder Embedder
}

// New creates an Importer. A nil embedder stores passages without
// embeddings; they are then only reachable by keyword search until
// Backfill runs.
func New(s *store.Store, embedder Embedder) *Importer {
	return &Importer{store: s, embedder: embedder}
}

// ImportFile imports one file. A file whose content was imported before is
// skipped; a file that changed since its import is skipped with a warning so
// an existing set is never duplicated.
func (im *Importer) ImportFile(ctx context.Context, path string) (model.ImportSummary, error) {
	summary := model.ImportSummary{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return summary, fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := im.store.GetImportedFileHash(ctx, path)
	if err != nil {
		return summary, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("import file unchanged, skipping", "path", path)
		summary.Skipped = true
		return summary, nil
	}
	if storedHash != "" {
		slog.Warn("import file changed since last import, skipping to avoid duplicating its set", "path", path)
		summary.Skipped = true
		return summary, nil
	}

	var in model.SetImport
	if err := json.Unmarshal(data, &in); err != nil {
		return summary, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(in.Name) == "" {
		return summary, fmt.Errorf("%s: %w: set name is required", path, model.ErrInvalidInput)
	}

	summary, err = im.Import(ctx, in)
	summary.Path = path
	if err != nil {
		return summary, fmt.Errorf("import %s: %w", path, err)
	}
	if err := im.store.SetImportedFileHash(ctx, path, hash); err != nil {
		return summary, fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported set", "path", path, "set", in.Name, "chunks", summary.Chunks,
		"embedded", summary.Embedded, "quizzes", summary.Quizzes, "sessions", summary.Sessions)
	return summary, nil
}

// Import stores a new set with its documents, passages and history.
func (im *Importer) Import(ctx context.Context, in model.SetImport) (model.ImportSummary, error) {
	var summary model.ImportSummary
	set, err := im.store.CreateSet(ctx, model.Set{
		Name:       strings.TrimSpace(in.Name),
		Subject:    in.Subject,
		Grade:      in.Grade,
		Difficulty: in.Difficulty,
	})
	if err != nil {
		return summary, fmt.Errorf("create set: %w", err)
	}
	summary.SetID = set.ID

	for _, d := range in.Documents {
		doc, err := im.store.AddDocument(ctx, set.ID, d.Filename)
		if err != nil {
			return summary, fmt.Errorf("add document %s: %w", d.Filename, err)
		}
		for i, content := range d.Chunks {
			if strings.TrimSpace(content) == "" {
				continue
			}
			emb := im.embed(ctx, content)
			if _, err := im.store.AddChunk(ctx, doc.ID, i, content, emb); err != nil {
				return summary, fmt.Errorf("add chunk %d of %s: %w", i, d.Filename, err)
			}
			summary.Chunks++
			if emb != nil {
				summary.Embedded++
			}
		}
	}

	for _, q := range in.Quizzes {
		weak, err := rawWeakAreas(q.WeakAreas)
		if err != nil {
			return summary, fmt.Errorf("quiz %q weak areas: %w", q.Topic, err)
		}
		if _, err := im.store.ImportQuizResult(ctx, model.QuizResult{
			SetID:          set.ID,
			Topic:          q.Topic,
			Score:          q.Score,
			TotalQuestions: q.TotalQuestions,
			CorrectAnswers: q.CorrectAnswers,
			TimeTaken:      q.TimeTaken,
			WeakAreas:      weak,
			CompletedAt:    q.CompletedAt,
		}); err != nil {
			return summary, fmt.Errorf("import quiz %q: %w", q.Topic, err)
		}
		summary.Quizzes++
	}

	for _, ss := range in.Sessions {
		if _, err := im.store.ImportStudySession(ctx, model.StudySession{
			SetID:           set.ID,
			DurationMinutes: ss.DurationMinutes,
			Activities:      ss.Activities,
			Notes:           ss.Notes,
			SessionDate:     ss.SessionDate,
		}); err != nil {
			return summary, fmt.Errorf("import session: %w", err)
		}
		summary.Sessions++
	}
	return summary, nil
}

// embed returns nil when no embedder is configured or embedding fails.
func (im *Importer) embed(ctx context.Context, content string) []float32 {
	if im.embedder == nil {
		return nil
	}
	emb, err := im.embedder.Embed(ctx, content)
	if err != nil || len(emb) == 0 {
		slog.Warn("embedding failed, storing passage without embedding", "error", err)
		return nil
	}
	return emb
}

// Backfill embeds up to limit passages that have no embedding yet and
// returns how many were embedded. It stops at the first embedding error.
func (im *Importer) Backfill(ctx context.Context, limit int) (int, error) {
	if im.embedder == nil {
		return 0, errors.New("no embedder configured")
	}
	pending, err := im.store.ListUnembeddedPassages(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unembedded passages: %w", err)
	}
	done := 0
	for _, p := range pending {
		emb, err := im.embedder.Embed(ctx, p.Content)
		if err != nil {
			return done, fmt.Errorf("embed chunk %s: %w", p.ID, err)
		}
		if err := im.store.SetChunkEmbedding(ctx, p.ID, emb); err != nil {
			return done, fmt.Errorf("store embedding of chunk %s: %w", p.ID, err)
		}
		done++
	}
	return done, nil
}

// rawWeakAreas turns the import field into the stored form: a JSON list is
// kept verbatim and a JSON string is unquoted into its comma-separated text.
func rawWeakAreas(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return "[]", nil
	case strings.HasPrefix(trimmed, "["):
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return "", err
		}
		return trimmed, nil
	default:
		var csv string
		if err := json.Unmarshal(raw, &csv); err != nil {
			return "", err
		}
		return csv, nil
	}
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jaam8/polls/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type QuestionCreator interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
}

type file struct {
	Questions []models.Question `yaml:"questions"`
}

// Parse decodes a seed document and validates every question in it.
func Parse(r io.Reader) ([]models.Question, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("seed: failed to decode: %w", err)
	}
	for i := range f.Questions {
		if err := f.Questions[i].Validate(); err != nil {
			return nil, fmt.Errorf("seed: question #%d: %w", i+1, err)
		}
	}
	return f.Questions, nil
}

// Load creates the questions found in path. Questions that already exist are
// left untouched, so loading the same file on every start is safe.
func Load(ctx context.Context, path string, store QuestionCreator, l *zap.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("seed: failed to open %s: %w", path, err)
	}
	defer f.Close()

	questions, err := Parse(f)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range questions {
		q := &questions[i]
		err = store.CreateQuestion(ctx, q)
		switch {
		case err == nil:
			created++
			l.Debug("question seeded", zap.Int64("question_id", q.ID))
		case errors.Is(err, models.ErrQuestionExists):
			l.Debug("question already exists", zap.Int64("question_id", q.ID))
		default:
			return created, fmt.Errorf("seed: failed to create question %d: %w", q.ID, err)
		}
	}
	l.Info("seed loaded", zap.String("path", path), zap.Int("created", created), zap.Int("total", len(questions)))
	return created, nil
}

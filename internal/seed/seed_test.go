package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaam8/polls/internal/models"
	"github.com/jaam8/polls/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const doc = `
questions:
  - id: 1
    text: "What's up?"
    pub_date: 2024-05-01T10:00:00Z
    choices:
      - id: 1
        text: Not much
      - id: 2
        text: The sky
  - id: 2
    text: Favourite colour?
    pub_date: 2024-05-02T10:00:00Z
    choices:
      - id: 3
        text: Red
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse(t *testing.T) {
	questions, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.Equal(t, "What's up?", questions[0].Text)
	assert.True(t, questions[0].PubDate.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	require.Len(t, questions[0].Choices, 2)
	assert.Equal(t, "The sky", questions[0].Choices[1].Text)
	assert.Equal(t, int64(0), questions[0].Choices[1].Votes)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "duplicate choice",
			content: "questions:\n  - id: 1\n    text: q\n    choices:\n      - {id: 1, text: a}\n      - {id: 1, text: b}\n",
			wantErr: models.ErrInvalidQuestion,
		},
		{
			name:    "missing id",
			content: "questions:\n  - text: q\n",
			wantErr: models.ErrInvalidQuestion,
		},
		{
			name:    "unknown field",
			content: "questions:\n  - id: 1\n    text: q\n    votes: 10\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.content))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	questions, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory(zap.NewNop())
	path := writeSeed(t, doc)

	created, err := Load(ctx, path, repo, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	_, err = repo.IncrementTally(ctx, 1, 2)
	require.NoError(t, err)

	created, err = Load(ctx, path, repo, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	c, err := repo.GetChoice(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Votes)
}

type brokenStore struct{}

func (brokenStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	return errors.New("connection refused")
}

func TestLoadStoreFailure(t *testing.T) {
	_, err := Load(context.Background(), writeSeed(t, doc), brokenStore{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), brokenStore{}, zap.NewNop())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

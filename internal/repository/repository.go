package repository

import (
	"context"
	"time"

	"github.com/jaam8/polls/internal/models"
)

// Store is the method set shared by every backend. GetChoice and
// IncrementTally report models.ErrChoiceNotFound for a choice owned by a
// different question.
type Store interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
	ListQuestions(ctx context.Context, now time.Time, limit int) ([]models.Question, error)
	GetQuestion(ctx context.Context, questionID int64) (*models.Question, error)
	GetChoice(ctx context.Context, questionID, choiceID int64) (*models.Choice, error)
	IncrementTally(ctx context.Context, questionID, choiceID int64) (int64, error)
	Close() error
}

var (
	_ Store = (*MemoryRepository)(nil)
	_ Store = (*TarantoolRepository)(nil)
	_ Store = (*RedisRepository)(nil)
	_ Store = (*SQLRepository)(nil)
)

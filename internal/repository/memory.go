package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaam8/polls/internal/models"
	"go.uber.org/zap"
)

type memoryQuestion struct {
	question models.Question
	choices  map[int64]*memoryChoice
	order    []int64
}

type memoryChoice struct {
	text  string
	votes atomic.Int64
}

// MemoryRepository keeps polls in process. The map lock only guards the
// poll structure; tallies are atomic so increments on different choices
// never block each other.
type MemoryRepository struct {
	mu        sync.RWMutex
	questions map[int64]*memoryQuestion
	l         *zap.Logger
}

func NewMemory(l *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		questions: make(map[int64]*memoryQuestion),
		l:         l,
	}
}

func (r *MemoryRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.questions[q.ID]; exists {
		r.l.Debug("question already exists", zap.Int64("question_id", q.ID))
		return models.ErrQuestionExists
	}
	entry := &memoryQuestion{
		question: models.Question{ID: q.ID, Text: q.Text, PubDate: q.PubDate},
		choices:  make(map[int64]*memoryChoice, len(q.Choices)),
	}
	for _, c := range q.Choices {
		entry.choices[c.ID] = &memoryChoice{text: c.Text}
		entry.order = append(entry.order, c.ID)
	}
	sort.Slice(entry.order, func(i, j int) bool { return entry.order[i] < entry.order[j] })
	r.questions[q.ID] = entry
	r.l.Debug("question created", zap.Int64("question_id", q.ID), zap.Int("choices", len(q.Choices)))
	return nil
}

func (r *MemoryRepository) ListQuestions(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.Question, 0, len(r.questions))
	for _, entry := range r.questions {
		if entry.question.PubDate.After(now) {
			continue
		}
		list = append(list, entry.question)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].PubDate.Equal(list[j].PubDate) {
			return list[i].ID > list[j].ID
		}
		return list[i].PubDate.After(list[j].PubDate)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *MemoryRepository) GetQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.questions[questionID]
	if !ok {
		r.l.Debug("question not found", zap.Int64("question_id", questionID))
		return nil, models.ErrQuestionNotFound
	}
	q := entry.question
	q.Choices = make([]models.Choice, 0, len(entry.order))
	for _, id := range entry.order {
		c := entry.choices[id]
		q.Choices = append(q.Choices, models.Choice{
			ID:         id,
			QuestionID: questionID,
			Text:       c.text,
			Votes:      c.votes.Load(),
		})
	}
	return &q, nil
}

func (r *MemoryRepository) GetChoice(ctx context.Context, questionID, choiceID int64) (*models.Choice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.lookupChoice(questionID, choiceID)
	if err != nil {
		return nil, err
	}
	return &models.Choice{
		ID:         choiceID,
		QuestionID: questionID,
		Text:       c.text,
		Votes:      c.votes.Load(),
	}, nil
}

func (r *MemoryRepository) IncrementTally(ctx context.Context, questionID, choiceID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.lookupChoice(questionID, choiceID)
	if err != nil {
		return 0, err
	}
	votes := c.votes.Add(1)
	r.l.Debug("tally incremented",
		zap.Int64("question_id", questionID),
		zap.Int64("choice_id", choiceID),
		zap.Int64("votes", votes))
	return votes, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

// lookupChoice must be called with r.mu held.
func (r *MemoryRepository) lookupChoice(questionID, choiceID int64) (*memoryChoice, error) {
	entry, ok := r.questions[questionID]
	if !ok {
		r.l.Debug("question not found", zap.Int64("question_id", questionID))
		return nil, models.ErrChoiceNotFound
	}
	c, ok := entry.choices[choiceID]
	if !ok {
		r.l.Debug("choice not found",
			zap.Int64("question_id", questionID),
			zap.Int64("choice_id", choiceID))
		return nil, models.ErrChoiceNotFound
	}
	return c, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaam8/polls/internal/models"
	"go.uber.org/zap"
)

const LatestQuestionsLimit = 5

type PollStore interface {
	ListQuestions(ctx context.Context, now time.Time, limit int) ([]models.Question, error)
	GetQuestion(ctx context.Context, questionID int64) (*models.Question, error)
	GetChoice(ctx context.Context, questionID, choiceID int64) (*models.Choice, error)
	IncrementTally(ctx context.Context, questionID, choiceID int64) (int64, error)
}

type PollService struct {
	r   PollStore
	l   *zap.Logger
	now func() time.Time
}

func New(r PollStore, l *zap.Logger) *PollService {
	return &PollService{
		r:   r,
		l:   l,
		now: time.Now,
	}
}

func (s *PollService) LatestQuestions(ctx context.Context) ([]models.Question, error) {
	questions, err := s.r.ListQuestions(ctx, s.now(), LatestQuestionsLimit)
	if err != nil {
		s.l.Error("failed to list questions", zap.Error(err))
		return nil, fmt.Errorf("service: failed to list questions: %w", err)
	}
	return questions, nil
}

func (s *PollService) GetQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	q, err := s.r.GetQuestion(ctx, questionID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrQuestionNotFound):
			return nil, err
		default:
			s.l.Error("failed to get question", zap.Int64("question_id", questionID), zap.Error(err))
			return nil, fmt.Errorf("service: failed to get question: %w", err)
		}
	}
	return q, nil
}

// Vote turns one submission into at most one tally increment.
//
// ErrQuestionNotFound and ErrNoChoiceSelected mean nothing was written; for
// the latter the returned result still carries the question so the form can
// be shown again. An error wrapping ErrPersistence means the store failed
// during the increment. It is never retried here, since the write may have
// landed before the failure was reported.
func (s *PollService) Vote(ctx context.Context, sub models.Submission) (*models.VoteResult, error) {
	q, err := s.GetQuestion(ctx, sub.QuestionID)
	if err != nil {
		return nil, err
	}
	result := &models.VoteResult{Question: q}

	if sub.ChoiceID == nil {
		s.l.Debug("no choice in submission", zap.Int64("question_id", q.ID))
		return result, models.ErrNoChoiceSelected
	}
	choiceID := *sub.ChoiceID
	result.ChoiceID = choiceID

	if _, err = s.r.GetChoice(ctx, q.ID, choiceID); err != nil {
		switch {
		case errors.Is(err, models.ErrChoiceNotFound):
			s.l.Debug("choice does not belong to question",
				zap.Int64("question_id", q.ID),
				zap.Int64("choice_id", choiceID))
			return result, models.ErrNoChoiceSelected
		default:
			s.l.Error("failed to get choice",
				zap.Int64("question_id", q.ID),
				zap.Int64("choice_id", choiceID),
				zap.Error(err))
			return nil, fmt.Errorf("service: failed to get choice: %w", err)
		}
	}

	// a request abandoned before the commit leaves no trace
	if err = ctx.Err(); err != nil {
		return nil, fmt.Errorf("service: vote abandoned: %w", err)
	}

	tally, err := s.r.IncrementTally(ctx, q.ID, choiceID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChoiceNotFound):
			return result, models.ErrNoChoiceSelected
		default:
			s.l.Error("failed to increment tally",
				zap.Int64("question_id", q.ID),
				zap.Int64("choice_id", choiceID),
				zap.Error(err))
			return nil, fmt.Errorf("service: %w: %w", models.ErrPersistence, err)
		}
	}
	result.Tally = tally

	s.l.Info("vote counted",
		zap.Int64("question_id", q.ID),
		zap.Int64("choice_id", choiceID),
		zap.Int64("votes", tally))
	return result, nil
}

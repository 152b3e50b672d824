package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaam8/polls/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedQuestions(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	questions := []models.Question{
		{ID: 1, Text: "What's up?", PubDate: baseTime.Add(-time.Hour), Choices: []models.Choice{
			{ID: 1, Text: "Not much"},
			{ID: 2, Text: "The sky"},
		}},
		{ID: 2, Text: "Favourite colour?", PubDate: baseTime.Add(-2 * time.Hour), Choices: []models.Choice{
			{ID: 3, Text: "Red"},
			{ID: 4, Text: "Blue"},
		}},
		{ID: 3, Text: "Coming soon", PubDate: baseTime.Add(time.Hour), Choices: []models.Choice{
			{ID: 1, Text: "Yes"},
		}},
	}
	for i := range questions {
		require.NoError(t, s.CreateQuestion(ctx, &questions[i]))
	}
}

// runStoreSuite checks the contract every backend must meet.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get question with choices", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		q, err := s.GetQuestion(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), q.ID)
		assert.Equal(t, "What's up?", q.Text)
		assert.True(t, q.PubDate.Equal(baseTime.Add(-time.Hour)))
		require.Len(t, q.Choices, 2)
		assert.Equal(t, int64(1), q.Choices[0].ID)
		assert.Equal(t, "Not much", q.Choices[0].Text)
		assert.Equal(t, int64(0), q.Choices[0].Votes)
		assert.Equal(t, int64(2), q.Choices[1].ID)
	})

	t.Run("question not found", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		_, err := s.GetQuestion(ctx, 9)
		assert.True(t, errors.Is(err, models.ErrQuestionNotFound), "got %v", err)
	})

	t.Run("duplicate question", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		err := s.CreateQuestion(ctx, &models.Question{ID: 1, Text: "again", PubDate: baseTime})
		assert.True(t, errors.Is(err, models.ErrQuestionExists), "got %v", err)
	})

	t.Run("choice lookup is scoped to its question", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		c, err := s.GetChoice(ctx, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, "Red", c.Text)
		assert.Equal(t, int64(2), c.QuestionID)

		_, err = s.GetChoice(ctx, 1, 3)
		assert.True(t, errors.Is(err, models.ErrChoiceNotFound), "got %v", err)

		_, err = s.GetChoice(ctx, 1, 42)
		assert.True(t, errors.Is(err, models.ErrChoiceNotFound), "got %v", err)

		_, err = s.GetChoice(ctx, 9, 1)
		assert.True(t, errors.Is(err, models.ErrChoiceNotFound), "got %v", err)
	})

	t.Run("increment returns new tally", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		votes, err := s.IncrementTally(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), votes)

		votes, err = s.IncrementTally(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), votes)

		c, err := s.GetChoice(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), c.Votes)
	})

	t.Run("increment of a foreign choice changes nothing", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		_, err := s.IncrementTally(ctx, 1, 3)
		assert.True(t, errors.Is(err, models.ErrChoiceNotFound), "got %v", err)
		_, err = s.IncrementTally(ctx, 9, 1)
		assert.True(t, errors.Is(err, models.ErrChoiceNotFound), "got %v", err)

		for _, qid := range []int64{1, 2} {
			q, err := s.GetQuestion(ctx, qid)
			require.NoError(t, err)
			assert.Equal(t, int64(0), q.TotalVotes())
		}
		_, err = s.GetChoice(ctx, 1, 3)
		assert.True(t, errors.Is(err, models.ErrChoiceNotFound), "increment must not create a choice")
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		const voters = 50
		var wg sync.WaitGroup
		errs := make(chan error, 2*voters)
		for i := 0; i < voters; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := s.IncrementTally(ctx, 1, 1)
				errs <- err
			}()
			go func() {
				defer wg.Done()
				_, err := s.IncrementTally(ctx, 1, 2)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		q, err := s.GetQuestion(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(voters), q.Choices[0].Votes)
		assert.Equal(t, int64(voters), q.Choices[1].Votes)

		other, err := s.GetQuestion(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(0), other.TotalVotes())
	})

	t.Run("list published questions newest first", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s)

		list, err := s.ListQuestions(ctx, baseTime, 5)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, int64(1), list[0].ID)
		assert.Equal(t, int64(2), list[1].ID)

		list, err = s.ListQuestions(ctx, baseTime, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, int64(1), list[0].ID)
	})

	t.Run("invalid question is rejected", func(t *testing.T) {
		s := newStore(t)

		err := s.CreateQuestion(ctx, &models.Question{ID: 0, Text: "x"})
		assert.True(t, errors.Is(err, models.ErrInvalidQuestion), "got %v", err)
	})
}

package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQuestionNotFound = errors.New("question is not found")
	ErrChoiceNotFound   = errors.New("choice is not found")
	ErrNoChoiceSelected = errors.New("you didn't select a choice")
	ErrPersistence      = errors.New("failed to persist vote")
	ErrQuestionExists   = errors.New("question already exists")
	ErrInvalidQuestion  = errors.New("question is invalid")
)

type Question struct {
	ID      int64     `json:"id"      yaml:"id"`
	Text    string    `json:"text"    yaml:"text"`
	PubDate time.Time `json:"pub_date" yaml:"pub_date"`
	Choices []Choice  `json:"choices" yaml:"choices"`
}

type Choice struct {
	ID         int64  `json:"id"          yaml:"id"`
	QuestionID int64  `json:"question_id" yaml:"-"`
	Text       string `json:"text"        yaml:"text"`
	// Votes only ever grows, and only through a store's IncrementTally.
	Votes int64 `json:"votes" yaml:"-"`
}

// Submission is a single vote form post. ChoiceID is nil when the choice
// field was missing or could not be parsed.
type Submission struct {
	QuestionID int64
	ChoiceID   *int64
}

type VoteResult struct {
	Question *Question
	ChoiceID int64
	Tally    int64
}

// Validate checks what every store relies on before persisting a question.
func (q *Question) Validate() error {
	if q.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidQuestion, q.ID)
	}
	if q.Text == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidQuestion)
	}
	seen := make(map[int64]struct{}, len(q.Choices))
	for _, c := range q.Choices {
		if c.ID <= 0 {
			return fmt.Errorf("%w: choice id must be positive, got %d", ErrInvalidQuestion, c.ID)
		}
		if c.Text == "" {
			return fmt.Errorf("%w: choice %d text is empty", ErrInvalidQuestion, c.ID)
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("%w: duplicate choice id %d", ErrInvalidQuestion, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// WasPublishedRecently reports whether the question went public within the
// last day. Questions dated in the future are not recent.
func (q *Question) WasPublishedRecently(now time.Time) bool {
	return !q.PubDate.After(now) && !q.PubDate.Before(now.Add(-24*time.Hour))
}

func (q *Question) Choice(id int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

func (q *Question) TotalVotes() int64 {
	var total int64
	for _, c := range q.Choices {
		total += c.Votes
	}
	return total
}

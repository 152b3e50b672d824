package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jaam8/polls/internal/models"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
)

const (
	questionsSpace = "questions"
	choicesSpace   = "choices"

	// defined in deploy/tarantool/init.lua
	createQuestionFunc = "create_question"

	// field numbers inside a choices tuple: {question_id, id, text, votes}
	choiceVotesField = 3

	// upper bound for a single unbounded select
	maxSelect = 1000
)

// tarantoolConn is the part of *tarantool.Connection the repository uses.
type tarantoolConn interface {
	Select(space, index interface{}, offset, limit, iterator uint32, key interface{}) (*tarantool.Response, error)
	Update(space, index interface{}, key, ops interface{}) (*tarantool.Response, error)
	Call17(functionName string, args interface{}) (*tarantool.Response, error)
}

type TarantoolRepository struct {
	db tarantoolConn
	l  *zap.Logger
}

func NewTarantool(db tarantoolConn, l *zap.Logger) *TarantoolRepository {
	return &TarantoolRepository{
		db: db,
		l:  l,
	}
}

func (r *TarantoolRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	r.l.Debug("creating question", zap.Any("question", q))

	choices := make([]interface{}, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, []interface{}{uint64(c.ID), c.Text})
	}

	// the question and its choices are inserted in one server-side transaction
	resp, err := r.db.Call17(createQuestionFunc,
		[]interface{}{uint64(q.ID), q.Text, q.PubDate.Unix(), choices})
	r.logResponse(resp)
	if err != nil {
		r.l.Debug("error creating question", zap.Int64("question_id", q.ID), zap.Error(err))
		return fmt.Errorf("repository: database call error: %w", err)
	}
	if len(resp.Data) == 0 {
		return fmt.Errorf("repository: %s returned nothing", createQuestionFunc)
	}
	created, ok := resp.Data[0].(bool)
	if !ok {
		return fmt.Errorf("repository: unexpected %s result %v", createQuestionFunc, resp.Data[0])
	}
	if !created {
		r.l.Debug("question already exists", zap.Int64("question_id", q.ID))
		return models.ErrQuestionExists
	}
	return nil
}

func (r *TarantoolRepository) ListQuestions(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	if limit <= 0 {
		limit = maxSelect
	}
	resp, err := r.db.Select(questionsSpace, "pub_date", 0, uint32(limit), tarantool.IterLe, []interface{}{now.Unix()})
	if err != nil {
		r.l.Debug("failed to select questions", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)

	questions := make([]models.Question, 0, len(resp.Data))
	for _, raw := range resp.Data {
		q, err := questionFromTuple(raw)
		if err != nil {
			r.l.Debug("unexpected question tuple", zap.Any("tuple", raw))
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, nil
}

func (r *TarantoolRepository) GetQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := r.db.Select(questionsSpace, "primary", 0, 1, tarantool.IterEq, []interface{}{uint64(questionID)})
	if err != nil {
		r.l.Debug("failed to select question", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)
	if len(resp.Data) == 0 {
		r.l.Debug("question not found", zap.Int64("question_id", questionID))
		return nil, models.ErrQuestionNotFound
	}
	q, err := questionFromTuple(resp.Data[0])
	if err != nil {
		r.l.Debug("unexpected question tuple", zap.Any("tuple", resp.Data[0]))
		return nil, err
	}

	resp, err = r.db.Select(choicesSpace, "primary", 0, maxSelect, tarantool.IterEq, []interface{}{uint64(questionID)})
	if err != nil {
		r.l.Debug("failed to select choices", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)
	q.Choices = make([]models.Choice, 0, len(resp.Data))
	for _, raw := range resp.Data {
		c, err := choiceFromTuple(raw)
		if err != nil {
			r.l.Debug("unexpected choice tuple", zap.Any("tuple", raw))
			return nil, err
		}
		q.Choices = append(q.Choices, *c)
	}
	return q, nil
}

func (r *TarantoolRepository) GetChoice(ctx context.Context, questionID, choiceID int64) (*models.Choice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := r.db.Select(choicesSpace, "primary", 0, 1, tarantool.IterEq,
		[]interface{}{uint64(questionID), uint64(choiceID)})
	if err != nil {
		r.l.Debug("failed to select choice", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)
	if len(resp.Data) == 0 {
		r.l.Debug("choice not found",
			zap.Int64("question_id", questionID),
			zap.Int64("choice_id", choiceID))
		return nil, models.ErrChoiceNotFound
	}
	return choiceFromTuple(resp.Data[0])
}

// IncrementTally issues one update with the "+" operator. Tarantool applies
// it to the tuple atomically and returns the updated tuple, or nothing when
// the key does not exist.
func (r *TarantoolRepository) IncrementTally(ctx context.Context, questionID, choiceID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp, err := r.db.Update(choicesSpace, "primary",
		[]interface{}{uint64(questionID), uint64(choiceID)},
		[]interface{}{[]interface{}{"+", choiceVotesField, 1}})
	if err != nil {
		r.l.Debug("failed to update votes", zap.Error(err))
		return 0, fmt.Errorf("repository: database update error: %w", err)
	}
	r.logResponse(resp)
	if len(resp.Data) == 0 {
		r.l.Debug("choice not found",
			zap.Int64("question_id", questionID),
			zap.Int64("choice_id", choiceID))
		return 0, models.ErrChoiceNotFound
	}
	c, err := choiceFromTuple(resp.Data[0])
	if err != nil {
		// the increment is already durable; only the echo is unreadable
		r.l.Error("unexpected choice tuple after update", zap.Any("tuple", resp.Data[0]))
		return 0, err
	}
	return c.Votes, nil
}

func (r *TarantoolRepository) Close() error {
	if closer, ok := r.db.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (r *TarantoolRepository) logResponse(resp *tarantool.Response) {
	if resp == nil {
		return
	}
	r.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.Any("resp", resp.Data),
		zap.String("error", resp.Error))
}

func questionFromTuple(raw interface{}) (*models.Question, error) {
	tuple, ok := raw.([]interface{})
	if !ok || len(tuple) < 3 {
		return nil, fmt.Errorf("repository: unexpected question tuple %v", raw)
	}
	id, err := toInt64(tuple[0])
	if err != nil {
		return nil, err
	}
	text, ok := tuple[1].(string)
	if !ok {
		return nil, fmt.Errorf("repository: unexpected type %T for question text", tuple[1])
	}
	pubDate, err := toInt64(tuple[2])
	if err != nil {
		return nil, err
	}
	return &models.Question{ID: id, Text: text, PubDate: time.Unix(pubDate, 0).UTC()}, nil
}

func choiceFromTuple(raw interface{}) (*models.Choice, error) {
	tuple, ok := raw.([]interface{})
	if !ok || len(tuple) < 4 {
		return nil, fmt.Errorf("repository: unexpected choice tuple %v", raw)
	}
	questionID, err := toInt64(tuple[0])
	if err != nil {
		return nil, err
	}
	id, err := toInt64(tuple[1])
	if err != nil {
		return nil, err
	}
	text, ok := tuple[2].(string)
	if !ok {
		return nil, fmt.Errorf("repository: unexpected type %T for choice text", tuple[2])
	}
	votes, err := toInt64(tuple[choiceVotesField])
	if err != nil {
		return nil, err
	}
	return &models.Choice{ID: id, QuestionID: questionID, Text: text, Votes: votes}, nil
}

// toInt64 normalizes the integer types msgpack may decode a field into.
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("repository: unexpected type %T for integer field", v)
	}
}

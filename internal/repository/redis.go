package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jaam8/polls/internal/models"
	"go.uber.org/zap"
)

const (
	questionsKey = "polls:questions"

	// incrementTallyScript returns -1 for a missing choice so HINCRBY never
	// creates one.
	incrementTallyScript = `
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return -1
		end
		return redis.call('HINCRBY', KEYS[1], 'votes', 1)
	`

	// createQuestionScript writes a question with all of its choices in one
	// step. A question counts as existing once it is in the questions index;
	// leftover keys without an index entry are cleared and rewritten.
	// KEYS: question hash, choices index, questions index.
	// ARGV: id, text, pub_date, then choice id and text pairs.
	createQuestionScript = `
		if redis.call('ZSCORE', KEYS[3], ARGV[1]) then
			return 0
		end
		for _, cid in ipairs(redis.call('ZRANGE', KEYS[2], 0, -1)) do
			redis.call('DEL', KEYS[1] .. ':choice:' .. cid)
		end
		redis.call('DEL', KEYS[1], KEYS[2])
		redis.call('HSET', KEYS[1], 'text', ARGV[2], 'pub_date', ARGV[3])
		for i = 4, #ARGV, 2 do
			redis.call('HSET', KEYS[1] .. ':choice:' .. ARGV[i], 'text', ARGV[i + 1], 'votes', 0)
			redis.call('ZADD', KEYS[2], ARGV[i], ARGV[i])
		end
		redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
		return 1
	`
)

func questionKey(questionID int64) string {
	return "polls:question:" + strconv.FormatInt(questionID, 10)
}

func choicesKey(questionID int64) string {
	return questionKey(questionID) + ":choices"
}

func choiceKey(questionID, choiceID int64) string {
	return questionKey(questionID) + ":choice:" + strconv.FormatInt(choiceID, 10)
}

type RedisRepository struct {
	client    *redis.Client
	create    *redis.Script
	increment *redis.Script
	l         *zap.Logger
}

func NewRedis(client *redis.Client, l *zap.Logger) *RedisRepository {
	return &RedisRepository{
		client:    client,
		create:    redis.NewScript(createQuestionScript),
		increment: redis.NewScript(incrementTallyScript),
		l:         l,
	}
}

func (r *RedisRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	r.l.Debug("creating question", zap.Any("question", q))

	args := make([]interface{}, 0, 3+2*len(q.Choices))
	args = append(args, q.ID, q.Text, q.PubDate.Unix())
	for _, c := range q.Choices {
		args = append(args, c.ID, c.Text)
	}
	keys := []string{questionKey(q.ID), choicesKey(q.ID), questionsKey}

	created, err := r.create.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		r.l.Debug("error creating question", zap.Error(err))
		return fmt.Errorf("repository: redis script error: %w", err)
	}
	if created == 0 {
		r.l.Debug("question already exists", zap.Int64("question_id", q.ID))
		return models.ErrQuestionExists
	}
	return nil
}

func (r *RedisRepository) ListQuestions(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := r.client.ZRevRangeByScore(ctx, questionsKey, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: redis zrevrangebyscore error: %w", err)
	}

	questions := make([]models.Question, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("repository: bad question id %q: %w", raw, err)
		}
		q, err := r.loadQuestion(ctx, id)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, nil
}

func (r *RedisRepository) GetQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	q, err := r.loadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	ids, err := r.client.ZRange(ctx, choicesKey(questionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: redis zrange error: %w", err)
	}
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, raw := range ids {
			cmds[i] = pipe.HGetAll(ctx, questionKey(questionID)+":choice:"+raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: redis pipeline error: %w", err)
	}

	q.Choices = make([]models.Choice, 0, len(ids))
	for i, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("repository: bad choice id %q: %w", raw, err)
		}
		c, err := choiceFromHash(questionID, id, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		q.Choices = append(q.Choices, *c)
	}
	return q, nil
}

func (r *RedisRepository) GetChoice(ctx context.Context, questionID, choiceID int64) (*models.Choice, error) {
	data, err := r.client.HGetAll(ctx, choiceKey(questionID, choiceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: redis hgetall error: %w", err)
	}
	if len(data) == 0 {
		r.l.Debug("choice not found",
			zap.Int64("question_id", questionID),
			zap.Int64("choice_id", choiceID))
		return nil, models.ErrChoiceNotFound
	}
	return choiceFromHash(questionID, choiceID, data)
}

func (r *RedisRepository) IncrementTally(ctx context.Context, questionID, choiceID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	votes, err := r.increment.Run(ctx, r.client, []string{choiceKey(questionID, choiceID)}).Int64()
	if err != nil {
		r.l.Debug("failed to increment votes", zap.Error(err))
		return 0, fmt.Errorf("repository: redis script error: %w", err)
	}
	if votes < 0 {
		r.l.Debug("choice not found",
			zap.Int64("question_id", questionID),
			zap.Int64("choice_id", choiceID))
		return 0, models.ErrChoiceNotFound
	}
	r.l.Debug("tally incremented",
		zap.Int64("question_id", questionID),
		zap.Int64("choice_id", choiceID),
		zap.Int64("votes", votes))
	return votes, nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) loadQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	data, err := r.client.HGetAll(ctx, questionKey(questionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("repository: redis hgetall error: %w", err)
	}
	// a hash without pub_date was never fully created
	if len(data) == 0 || data["pub_date"] == "" {
		r.l.Debug("question not found", zap.Int64("question_id", questionID))
		return nil, models.ErrQuestionNotFound
	}
	pubDate, err := strconv.ParseInt(data["pub_date"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("repository: bad pub_date for question %d: %w", questionID, err)
	}
	return &models.Question{
		ID:      questionID,
		Text:    data["text"],
		PubDate: time.Unix(pubDate, 0).UTC(),
	}, nil
}

func choiceFromHash(questionID, choiceID int64, data map[string]string) (*models.Choice, error) {
	votes, err := strconv.ParseInt(data["votes"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("repository: bad votes for choice %d: %w", choiceID, err)
	}
	return &models.Choice{
		ID:         choiceID,
		QuestionID: questionID,
		Text:       data["text"],
		Votes:      votes,
	}, nil
}

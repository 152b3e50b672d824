package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jaam8/polls/internal/models"
	"github.com/jaam8/polls/pkg/sqldb"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS question (
		id BIGINT PRIMARY KEY,
		question_text VARCHAR(200) NOT NULL,
		pub_date BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS choice (
		question_id BIGINT NOT NULL,
		id BIGINT NOT NULL,
		choice_text VARCHAR(200) NOT NULL,
		votes BIGINT NOT NULL DEFAULT 0 CHECK (votes >= 0),
		PRIMARY KEY (question_id, id),
		FOREIGN KEY (question_id) REFERENCES question(id) ON DELETE CASCADE
	)`,
}

// SQLRepository serves sqlite, postgres and mysql. Queries are written
// with ? placeholders and rebound for postgres.
type SQLRepository struct {
	db     *sql.DB
	driver string
	l      *zap.Logger
}

func NewSQL(db *sql.DB, driver string, l *zap.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		driver: driver,
		l:      l,
	}
}

// Migrate creates the tables. Safe to call multiple times.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: failed to create schema: %w", err)
		}
	}
	return nil
}

func (r *SQLRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	r.l.Debug("creating question", zap.Any("question", q))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.rebind(r.insertQuestionQuery()), q.ID, q.Text, q.PubDate.Unix())
	if err != nil {
		return fmt.Errorf("repository: database insert error: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to get insert result: %w", err)
	}
	if inserted == 0 {
		r.l.Debug("question already exists", zap.Int64("question_id", q.ID))
		return models.ErrQuestionExists
	}
	for _, c := range q.Choices {
		_, err = tx.ExecContext(ctx,
			r.rebind(`INSERT INTO choice (question_id, id, choice_text, votes) VALUES (?, ?, ?, 0)`),
			q.ID, c.ID, c.Text)
		if err != nil {
			return fmt.Errorf("repository: database insert error: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLRepository) ListQuestions(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	if limit <= 0 {
		limit = maxSelect
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, question_text, pub_date FROM question
		WHERE pub_date <= ?
		ORDER BY pub_date DESC, id DESC
		LIMIT ?`), now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var (
			q       models.Question
			pubDate int64
		)
		if err := rows.Scan(&q.ID, &q.Text, &pubDate); err != nil {
			return nil, fmt.Errorf("repository: failed to scan question: %w", err)
		}
		q.PubDate = time.Unix(pubDate, 0).UTC()
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed to iterate questions: %w", err)
	}
	return questions, nil
}

func (r *SQLRepository) GetQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	var (
		q       models.Question
		pubDate int64
	)
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT id, question_text, pub_date FROM question WHERE id = ?`), questionID).
		Scan(&q.ID, &q.Text, &pubDate)
	if errors.Is(err, sql.ErrNoRows) {
		r.l.Debug("question not found", zap.Int64("question_id", questionID))
		return nil, models.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	q.PubDate = time.Unix(pubDate, 0).UTC()

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, choice_text, votes FROM choice
		WHERE question_id = ?
		ORDER BY id`), questionID)
	if err != nil {
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	defer rows.Close()

	q.Choices = []models.Choice{}
	for rows.Next() {
		c := models.Choice{QuestionID: questionID}
		if err := rows.Scan(&c.ID, &c.Text, &c.Votes); err != nil {
			return nil, fmt.Errorf("repository: failed to scan choice: %w", err)
		}
		q.Choices = append(q.Choices, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed to iterate choices: %w", err)
	}
	return &q, nil
}

func (r *SQLRepository) GetChoice(ctx context.Context, questionID, choiceID int64) (*models.Choice, error) {
	c := models.Choice{ID: choiceID, QuestionID: questionID}
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT choice_text, votes FROM choice WHERE question_id = ? AND id = ?`),
		questionID, choiceID).Scan(&c.Text, &c.Votes)
	if errors.Is(err, sql.ErrNoRows) {
		r.l.Debug("choice not found",
			zap.Int64("question_id", questionID),
			zap.Int64("choice_id", choiceID))
		return nil, models.ErrChoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	return &c, nil
}

// IncrementTally updates in place and reads the value back inside the same
// transaction. The row lock taken by UPDATE serializes concurrent voters,
// and a cancelled ctx rolls the transaction back.
func (r *SQLRepository) IncrementTally(ctx context.Context, questionID, choiceID int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		r.rebind(`UPDATE choice SET votes = votes + 1 WHERE question_id = ? AND id = ?`),
		questionID, choiceID)
	if err != nil {
		r.l.Debug("failed to update votes", zap.Error(err))
		return 0, fmt.Errorf("repository: database update error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: failed to get update result: %w", err)
	}
	if affected == 0 {
		r.l.Debug("choice not found",
			zap.Int64("question_id", questionID),
			zap.Int64("choice_id", choiceID))
		return 0, models.ErrChoiceNotFound
	}

	var votes int64
	err = tx.QueryRowContext(ctx,
		r.rebind(`SELECT votes FROM choice WHERE question_id = ? AND id = ?`),
		questionID, choiceID).Scan(&votes)
	if err != nil {
		return 0, fmt.Errorf("repository: database select error: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	r.l.Debug("tally incremented",
		zap.Int64("question_id", questionID),
		zap.Int64("choice_id", choiceID),
		zap.Int64("votes", votes))
	return votes, nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// insertQuestionQuery skips an existing id instead of failing, so a
// concurrent create of the same question is reported by RowsAffected.
func (r *SQLRepository) insertQuestionQuery() string {
	if r.driver == sqldb.DriverMySQL {
		return `INSERT IGNORE INTO question (id, question_text, pub_date) VALUES (?, ?, ?)`
	}
	return `INSERT INTO question (id, question_text, pub_date) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`
}

func (r *SQLRepository) rebind(query string) string {
	if r.driver != sqldb.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jaam8/polls/internal/models"
	"github.com/jaam8/polls/pkg/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteRepository(t *testing.T) *SQLRepository {
	t.Helper()

	db, err := sqldb.New(context.Background(), sqldb.Config{
		Driver: sqldb.DriverSQLite,
		DSN:    "file::memory:?_pragma=foreign_keys(1)",
	})
	require.NoError(t, err)

	r := NewSQL(db, sqldb.DriverSQLite, zap.NewNop())
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Migrate(context.Background()))
	return r
}

func TestSQLRepository(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return newSQLiteRepository(t)
	})
}

func TestSQLMigrateIsIdempotent(t *testing.T) {
	r := newSQLiteRepository(t)
	assert.NoError(t, r.Migrate(context.Background()))
}

func TestSQLIncrementCancelled(t *testing.T) {
	r := newSQLiteRepository(t)
	seedQuestions(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.IncrementTally(ctx, 1, 1)
	assert.Error(t, err)

	c, err := r.GetChoice(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Votes)
}

func TestSQLDeleteQuestionCascades(t *testing.T) {
	r := newSQLiteRepository(t)
	seedQuestions(t, r)

	_, err := r.db.Exec(`DELETE FROM question WHERE id = 1`)
	require.NoError(t, err)

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM choice WHERE question_id = 1`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: sqldb.DriverPostgres}
	assert.Equal(t,
		"UPDATE choice SET votes = votes + 1 WHERE question_id = $1 AND id = $2",
		pg.rebind("UPDATE choice SET votes = votes + 1 WHERE question_id = ? AND id = ?"))

	my := &SQLRepository{driver: sqldb.DriverMySQL}
	assert.Equal(t, "SELECT ? ", my.rebind("SELECT ? "))
}

func TestSQLCreateQuestionLosingRace(t *testing.T) {
	r := newSQLiteRepository(t)
	ctx := context.Background()

	// the row another writer committed after this writer started
	_, err := r.db.Exec(`INSERT INTO question (id, question_text, pub_date) VALUES (5, 'winner', 0)`)
	require.NoError(t, err)

	err = r.CreateQuestion(ctx, &models.Question{
		ID: 5, Text: "loser", PubDate: time.Unix(0, 0),
		Choices: []models.Choice{{ID: 1, Text: "a"}},
	})
	assert.ErrorIs(t, err, models.ErrQuestionExists)

	q, err := r.GetQuestion(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "winner", q.Text)
	assert.Empty(t, q.Choices)
}

func TestSQLConcurrentCreateSameQuestion(t *testing.T) {
	r := newSQLiteRepository(t)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.CreateQuestion(context.Background(), &models.Question{
				ID: 9, Text: "Q9", PubDate: time.Unix(0, 0),
				Choices: []models.Choice{{ID: 1, Text: "a"}},
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, models.ErrQuestionExists)
	}
	assert.Equal(t, 1, created)
}

func TestInsertQuestionQuery(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{driver: sqldb.DriverSQLite, want: "INSERT INTO question (id, question_text, pub_date) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING"},
		{driver: sqldb.DriverPostgres, want: "INSERT INTO question (id, question_text, pub_date) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING"},
		{driver: sqldb.DriverMySQL, want: "INSERT IGNORE INTO question (id, question_text, pub_date) VALUES (?, ?, ?)"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			r := &SQLRepository{driver: tt.driver}
			assert.Equal(t, tt.want, r.rebind(r.insertQuestionQuery()))
		})
	}
}

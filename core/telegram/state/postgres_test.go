package state

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return NewPostgresStore(sqlx.NewDb(raw, "postgres")), mock
}

var sessionColumns = []string{"id", "name", "account_id", "step", "data", "created_at", "updated_at"}

func TestPostgresFindOrCreate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO executing_commands`)).
		WithArgs("issue", int64(7), int(StepFirst)).
		WillReturnResult(sqlmock.NewResult(11, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM executing_commands WHERE name = $1 AND account_id = $2`)).
		WithArgs("issue", int64(7)).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(11, "issue", 7, 3, []byte(`{"issue_id":"42"}`), now, now))

	s, err := store.FindOrCreate(context.Background(), "issue", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(11), s.ID)
	assert.Equal(t, Step(3), s.Step)
	assert.Equal(t, "42", s.Data["issue_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM executing_commands`)).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := store.Find(context.Background(), "issue", 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPostgresSaveDetectsRegression(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE executing_commands`)).
		WithArgs(2, `{"issue_id":"42"}`, "issue", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM executing_commands`)).
		WithArgs("issue", int64(3)).
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(1, "issue", 3, 4, []byte(`{}`), now, now))

	err := store.Save(context.Background(), &Session{Command: "issue", AccountID: 3, Step: 2, Data: map[string]string{"issue_id": "42"}})
	assert.ErrorIs(t, err, ErrStepRegression)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveAdvances(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE executing_commands`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), &Session{Command: "issue", AccountID: 3, Step: 4, Data: map[string]string{}})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteAllAndActive(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM executing_commands WHERE account_id = $1`)).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM executing_commands`)).
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("report").AddRow("issue"))

	n, err := store.DeleteAll(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err := store.Active(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"report", "issue"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

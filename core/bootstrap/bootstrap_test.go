package bootstrap

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/issuebot/core/config"
	coredatabase "github.com/m3rciful/issuebot/core/database"
)

func TestRunOrder(t *testing.T) {
	var steps []string
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	res, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { steps = append(steps, "logger"); return nil },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			steps = append(steps, "connect")
			return sqlx.NewDb(raw, "postgres"), nil
		},
		Migrate: func(coredatabase.Config) error { steps = append(steps, "migrate"); return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"logger", "connect", "migrate"}, steps)
	require.NoError(t, res.DB.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunClosesDatabaseWhenMigrationsFail(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	boom := errors.New("dirty schema")

	_, err = Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Connect:    func(coredatabase.Config) (*sqlx.DB, error) { return sqlx.NewDb(raw, "postgres"), nil },
		Migrate:    func(coredatabase.Config) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(Options{})
	assert.Error(t, err)
}

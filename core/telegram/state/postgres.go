package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/issuebot/core/logger"
)

type sessionRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	AccountID int64     `db:"account_id"`
	Step      int       `db:"step"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r sessionRow) session() (*Session, error) {
	data := make(map[string]string)
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, fmt.Errorf("state: decode session %d data: %w", r.ID, err)
		}
	}
	return &Session{
		ID:        r.ID,
		Command:   r.Name,
		AccountID: r.AccountID,
		Step:      Step(r.Step),
		Data:      data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

const selectSession = `SELECT id, name, account_id, step, data, created_at, updated_at
FROM executing_commands WHERE name = $1 AND account_id = $2`

// PostgresStore keeps sessions in the executing_commands table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindOrCreate inserts the session only when absent, so concurrent callers converge on one row.
func (p *PostgresStore) FindOrCreate(ctx context.Context, command string, accountID int64) (*Session, error) {
	res, err := p.db.ExecContext(ctx, `INSERT INTO executing_commands (name, account_id, step, data)
VALUES ($1, $2, $3, '{}'::jsonb)
ON CONFLICT (name, account_id) DO NOTHING`, command, accountID, int(StepFirst))
	if err != nil {
		return nil, fmt.Errorf("state: create session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Debug(ctx, logger.CompSessions, "session.created",
			slog.String("command", command),
			slog.Int64("account_id", accountID),
		)
	}
	return p.Find(ctx, command, accountID)
}

// Find loads the live session.
func (p *PostgresStore) Find(ctx context.Context, command string, accountID int64) (*Session, error) {
	var row sessionRow
	if err := p.db.GetContext(ctx, &row, selectSession, command, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("state: find session: %w", err)
	}
	return row.session()
}

// Save updates step and data; the step guard lives in the WHERE clause.
func (p *PostgresStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return ErrSessionNotFound
	}
	data, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("state: encode session data: %w", err)
	}
	res, err := p.db.ExecContext(ctx, `UPDATE executing_commands
SET step = $1, data = $2, updated_at = now()
WHERE name = $3 AND account_id = $4 AND step <= $1`,
		int(s.Step), string(data), s.Command, s.AccountID)
	if err != nil {
		return fmt.Errorf("state: save session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := p.Find(ctx, s.Command, s.AccountID); err != nil {
		return err
	}
	return ErrStepRegression
}

// Delete removes the session if present.
func (p *PostgresStore) Delete(ctx context.Context, command string, accountID int64) error {
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM executing_commands WHERE name = $1 AND account_id = $2`, command, accountID); err != nil {
		return fmt.Errorf("state: delete session: %w", err)
	}
	return nil
}

// DeleteAll removes every session of the account.
func (p *PostgresStore) DeleteAll(ctx context.Context, accountID int64) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM executing_commands WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("state: delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("state: delete sessions: %w", err)
	}
	return int(n), nil
}

// Active lists live commands of the account, most recently updated first.
func (p *PostgresStore) Active(ctx context.Context, accountID int64) ([]string, error) {
	var names []string
	if err := p.db.SelectContext(ctx, &names, `SELECT name FROM executing_commands
WHERE account_id = $1 ORDER BY updated_at DESC, id DESC`, accountID); err != nil {
		return nil, fmt.Errorf("state: list sessions: %w", err)
	}
	return names, nil
}

var _ Store = (*PostgresStore)(nil)

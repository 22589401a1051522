package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/m3rciful/issuebot/core/logger"
)

// SaveChanges applies changes to the issue and records them in one journal,
// all inside a single transaction. authorID 0 stores an anonymous author.
func (s *Store) SaveChanges(ctx context.Context, issueID, authorID int64, changes []Change, notes string) (Journal, error) {
	for _, ch := range changes {
		if col, ok := Column(ch.Attribute); !ok || col != ch.Column {
			return Journal{}, fmt.Errorf("tracker: attribute %q is not writable", ch.Attribute)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Journal{}, fmt.Errorf("tracker: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ch := range changes {
		// Column is validated against the whitelist above.
		res, err := tx.ExecContext(ctx,
			`UPDATE issues SET `+ch.Column+` = $1, updated_on = now() WHERE id = $2`, ch.Value, issueID)
		if err != nil {
			return Journal{}, fmt.Errorf("tracker: update issue %d %s: %w", issueID, ch.Column, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Journal{}, fmt.Errorf("tracker: update issue %d: %w", issueID, ErrNotFound)
		}
	}

	author := sql.NullInt64{Int64: authorID, Valid: authorID != 0}
	j := Journal{IssueID: issueID, UserID: authorID, Notes: notes}
	if err := tx.QueryRowxContext(ctx, `INSERT INTO journals (issue_id, user_id, notes)
VALUES ($1, $2, $3) RETURNING id, created_on`, issueID, author, notes).Scan(&j.ID, &j.CreatedOn); err != nil {
		return Journal{}, fmt.Errorf("tracker: insert journal: %w", err)
	}

	for _, ch := range changes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO journal_details (journal_id, property, prop_key, old_value, value)
VALUES ($1, 'attr', $2, $3, $4)`, j.ID, ch.Column, ch.Old, ch.New); err != nil {
			return Journal{}, fmt.Errorf("tracker: insert journal detail: %w", err)
		}
		j.Details = append(j.Details, Detail{
			Property: "attr",
			Field:    ch.Attribute,
			OldValue: ch.Old,
			NewValue: ch.New,
			OldLabel: ch.OldLabel,
			NewLabel: ch.NewLabel,
		})
	}

	if err := tx.Commit(); err != nil {
		return Journal{}, fmt.Errorf("tracker: commit: %w", err)
	}
	logger.Debug(ctx, logger.CompDB, "journal.saved",
		slog.Int64("issue_id", issueID),
		slog.Int("count", len(j.Details)),
	)
	return j, nil
}

// AddNote records a journal carrying only notes.
func (s *Store) AddNote(ctx context.Context, issueID, authorID int64, notes string) (Journal, error) {
	return s.SaveChanges(ctx, issueID, authorID, nil, notes)
}

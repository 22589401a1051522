package tracker

import (
	"context"
	"fmt"
)

const groupColumns = `id, issue_id, telegram_id, created_at`

// GroupForIssue returns the Telegram group linked to an issue.
func (s *Store) GroupForIssue(ctx context.Context, issueID int64) (Group, error) {
	var g Group
	if err := s.get(ctx, &g, `SELECT `+groupColumns+` FROM telegram_groups WHERE issue_id = $1`, issueID); err != nil {
		return Group{}, fmt.Errorf("tracker: group for issue %d: %w", issueID, err)
	}
	return g, nil
}

// Groups lists every linked Telegram group.
func (s *Store) Groups(ctx context.Context) ([]Group, error) {
	var out []Group
	if err := s.db.SelectContext(ctx, &out, `SELECT `+groupColumns+` FROM telegram_groups ORDER BY id`); err != nil {
		return nil, fmt.Errorf("tracker: list groups: %w", err)
	}
	return out, nil
}

// DeleteGroup removes the link between an issue and its group.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM telegram_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("tracker: delete group %d: %w", id, err)
	}
	return nil
}

// ArchiveMessage stores a chat message in the issue's archive.
func (s *Store) ArchiveMessage(ctx context.Context, m ArchivedMessage) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO telegram_messages
(issue_id, sent_at, message, from_first_name, from_last_name)
VALUES ($1, $2, $3, $4, $5)`, m.IssueID, m.SentAt, m.Text, m.FromFirstName, m.FromLastName)
	if err != nil {
		return fmt.Errorf("tracker: archive message: %w", err)
	}
	return nil
}

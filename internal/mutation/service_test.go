package mutation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/issuebot/internal/tracker"
	"github.com/m3rciful/issuebot/internal/tracker/trackertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Service, *trackertest.Fake, tracker.Issue, tracker.User) {
	t.Helper()
	fake := trackertest.Seed()
	issue, err := fake.Issue(context.Background(), trackertest.LoginIssue)
	require.NoError(t, err)
	return NewService(fake), fake, issue, fake.Users[trackertest.Alice]
}

func TestApplyRelationalAttributes(t *testing.T) {
	tests := []struct {
		attr     string
		raw      string
		oldLabel string
		newLabel string
		check    func(t *testing.T, is tracker.Issue)
	}{
		{tracker.AttrProject, "Mobile", "Backend", "Mobile", func(t *testing.T, is tracker.Issue) {
			assert.Equal(t, trackertest.Mobile, is.ProjectID)
		}},
		{tracker.AttrTracker, "Feature", "Bug", "Feature", func(t *testing.T, is tracker.Issue) {
			assert.Equal(t, trackertest.Feature, is.TrackerID)
		}},
		{tracker.AttrStatus, "In Progress", "New", "In Progress", func(t *testing.T, is tracker.Issue) {
			assert.Equal(t, trackertest.InProgress, is.StatusID)
		}},
		{tracker.AttrPriority, "High", "Normal", "High", func(t *testing.T, is tracker.Issue) {
			assert.Equal(t, trackertest.High, is.PriorityID)
		}},
		{tracker.AttrAssignedTo, "bob", "Alice Doe", "Bob", func(t *testing.T, is tracker.Issue) {
			require.NotNil(t, is.AssignedToID)
			assert.Equal(t, trackertest.Bob, *is.AssignedToID)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			svc, fake, issue, alice := setup(t)
			j, err := svc.Apply(context.Background(), issue, alice, tt.attr, tt.raw)
			require.NoError(t, err)
			require.Len(t, j.Details, 1)
			assert.Equal(t, tt.attr, j.Details[0].Field)
			assert.Equal(t, tt.oldLabel, j.Details[0].OldLabel)
			assert.Equal(t, tt.newLabel, j.Details[0].NewLabel)
			assert.Equal(t, alice.ID, j.UserID)
			tt.check(t, fake.Issues[trackertest.LoginIssue])
		})
	}
}

func TestApplyFreeTextAttributes(t *testing.T) {
	svc, fake, issue, alice := setup(t)
	ctx := context.Background()

	j, err := svc.Apply(ctx, issue, alice, tracker.AttrSubject, "  Fix login on Safari ")
	require.NoError(t, err)
	require.False(t, j.Empty())
	assert.Equal(t, "Fix login on Safari", fake.Issues[issue.ID].Subject)

	j, err = svc.Apply(ctx, issue, alice, tracker.AttrStartDate, "01.03.2024")
	require.NoError(t, err)
	require.False(t, j.Empty())
	assert.Equal(t, "2024-03-01", j.Details[0].NewLabel)
	issue = fake.Issues[issue.ID]

	j, err = svc.Apply(ctx, issue, alice, tracker.AttrDueDate, "2024-03-10")
	require.NoError(t, err)
	require.False(t, j.Empty())
	issue = fake.Issues[issue.ID]

	j, err = svc.Apply(ctx, issue, alice, tracker.AttrEstimatedHours, "2,5")
	require.NoError(t, err)
	require.False(t, j.Empty())
	require.NotNil(t, fake.Issues[issue.ID].EstimatedHours)
	assert.Equal(t, 2.5, *fake.Issues[issue.ID].EstimatedHours)

	j, err = svc.Apply(ctx, issue, alice, tracker.AttrDoneRatio, "40%")
	require.NoError(t, err)
	require.False(t, j.Empty())
	assert.Equal(t, 40, fake.Issues[issue.ID].DoneRatio)
}

func TestApplyClearsNullable(t *testing.T) {
	svc, fake, issue, alice := setup(t)
	h := 3.0
	issue.EstimatedHours = &h
	fake.Issues[issue.ID] = issue

	j, err := svc.Apply(context.Background(), issue, alice, tracker.AttrEstimatedHours, "-")
	require.NoError(t, err)
	require.Len(t, j.Details, 1)
	assert.Equal(t, "3", j.Details[0].OldLabel)
	assert.Equal(t, "", j.Details[0].NewLabel)
	assert.Nil(t, fake.Issues[issue.ID].EstimatedHours)
}

func TestApplyRejectsWithEmptyJournal(t *testing.T) {
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		attr string
		raw  string
	}{
		{"unknown project", tracker.AttrProject, "Secret"},
		{"same project", tracker.AttrProject, "Backend"},
		{"tracker not on project", tracker.AttrTracker, "Support"},
		{"unreachable status", tracker.AttrStatus, "Closed"},
		{"same status", tracker.AttrStatus, "New"},
		{"inactive priority", tracker.AttrPriority, "Legacy"},
		{"not assignable", tracker.AttrAssignedTo, "carol"},
		{"same assignee", tracker.AttrAssignedTo, "alice"},
		{"empty subject", tracker.AttrSubject, "   "},
		{"same subject", tracker.AttrSubject, "Fix login"},
		{"bad date", tracker.AttrStartDate, "someday"},
		{"start after due", tracker.AttrStartDate, "2024-03-11"},
		{"negative hours", tracker.AttrEstimatedHours, "-2"},
		{"ratio too big", tracker.AttrDoneRatio, "120"},
		{"ratio unchanged", tracker.AttrDoneRatio, "0"},
		{"chat name is not an issue field", tracker.AttrSubjectChat, "New chat"},
		{"unknown attribute", "description", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, fake, issue, alice := setup(t)
			issue.DueDate = &due
			fake.Issues[issue.ID] = issue

			j, err := svc.Apply(context.Background(), issue, alice, tt.attr, tt.raw)
			require.NoError(t, err)
			assert.True(t, j.Empty())
			assert.Empty(t, fake.Journals)
		})
	}
}

func TestApplyRequiresEditPermission(t *testing.T) {
	svc, fake, _, _ := setup(t)
	mobile := fake.Issues[trackertest.MobileIssue]

	j, err := svc.Apply(context.Background(), mobile, fake.Users[trackertest.Alice], tracker.AttrSubject, "Light mode")
	require.NoError(t, err)
	assert.True(t, j.Empty())

	j, err = svc.Apply(context.Background(), mobile, fake.Users[trackertest.Admin], tracker.AttrSubject, "Light mode")
	require.NoError(t, err)
	assert.False(t, j.Empty())
}

func TestApplyPropagatesInfrastructureErrors(t *testing.T) {
	svc, fake, issue, alice := setup(t)
	fake.SaveErr = errors.New("deadlock")

	_, err := svc.Apply(context.Background(), issue, alice, tracker.AttrSubject, "New subject")
	assert.ErrorIs(t, err, fake.SaveErr)
	assert.Equal(t, "Fix login", fake.Issues[issue.ID].Subject)
}

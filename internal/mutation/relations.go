package mutation

import (
	"context"
	"slices"
	"strconv"

	"github.com/m3rciful/issuebot/internal/tracker"
)

func idChange(attr string, oldID, newID int64, oldLabel, newLabel string) tracker.Change {
	col, _ := tracker.Column(attr)
	return tracker.Change{
		Attribute: attr,
		Column:    col,
		Value:     newID,
		Old:       strconv.FormatInt(oldID, 10),
		New:       strconv.FormatInt(newID, 10),
		OldLabel:  oldLabel,
		NewLabel:  newLabel,
	}
}

func (s *Service) projectChange(ctx context.Context, issue tracker.Issue, user tracker.User, raw string) (tracker.Change, rejection, error) {
	candidates, err := s.repo.AllowedTargetProjects(ctx, user, issue)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	i := slices.IndexFunc(candidates, func(p tracker.Project) bool { return p.Name == raw })
	if i < 0 {
		return tracker.Change{}, rejectInvalid, nil
	}
	target := candidates[i]
	if target.ID == issue.ProjectID {
		return tracker.Change{}, rejectUnchanged, nil
	}
	// The issue keeps its tracker, so the target must offer it.
	trackers, err := s.repo.ProjectTrackers(ctx, target.ID)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	if !slices.ContainsFunc(trackers, func(t tracker.Tracker) bool { return t.ID == issue.TrackerID }) {
		return tracker.Change{}, rejectInvalid, nil
	}
	current, err := s.repo.Project(ctx, issue.ProjectID)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	return idChange(tracker.AttrProject, issue.ProjectID, target.ID, current.Name, target.Name), rejectNone, nil
}

func (s *Service) trackerChange(ctx context.Context, issue tracker.Issue, raw string) (tracker.Change, rejection, error) {
	candidates, err := s.repo.ProjectTrackers(ctx, issue.ProjectID)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	i := slices.IndexFunc(candidates, func(t tracker.Tracker) bool { return t.Name == raw })
	if i < 0 {
		return tracker.Change{}, rejectInvalid, nil
	}
	target := candidates[i]
	if target.ID == issue.TrackerID {
		return tracker.Change{}, rejectUnchanged, nil
	}
	current, err := s.repo.Tracker(ctx, issue.TrackerID)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	return idChange(tracker.AttrTracker, issue.TrackerID, target.ID, current.Name, target.Name), rejectNone, nil
}

func (s *Service) statusChange(ctx context.Context, issue tracker.Issue, user tracker.User, raw string) (tracker.Change, rejection, error) {
	candidates, err := s.repo.AllowedStatuses(ctx, user, issue)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	i := slices.IndexFunc(candidates, func(st tracker.Status) bool { return st.Name == raw })
	if i < 0 {
		return tracker.Change{}, rejectInvalid, nil
	}
	target := candidates[i]
	if target.ID == issue.StatusID {
		return tracker.Change{}, rejectUnchanged, nil
	}
	current, err := s.repo.Status(ctx, issue.StatusID)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	return idChange(tracker.AttrStatus, issue.StatusID, target.ID, current.Name, target.Name), rejectNone, nil
}

func (s *Service) priorityChange(ctx context.Context, issue tracker.Issue, raw string) (tracker.Change, rejection, error) {
	candidates, err := s.repo.ActivePriorities(ctx)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	i := slices.IndexFunc(candidates, func(p tracker.Priority) bool { return p.Name == raw })
	if i < 0 {
		return tracker.Change{}, rejectInvalid, nil
	}
	target := candidates[i]
	if target.ID == issue.PriorityID {
		return tracker.Change{}, rejectUnchanged, nil
	}
	current, err := s.repo.Priority(ctx, issue.PriorityID)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	return idChange(tracker.AttrPriority, issue.PriorityID, target.ID, current.Name, target.Name), rejectNone, nil
}

func (s *Service) assigneeChange(ctx context.Context, issue tracker.Issue, raw string) (tracker.Change, rejection, error) {
	candidates, err := s.repo.AssignableUsers(ctx, issue.ProjectID)
	if err != nil {
		return tracker.Change{}, rejectNone, err
	}
	i := slices.IndexFunc(candidates, func(u tracker.User) bool { return u.Login == raw })
	if i < 0 {
		return tracker.Change{}, rejectInvalid, nil
	}
	target := candidates[i]
	if issue.AssignedToID != nil && *issue.AssignedToID == target.ID {
		return tracker.Change{}, rejectUnchanged, nil
	}

	var old, oldLabel string
	if issue.AssignedToID != nil {
		current, err := s.repo.User(ctx, *issue.AssignedToID)
		if err != nil {
			return tracker.Change{}, rejectNone, err
		}
		old = strconv.FormatInt(current.ID, 10)
		oldLabel = current.Name()
	}
	col, _ := tracker.Column(tracker.AttrAssignedTo)
	id := target.ID
	return tracker.Change{
		Attribute: tracker.AttrAssignedTo,
		Column:    col,
		Value:     &id,
		Old:       old,
		New:       strconv.FormatInt(id, 10),
		OldLabel:  oldLabel,
		NewLabel:  target.Name(),
	}, rejectNone, nil
}

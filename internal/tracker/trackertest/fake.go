// Package trackertest provides an in-memory tracker for tests.
package trackertest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/issuebot/internal/tracker"
)

// Well-known ids of the Seed world.
const (
	Alice int64 = 1 // member of Backend (edit) and Mobile (view)
	Bob   int64 = 2 // assignable on Backend
	Carol int64 = 3 // locked
	Admin int64 = 4

	AliceTelegram int64 = 100
	CarolTelegram int64 = 300
	AdminTelegram int64 = 400

	AliceAccount int64 = 10
	CarolAccount int64 = 30
	AdminAccount int64 = 40

	Backend int64 = 1
	Mobile  int64 = 2
	Secret  int64 = 3
	Archive int64 = 4

	Bug     int64 = 1
	Feature int64 = 2
	Support int64 = 3

	New        int64 = 1
	InProgress int64 = 2
	Resolved   int64 = 3
	Closed     int64 = 5

	Low    int64 = 1
	Normal int64 = 2
	High   int64 = 3
	Legacy int64 = 4

	LoginIssue  int64 = 42
	ClosedIssue int64 = 43
	MobileIssue int64 = 44
	SecretIssue int64 = 45

	LoginGroupChat int64 = -1001234
)

// Fake implements every tracker repository method in memory.
type Fake struct {
	mu sync.Mutex

	Users       map[int64]tracker.User
	AccountList []tracker.Account
	Projects    map[int64]tracker.Project
	// Permissions maps project -> user -> permissions; any entry makes the user a member.
	Permissions       map[int64]map[int64][]string
	Trackers          map[int64]tracker.Tracker
	ProjectTrackerIDs map[int64][]int64
	Statuses          []tracker.Status
	// Transitions maps old status -> reachable statuses for non-admin members.
	Transitions   map[int64][]int64
	Priorities    []tracker.Priority
	Issues        map[int64]tracker.Issue
	Assignable    map[int64][]int64
	GroupsByIssue map[int64]tracker.Group
	Journals      []tracker.Journal
	Archived      []tracker.ArchivedMessage

	// Err, when set, is returned by every call.
	Err error
	// SaveErr, when set, is returned by SaveChanges.
	SaveErr error

	nextJournal int64
}

// Seed returns a Fake populated with a small tracker.
func Seed() *Fake {
	now := time.Now()
	assignee := Alice
	return &Fake{
		Users: map[int64]tracker.User{
			Alice: {ID: Alice, Login: "alice", Firstname: "Alice", Lastname: "Doe", Status: tracker.UserActive},
			Bob:   {ID: Bob, Login: "bob", Firstname: "Bob", Status: tracker.UserActive},
			Carol: {ID: Carol, Login: "carol", Status: tracker.UserLocked},
			Admin: {ID: Admin, Login: "admin", Admin: true, Status: tracker.UserActive},
		},
		AccountList: []tracker.Account{
			{ID: AliceAccount, TelegramID: AliceTelegram, UserID: Alice},
			{ID: CarolAccount, TelegramID: CarolTelegram, UserID: Carol},
			{ID: AdminAccount, TelegramID: AdminTelegram, UserID: Admin},
		},
		Projects: map[int64]tracker.Project{
			Backend: {ID: Backend, Name: "Backend", Identifier: "backend", Public: true, Status: tracker.ProjectActive},
			Mobile:  {ID: Mobile, Name: "Mobile", Identifier: "mobile", Status: tracker.ProjectActive},
			Secret:  {ID: Secret, Name: "Secret", Identifier: "secret", Status: tracker.ProjectActive},
			Archive: {ID: Archive, Name: "Archive", Identifier: "archive", Public: true, Status: 9},
		},
		Permissions: map[int64]map[int64][]string{
			Backend: {Alice: {"view_issues", "add_issues", "edit_issues"}, Bob: {"view_issues"}},
			Mobile:  {Alice: {"view_issues", "add_issues"}},
		},
		Trackers: map[int64]tracker.Tracker{
			Bug:     {ID: Bug, Name: "Bug"},
			Feature: {ID: Feature, Name: "Feature"},
			Support: {ID: Support, Name: "Support"},
		},
		ProjectTrackerIDs: map[int64][]int64{
			Backend: {Bug, Feature},
			Mobile:  {Bug, Feature, Support},
			Secret:  {Bug},
		},
		Statuses: []tracker.Status{
			{ID: New, Name: "New"},
			{ID: InProgress, Name: "In Progress"},
			{ID: Resolved, Name: "Resolved"},
			{ID: Closed, Name: "Closed", Closed: true},
		},
		Transitions: map[int64][]int64{
			New:        {InProgress, Resolved},
			InProgress: {Resolved},
		},
		Priorities: []tracker.Priority{
			{ID: Low, Name: "Low", Active: true},
			{ID: Normal, Name: "Normal", Active: true},
			{ID: High, Name: "High", Active: true},
			{ID: Legacy, Name: "Legacy"},
		},
		Issues: map[int64]tracker.Issue{
			LoginIssue: {ID: LoginIssue, ProjectID: Backend, TrackerID: Bug, StatusID: New, PriorityID: Normal,
				AuthorID: Bob, AssignedToID: &assignee, Subject: "Fix login", CreatedOn: now, UpdatedOn: now},
			ClosedIssue: {ID: ClosedIssue, ProjectID: Backend, TrackerID: Bug, StatusID: Closed, PriorityID: Low,
				AuthorID: Bob, AssignedToID: &assignee, Subject: "Old crash", CreatedOn: now, UpdatedOn: now},
			MobileIssue: {ID: MobileIssue, ProjectID: Mobile, TrackerID: Feature, StatusID: New, PriorityID: High,
				AuthorID: Alice, Subject: "Dark mode", CreatedOn: now, UpdatedOn: now.Add(-72 * time.Hour)},
			SecretIssue: {ID: SecretIssue, ProjectID: Secret, TrackerID: Bug, StatusID: New, PriorityID: Normal,
				AuthorID: Admin, Subject: "Hidden", CreatedOn: now, UpdatedOn: now},
		},
		Assignable: map[int64][]int64{
			Backend: {Alice, Bob},
			Mobile:  {Alice},
		},
		GroupsByIssue: map[int64]tracker.Group{
			LoginIssue: {ID: 1, IssueID: LoginIssue, TelegramID: LoginGroupChat, CreatedAt: now},
		},
	}
}

func (f *Fake) user(id int64) tracker.User { return f.Users[id] }

func (f *Fake) account(a tracker.Account) tracker.Account {
	a.User = f.user(a.UserID)
	return a
}

func (f *Fake) member(projectID, userID int64) bool {
	_, ok := f.Permissions[projectID][userID]
	return ok
}

func (f *Fake) visible(p tracker.Project, u tracker.User) bool {
	return p.Status == tracker.ProjectActive && (p.Public || u.Admin || f.member(p.ID, u.ID))
}

func sortProjects(ps []tracker.Project) []tracker.Project {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}

func sortIssues(is []tracker.Issue, limit int) []tracker.Issue {
	sort.Slice(is, func(i, j int) bool { return is[i].ID < is[j].ID })
	if limit > 0 && len(is) > limit {
		is = is[:limit]
	}
	return is
}

// GetUserByTelegramID returns the user linked to a Telegram account.
func (f *Fake) GetUserByTelegramID(ctx context.Context, telegramID int64) (tracker.User, error) {
	acc, err := f.AccountByTelegramID(ctx, telegramID)
	return acc.User, err
}

// AccountByTelegramID loads an account with its user.
func (f *Fake) AccountByTelegramID(_ context.Context, telegramID int64) (tracker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Account{}, f.Err
	}
	for _, a := range f.AccountList {
		if a.TelegramID == telegramID {
			return f.account(a), nil
		}
	}
	return tracker.Account{}, fmt.Errorf("account %d: %w", telegramID, tracker.ErrNotFound)
}

// AccountID resolves the account id of a Telegram user.
func (f *Fake) AccountID(ctx context.Context, telegramID int64) (int64, bool, error) {
	acc, err := f.AccountByTelegramID(ctx, telegramID)
	if err != nil {
		if f.Err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}
	return acc.ID, true, nil
}

// Accounts lists every account.
func (f *Fake) Accounts(context.Context) ([]tracker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]tracker.Account, 0, len(f.AccountList))
	for _, a := range f.AccountList {
		out = append(out, f.account(a))
	}
	return out, nil
}

// LockedAccounts lists accounts of locked users.
func (f *Fake) LockedAccounts(ctx context.Context) ([]tracker.Account, error) {
	all, err := f.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	var out []tracker.Account
	for _, a := range all {
		if a.User.Locked() {
			out = append(out, a)
		}
	}
	return out, nil
}

// VisibleProjects lists projects the user can see.
func (f *Fake) VisibleProjects(_ context.Context, u tracker.User) ([]tracker.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Project
	for _, p := range f.Projects {
		if f.visible(p, u) {
			out = append(out, p)
		}
	}
	return sortProjects(out), nil
}

// VisibleProjectByName finds a visible project by exact name.
func (f *Fake) VisibleProjectByName(ctx context.Context, u tracker.User, name string) (tracker.Project, error) {
	ps, err := f.VisibleProjects(ctx, u)
	if err != nil {
		return tracker.Project{}, err
	}
	for _, p := range ps {
		if p.Name == name {
			return p, nil
		}
	}
	return tracker.Project{}, fmt.Errorf("project %q: %w", name, tracker.ErrNotFound)
}

// Project loads a project.
func (f *Fake) Project(_ context.Context, id int64) (tracker.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Project{}, f.Err
	}
	p, ok := f.Projects[id]
	if !ok {
		return tracker.Project{}, tracker.ErrNotFound
	}
	return p, nil
}

// AllowedTargetProjects lists projects where the user may add issues, plus the issue's own.
func (f *Fake) AllowedTargetProjects(_ context.Context, u tracker.User, is tracker.Issue) ([]tracker.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Project
	for _, p := range f.Projects {
		if p.Status != tracker.ProjectActive {
			continue
		}
		if p.ID == is.ProjectID || u.Admin || slices.Contains(f.Permissions[p.ID][u.ID], "add_issues") {
			out = append(out, p)
		}
	}
	return sortProjects(out), nil
}

// Issue loads an issue.
func (f *Fake) Issue(_ context.Context, id int64) (tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Issue{}, f.Err
	}
	is, ok := f.Issues[id]
	if !ok {
		return tracker.Issue{}, fmt.Errorf("issue %d: %w", id, tracker.ErrNotFound)
	}
	return is, nil
}

// HotIssues lists open issues of active projects assigned to the user and updated since.
func (f *Fake) HotIssues(_ context.Context, u tracker.User, since time.Time, limit int) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Issue
	for _, is := range f.Issues {
		if is.AssignedToID == nil || *is.AssignedToID != u.ID || is.UpdatedOn.Before(since) {
			continue
		}
		if f.Projects[is.ProjectID].Status != tracker.ProjectActive || f.statusClosed(is.StatusID) {
			continue
		}
		out = append(out, is)
	}
	return sortIssues(out, limit), nil
}

func (f *Fake) statusClosed(id int64) bool {
	for _, s := range f.Statuses {
		if s.ID == id {
			return s.Closed
		}
	}
	return false
}

// ProjectIssues lists the first issues of a project.
func (f *Fake) ProjectIssues(_ context.Context, projectID int64, limit int) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Issue
	for _, is := range f.Issues {
		if is.ProjectID == projectID {
			out = append(out, is)
		}
	}
	return sortIssues(out, limit), nil
}

// ProjectTrackers lists trackers enabled on a project.
func (f *Fake) ProjectTrackers(_ context.Context, projectID int64) ([]tracker.Tracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Tracker
	for _, id := range f.ProjectTrackerIDs[projectID] {
		out = append(out, f.Trackers[id])
	}
	return out, nil
}

// Tracker loads a tracker.
func (f *Fake) Tracker(_ context.Context, id int64) (tracker.Tracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Tracker{}, f.Err
	}
	t, ok := f.Trackers[id]
	if !ok {
		return tracker.Tracker{}, tracker.ErrNotFound
	}
	return t, nil
}

// AllowedStatuses lists the current status plus reachable ones; admins get all.
func (f *Fake) AllowedStatuses(_ context.Context, u tracker.User, is tracker.Issue) ([]tracker.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Status
	for _, s := range f.Statuses {
		if u.Admin || s.ID == is.StatusID ||
			(f.member(is.ProjectID, u.ID) && slices.Contains(f.Transitions[is.StatusID], s.ID)) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Status loads a status.
func (f *Fake) Status(_ context.Context, id int64) (tracker.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Status{}, f.Err
	}
	for _, s := range f.Statuses {
		if s.ID == id {
			return s, nil
		}
	}
	return tracker.Status{}, tracker.ErrNotFound
}

// ActivePriorities lists active priorities.
func (f *Fake) ActivePriorities(context.Context) ([]tracker.Priority, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Priority
	for _, p := range f.Priorities {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// Priority loads a priority.
func (f *Fake) Priority(_ context.Context, id int64) (tracker.Priority, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Priority{}, f.Err
	}
	for _, p := range f.Priorities {
		if p.ID == id {
			return p, nil
		}
	}
	return tracker.Priority{}, tracker.ErrNotFound
}

// AssignableUsers lists active assignable users of a project.
func (f *Fake) AssignableUsers(_ context.Context, projectID int64) ([]tracker.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.User
	for _, id := range f.Assignable[projectID] {
		if u := f.user(id); !u.Locked() {
			out = append(out, u)
		}
	}
	return out, nil
}

// User loads a user.
func (f *Fake) User(_ context.Context, id int64) (tracker.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.User{}, f.Err
	}
	u, ok := f.Users[id]
	if !ok {
		return tracker.User{}, tracker.ErrNotFound
	}
	return u, nil
}

// Allowed reports whether the user holds permission on an active project.
func (f *Fake) Allowed(_ context.Context, u tracker.User, projectID int64, permission string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	if f.Projects[projectID].Status != tracker.ProjectActive {
		return false, nil
	}
	return u.Admin || slices.Contains(f.Permissions[projectID][u.ID], permission), nil
}

// SaveChanges applies changes and appends a journal.
func (f *Fake) SaveChanges(_ context.Context, issueID, authorID int64, changes []tracker.Change, notes string) (tracker.Journal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Journal{}, f.Err
	}
	if f.SaveErr != nil {
		return tracker.Journal{}, f.SaveErr
	}
	is, ok := f.Issues[issueID]
	if !ok {
		return tracker.Journal{}, tracker.ErrNotFound
	}
	for _, ch := range changes {
		if err := applyChange(&is, ch); err != nil {
			return tracker.Journal{}, err
		}
	}
	is.UpdatedOn = time.Now()
	f.Issues[issueID] = is

	f.nextJournal++
	j := tracker.Journal{ID: f.nextJournal, IssueID: issueID, UserID: authorID, Notes: notes, CreatedOn: is.UpdatedOn}
	for _, ch := range changes {
		j.Details = append(j.Details, tracker.Detail{
			Property: "attr", Field: ch.Attribute,
			OldValue: ch.Old, NewValue: ch.New,
			OldLabel: ch.OldLabel, NewLabel: ch.NewLabel,
		})
	}
	f.Journals = append(f.Journals, j)
	return j, nil
}

// AddNote appends a notes-only journal.
func (f *Fake) AddNote(ctx context.Context, issueID, authorID int64, notes string) (tracker.Journal, error) {
	return f.SaveChanges(ctx, issueID, authorID, nil, notes)
}

func applyChange(is *tracker.Issue, ch tracker.Change) error {
	switch ch.Column {
	case "project_id":
		is.ProjectID = ch.Value.(int64)
	case "tracker_id":
		is.TrackerID = ch.Value.(int64)
	case "status_id":
		is.StatusID = ch.Value.(int64)
	case "priority_id":
		is.PriorityID = ch.Value.(int64)
	case "assigned_to_id":
		is.AssignedToID = ch.Value.(*int64)
	case "subject":
		is.Subject = ch.Value.(string)
	case "start_date":
		is.StartDate = ch.Value.(*time.Time)
	case "due_date":
		is.DueDate = ch.Value.(*time.Time)
	case "estimated_hours":
		is.EstimatedHours = ch.Value.(*float64)
	case "done_ratio":
		is.DoneRatio = ch.Value.(int)
	default:
		return fmt.Errorf("column %q is not writable", ch.Column)
	}
	return nil
}

// GroupForIssue returns the group linked to an issue.
func (f *Fake) GroupForIssue(_ context.Context, issueID int64) (tracker.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return tracker.Group{}, f.Err
	}
	g, ok := f.GroupsByIssue[issueID]
	if !ok {
		return tracker.Group{}, fmt.Errorf("group for issue %d: %w", issueID, tracker.ErrNotFound)
	}
	return g, nil
}

// Groups lists linked groups ordered by id.
func (f *Fake) Groups(context.Context) ([]tracker.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]tracker.Group, 0, len(f.GroupsByIssue))
	for _, g := range f.GroupsByIssue {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteGroup removes a group link.
func (f *Fake) DeleteGroup(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for issueID, g := range f.GroupsByIssue {
		if g.ID == id {
			delete(f.GroupsByIssue, issueID)
		}
	}
	return nil
}

// ArchiveMessage records an archived chat message.
func (f *Fake) ArchiveMessage(_ context.Context, m tracker.ArchivedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Archived = append(f.Archived, m)
	return nil
}

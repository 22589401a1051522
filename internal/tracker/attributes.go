package tracker

import "slices"

// Editable attribute names, in keyboard order.
const (
	AttrProject        = "project"
	AttrTracker        = "tracker"
	AttrSubject        = "subject"
	AttrStatus         = "status"
	AttrPriority       = "priority"
	AttrAssignedTo     = "assigned_to"
	AttrStartDate      = "start_date"
	AttrDueDate        = "due_date"
	AttrEstimatedHours = "estimated_hours"
	AttrDoneRatio      = "done_ratio"
	AttrSubjectChat    = "subject_chat"
)

var editableAttributes = []string{
	AttrProject,
	AttrTracker,
	AttrSubject,
	AttrStatus,
	AttrPriority,
	AttrAssignedTo,
	AttrStartDate,
	AttrDueDate,
	AttrEstimatedHours,
	AttrDoneRatio,
	AttrSubjectChat,
}

// issues columns that SaveChanges is allowed to write.
var attributeColumns = map[string]string{
	AttrProject:        "project_id",
	AttrTracker:        "tracker_id",
	AttrSubject:        "subject",
	AttrStatus:         "status_id",
	AttrPriority:       "priority_id",
	AttrAssignedTo:     "assigned_to_id",
	AttrStartDate:      "start_date",
	AttrDueDate:        "due_date",
	AttrEstimatedHours: "estimated_hours",
	AttrDoneRatio:      "done_ratio",
}

// EditableAttributes returns the attributes a user may pick, in display order.
func EditableAttributes() []string {
	return slices.Clone(editableAttributes)
}

// IsEditable reports whether name is one of EditableAttributes.
func IsEditable(name string) bool {
	return slices.Contains(editableAttributes, name)
}

// Column returns the issues column backing attr.
func Column(attr string) (string, bool) {
	c, ok := attributeColumns[attr]
	return c, ok
}

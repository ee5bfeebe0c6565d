package services

import (
	"fmt"
	"strings"
	"time"

	"taskbot-project/taskbot-service/models"
	"taskbot-project/taskbot-service/repositories"
)

// FieldChange is one audited difference produced by an edit.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ParseDueDate parses a calendar date with no time component.
func ParseDueDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("parse due date: %w", err)
	}
	utc := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &utc, nil
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// diffTask computes which fields an edit actually changes. A field is
// changed iff old != new by identity compare, with due dates compared as
// normalized date strings. Omitted patch fields never count as changes.
func diffTask(task *models.Task, patch repositories.ContentPatch) []FieldChange {
	var changes []FieldChange

	if patch.AssigneeID != nil && *patch.AssigneeID != task.AssigneeID {
		changes = append(changes, FieldChange{Field: "assignee", Old: task.AssigneeID, New: *patch.AssigneeID})
	}
	if patch.Description != nil && *patch.Description != task.Description {
		changes = append(changes, FieldChange{Field: "description", Old: task.Description, New: *patch.Description})
	}
	if patch.DueDateSet {
		oldDue := formatDueDate(task.DueDate)
		newDue := formatDueDate(patch.DueDate)
		if oldDue != newDue {
			changes = append(changes, FieldChange{Field: "due date", Old: oldDue, New: newDue})
		}
	}

	return changes
}

// renderChangeLog builds the human-readable edit summary posted to the
// task's origin thread.
func renderChangeLog(actorUserID string, changes []FieldChange) string {
	lines := make([]string, 0, len(changes)+1)
	lines = append(lines, fmt.Sprintf("<@%s> edited this task:", actorUserID))
	for _, c := range changes {
		oldValue := c.Old
		if oldValue == "" {
			oldValue = "(none)"
		}
		newValue := c.New
		if newValue == "" {
			newValue = "(none)"
		}
		lines = append(lines, fmt.Sprintf("• %s: %s → %s", c.Field, oldValue, newValue))
	}
	return strings.Join(lines, "\n")
}

package models

import (
	"strings"
	"time"
)

// ArchivedMarker is prefixed to the title of a task when it is archived.
const ArchivedMarker = "✅ "

// Task is a single user task. Completed tasks are archived at reset time,
// incomplete ones are deleted.
type Task struct {
	ID            string
	UserID        string
	Title         string
	Completed     bool
	IsSustainable bool
	CreatedAt     time.Time
	CompletedAt   *time.Time
	Archived      bool
}

// ArchivedTitle returns title carrying the completion marker exactly once.
func ArchivedTitle(title string) string {
	if strings.HasPrefix(title, ArchivedMarker) {
		return title
	}
	return ArchivedMarker + title
}

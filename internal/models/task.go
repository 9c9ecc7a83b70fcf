package models

import "time"

const (
	TaskStatusOpen      = "open"
	TaskStatusCompleted = "completed"
)

// Task is a mentor-assigned follow-up of a held meeting.
type Task struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	MeetingID           uint       `gorm:"index;not null" json:"meeting_id"`
	ProjectID           uint       `gorm:"index;not null" json:"project_id"`
	Title               string     `gorm:"size:200;not null" json:"title"`
	Description         string     `gorm:"type:text" json:"description"`
	DueDate             *time.Time `json:"due_date"`
	Status              string     `gorm:"size:20;index;default:open" json:"status"`
	CompletedAt         *time.Time `json:"completed_at"`
	DueDateAtCompletion *time.Time `json:"due_date_at_completion"`
	CompletedByID       *uint      `json:"completed_by_id"`
	CreatedByID         uint       `json:"created_by_id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	IsOverdue     bool `gorm:"-" json:"is_overdue"`
	CompletedLate bool `gorm:"-" json:"completed_late"`
}

func (Task) TableName() string { return "tasks" }

// Overdue is true while the task is open and its due date has passed.
func (t *Task) Overdue(now time.Time) bool {
	return t.Status == TaskStatusOpen && t.DueDate != nil && now.After(*t.DueDate)
}

// Late is true when the task was completed strictly after the due date in
// effect at completion.
func (t *Task) Late() bool {
	if t.Status != TaskStatusCompleted || t.CompletedAt == nil || t.DueDateAtCompletion == nil {
		return false
	}
	return t.CompletedAt.After(*t.DueDateAtCompletion)
}

// Decorate fills the derived fields.
func (t *Task) Decorate(now time.Time) {
	t.IsOverdue = t.Overdue(now)
	t.CompletedLate = t.Late()
}

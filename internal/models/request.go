package models

import (
	"fmt"
	"time"
)

const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusDeclined = "declined"
)

// Request is a student's mentorship request to a mentor. PendingKey is set
// only while pending so that a pair holds at most one open request.
type Request struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StudentID    uint       `gorm:"index;not null" json:"student_id"`
	Student      *User      `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	MentorID     uint       `gorm:"index;not null" json:"mentor_id"`
	Mentor       *User      `gorm:"foreignKey:MentorID" json:"mentor,omitempty"`
	Message      string     `gorm:"type:text" json:"message"`
	Status       string     `gorm:"size:20;index;default:pending" json:"status"`
	ResponseNote string     `gorm:"type:text" json:"response_note,omitempty"`
	PendingKey   *string    `gorm:"uniqueIndex;size:64" json:"-"`
	RespondedAt  *time.Time `json:"responded_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Request) TableName() string { return "requests" }

func RequestPendingKey(studentID, mentorID uint) *string {
	key := fmt.Sprintf("%d:%d", studentID, mentorID)
	return &key
}

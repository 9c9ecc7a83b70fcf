package models

import "time"

const (
	MeetingStatusPending  = "pending"
	MeetingStatusAccepted = "accepted"
	MeetingStatusRejected = "rejected"
	MeetingStatusHeld     = "held"
	MeetingStatusExpired  = "expired"
)

// Meeting is a scheduling negotiation between a proposer and the project's
// mentor. Held and expired are only ever written by materialization.
type Meeting struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ProjectID        uint      `gorm:"index;not null" json:"project_id"`
	Project          *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	ProposerID       uint      `gorm:"index;not null" json:"proposer_id"`
	MentorID         uint      `gorm:"index;not null" json:"mentor_id"`
	ProposedDate     time.Time `gorm:"index;not null" json:"proposed_date"`
	Status           string    `gorm:"size:20;index;default:pending" json:"status"`
	Attendees        []User    `gorm:"many2many:meeting_attendees;" json:"attendees,omitempty"`
	RescheduleReason string    `gorm:"type:text" json:"reschedule_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Meeting) TableName() string { return "meetings" }

// IsAttendee reports whether userID is in the loaded attendee list.
func (m *Meeting) IsAttendee(userID uint) bool {
	for _, a := range m.Attendees {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// IsStudentAttendee is IsAttendee restricted to student attendees.
func (m *Meeting) IsStudentAttendee(userID uint) bool {
	for _, a := range m.Attendees {
		if a.ID == userID && a.Role == RoleStudent {
			return true
		}
	}
	return false
}

func (m *Meeting) AttendeeIDs() []uint {
	ids := make([]uint, 0, len(m.Attendees))
	for _, a := range m.Attendees {
		ids = append(ids, a.ID)
	}
	return ids
}

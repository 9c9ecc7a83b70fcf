package services

import (
	"time"

	"github.com/huangang/projectportal/internal/models"
	"gorm.io/gorm"
)

// Who a pending meeting is waiting on.
const (
	AwaitingMentor  = "mentor"
	AwaitingStudent = "student"
	AwaitingNone    = "none"
)

// Viewer-relative labels carried by MeetingView.
const (
	ActionNeedsYourResponse = "needs_your_response"
	ActionAwaitingMentor    = "awaiting_mentor"
	ActionAwaitingStudent   = "awaiting_student"
	ActionScheduled         = "scheduled"
	ActionDeclined          = "declined"
	ActionHeld              = "held"
	ActionExpired           = "expired"
)

// DeriveMeetingStatus returns the status a meeting has at now. Accepted
// meetings in the past are held, pending ones expired; nothing else moves.
func DeriveMeetingStatus(status string, proposedDate, now time.Time) string {
	if !proposedDate.Before(now) {
		return status
	}
	switch status {
	case models.MeetingStatusAccepted:
		return models.MeetingStatusHeld
	case models.MeetingStatusPending:
		return models.MeetingStatusExpired
	}
	return status
}

// MaterializeMeetings persists DeriveMeetingStatus for every meeting matched
// by scopes and returns the number of rows changed. Running it twice is the
// same as running it once.
func MaterializeMeetings(db *gorm.DB, now time.Time, scopes ...func(*gorm.DB) *gorm.DB) (int64, error) {
	now = now.UTC()
	var changed int64
	transitions := []struct{ from, to string }{
		{models.MeetingStatusAccepted, models.MeetingStatusHeld},
		{models.MeetingStatusPending, models.MeetingStatusExpired},
	}
	for _, tr := range transitions {
		res := db.Model(&models.Meeting{}).
			Scopes(scopes...).
			Where("status = ? AND proposed_date < ?", tr.from, now).
			Update("status", tr.to)
		if res.Error != nil {
			return changed, res.Error
		}
		changed += res.RowsAffected
	}
	return changed, nil
}

func meetingByID(id uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("id = ?", id) }
}

func meetingsOfProject(projectID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("project_id = ?", projectID) }
}

// AwaitingApprovalFrom names the side that must answer a pending meeting:
// the mentor when a student proposed, the students when the mentor did.
func AwaitingApprovalFrom(m *models.Meeting) string {
	if m.Status != models.MeetingStatusPending {
		return AwaitingNone
	}
	if m.ProposerID == m.MentorID {
		return AwaitingStudent
	}
	return AwaitingMentor
}

// CanRespond reports whether userID is the counterparty of the latest proposal.
func CanRespond(m *models.Meeting, userID uint) bool {
	if userID == m.ProposerID {
		return false
	}
	switch AwaitingApprovalFrom(m) {
	case AwaitingMentor:
		return userID == m.MentorID
	case AwaitingStudent:
		return m.IsStudentAttendee(userID)
	}
	return false
}

// ActionLabel describes the meeting from viewerID's point of view.
func ActionLabel(m *models.Meeting, viewerID uint) string {
	switch m.Status {
	case models.MeetingStatusPending:
		if CanRespond(m, viewerID) {
			return ActionNeedsYourResponse
		}
		if AwaitingApprovalFrom(m) == AwaitingMentor {
			return ActionAwaitingMentor
		}
		return ActionAwaitingStudent
	case models.MeetingStatusAccepted:
		return ActionScheduled
	case models.MeetingStatusRejected:
		return ActionDeclined
	case models.MeetingStatusHeld:
		return ActionHeld
	case models.MeetingStatusExpired:
		return ActionExpired
	}
	return ""
}

// MeetingView is a meeting decorated for one viewer.
type MeetingView struct {
	models.Meeting
	AwaitingApprovalFrom string `json:"awaiting_approval_from"`
	ActionLabel          string `json:"action_label"`
}

func newMeetingView(m *models.Meeting, viewerID uint) *MeetingView {
	return &MeetingView{
		Meeting:              *m,
		AwaitingApprovalFrom: AwaitingApprovalFrom(m),
		ActionLabel:          ActionLabel(m, viewerID),
	}
}

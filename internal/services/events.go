package services

import "time"

const (
	EventMeetingProposed       = "meeting.proposed"
	EventMeetingUpdated        = "meeting.updated"
	EventTaskCreated           = "task.created"
	EventTaskUpdated           = "task.updated"
	EventTaskDeleted           = "task.deleted"
	EventProjectUpdated        = "project.updated"
	EventProposalApproved      = "proposal.approved"
	EventProposalRejected      = "proposal.rejected"
	EventProposalPending       = "proposal.pending"
	EventCoStudentsInvalidated = "co_students.invalidated"
	EventRequestCreated        = "request.created"
	EventRequestUpdated        = "request.updated"
)

// Event is a state-change notification pushed to connected users.
type Event struct {
	Type      string      `json:"type"`
	EntityID  uint        `json:"entity_id,omitempty"`
	ProjectID uint        `json:"project_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	At        time.Time   `json:"at"`
}

func newEvent(eventType string, entityID uint, at time.Time) Event {
	return Event{Type: eventType, EntityID: entityID, At: at}
}

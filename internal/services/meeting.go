package services

import (
	"strings"
	"time"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/logger"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

type MeetingService struct {
	clock
	db       *gorm.DB
	notifier Notifier
	policy   *SchedulePolicy
}

func NewMeetingService(db *gorm.DB, notifier Notifier, policy *SchedulePolicy) *MeetingService {
	if policy == nil {
		policy = DefaultSchedulePolicy()
	}
	return &MeetingService{db: db, notifier: orNop(notifier), policy: policy}
}

type ProposeMeetingRequest struct {
	ProposedDate time.Time `json:"proposed_date" binding:"required"`
}

type RescheduleMeetingRequest struct {
	ProposedDate time.Time `json:"proposed_date" binding:"required"`
	Reason       string    `json:"reason"`
}

// Propose opens a negotiation for a new meeting of the project. Any student
// of the project or its mentor may propose; the others are attendees.
func (s *MeetingService) Propose(actor Actor, projectID uint, req *ProposeMeetingRequest) (*MeetingView, error) {
	var project models.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		return nil, notFoundOr(err, "project not found")
	}
	if !project.IsMember(actor.ID) {
		return nil, response.NewForbidden("only the project's students or mentor can propose meetings")
	}

	now := s.Now().UTC()
	date := req.ProposedDate.UTC()
	if !date.After(now) {
		return nil, response.NewBadRequest("proposed date must be in the future")
	}
	if err := s.policy.CheckSlot(date); err != nil {
		return nil, err
	}
	conflict, err := s.policy.mentorConflict(s.db, project.MentorID, date, 0)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, s.policy.conflictError(conflict)
	}

	var attendees []models.User
	if err := s.db.Where("id IN ?", append(project.StudentIDs(), project.MentorID)).Find(&attendees).Error; err != nil {
		return nil, err
	}

	meeting := models.Meeting{
		ProjectID:    project.ID,
		ProposerID:   actor.ID,
		MentorID:     project.MentorID,
		ProposedDate: date,
		Status:       models.MeetingStatusPending,
		Attendees:    attendees,
	}
	if err := s.db.Create(&meeting).Error; err != nil {
		return nil, err
	}

	s.notify(EventMeetingProposed, &meeting, actor.ID)
	return newMeetingView(&meeting, actor.ID), nil
}

// Approve accepts the latest proposed time on behalf of the counterparty.
func (s *MeetingService) Approve(actor Actor, id uint) (*MeetingView, error) {
	return s.respond(actor, id, models.MeetingStatusAccepted)
}

// Decline rejects the latest proposed time on behalf of the counterparty.
func (s *MeetingService) Decline(actor Actor, id uint) (*MeetingView, error) {
	return s.respond(actor, id, models.MeetingStatusRejected)
}

func (s *MeetingService) respond(actor Actor, id uint, decision string) (*MeetingView, error) {
	meeting, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !s.isParticipant(meeting, actor.ID) {
		return nil, response.NewForbidden("you are not a participant of this meeting")
	}
	if meeting.Status != models.MeetingStatusPending {
		return nil, response.NewConflict("meeting is " + meeting.Status + " and can no longer be answered")
	}
	if actor.ID == meeting.ProposerID {
		return nil, response.NewForbidden("you cannot answer your own proposal")
	}
	if !CanRespond(meeting, actor.ID) {
		return nil, response.NewForbidden("this meeting is awaiting the " + AwaitingApprovalFrom(meeting))
	}

	res := s.db.Model(&models.Meeting{}).
		Where("id = ? AND status = ? AND proposer_id = ?", meeting.ID, models.MeetingStatusPending, meeting.ProposerID).
		Updates(map[string]interface{}{
			"status":            decision,
			"reschedule_reason": "",
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("meeting changed while you were answering; reload and try again")
	}
	meeting.Status = decision
	meeting.RescheduleReason = ""

	s.notify(EventMeetingUpdated, meeting, actor.ID)
	return newMeetingView(meeting, actor.ID), nil
}

// Reschedule moves the meeting to a new time and restarts the negotiation
// with the actor as proposer. Only accepted meetings of the mentor are
// considered for the buffer check here.
func (s *MeetingService) Reschedule(actor Actor, id uint, req *RescheduleMeetingRequest) (*MeetingView, error) {
	meeting, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if actor.ID != meeting.MentorID && !meeting.IsAttendee(actor.ID) {
		return nil, response.NewForbidden("only the mentor or an attendee can reschedule")
	}
	if meeting.Status == models.MeetingStatusRejected {
		return nil, response.NewConflict("a declined meeting cannot be rescheduled")
	}

	now := s.Now().UTC()
	if !meeting.ProposedDate.After(now) {
		return nil, response.NewConflict("the meeting date has passed and it can no longer be rescheduled")
	}
	date := req.ProposedDate.UTC()
	if !date.After(now) {
		return nil, response.NewBadRequest("proposed date must be in the future")
	}
	if err := s.policy.CheckSlot(date); err != nil {
		return nil, err
	}
	conflict, err := s.policy.mentorConflict(s.db, meeting.MentorID, date, meeting.ID, models.MeetingStatusAccepted)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, s.policy.conflictError(conflict)
	}

	reason := strings.TrimSpace(req.Reason)
	res := s.db.Model(&models.Meeting{}).
		Where("id = ? AND status = ?", meeting.ID, meeting.Status).
		Updates(map[string]interface{}{
			"proposed_date":     date,
			"status":            models.MeetingStatusPending,
			"proposer_id":       actor.ID,
			"reschedule_reason": reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("meeting changed while you were rescheduling; reload and try again")
	}
	meeting.ProposedDate = date
	meeting.Status = models.MeetingStatusPending
	meeting.ProposerID = actor.ID
	meeting.RescheduleReason = reason

	s.notify(EventMeetingUpdated, meeting, actor.ID)
	return newMeetingView(meeting, actor.ID), nil
}

// Get returns a materialized meeting visible to actor.
func (s *MeetingService) Get(actor Actor, id uint) (*MeetingView, error) {
	meeting, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !actor.IsHOD() && !s.isParticipant(meeting, actor.ID) {
		return nil, response.NewForbidden("you are not a participant of this meeting")
	}
	return newMeetingView(meeting, actor.ID), nil
}

// ListByProject materializes and returns every meeting of the project,
// most recent first.
func (s *MeetingService) ListByProject(actor Actor, projectID uint) ([]*MeetingView, error) {
	var project models.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		return nil, notFoundOr(err, "project not found")
	}
	if !actor.IsHOD() && !project.IsMember(actor.ID) {
		return nil, response.NewForbidden("you are not a member of this project")
	}

	if _, err := MaterializeMeetings(s.db, s.Now(), meetingsOfProject(projectID)); err != nil {
		return nil, err
	}

	var meetings []models.Meeting
	if err := s.db.Preload("Attendees").
		Where("project_id = ?", projectID).
		Order("proposed_date DESC").
		Find(&meetings).Error; err != nil {
		return nil, err
	}
	views := make([]*MeetingView, 0, len(meetings))
	for i := range meetings {
		views = append(views, newMeetingView(&meetings[i], actor.ID))
	}
	return views, nil
}

// MaterializeAll sweeps every meeting. Reads materialize on their own, so
// this only keeps stored statuses fresh for reporting.
func (s *MeetingService) MaterializeAll() (int64, error) {
	changed, err := MaterializeMeetings(s.db, s.Now())
	if err != nil {
		return changed, err
	}
	if changed > 0 {
		logger.Info().Int64("changed", changed).Msg("meeting statuses materialized")
	}
	return changed, nil
}

// load materializes the meeting and returns it with attendees and project.
func (s *MeetingService) load(id uint) (*models.Meeting, error) {
	return loadMeeting(s.db, id, s.Now())
}

func loadMeeting(db *gorm.DB, id uint, now time.Time) (*models.Meeting, error) {
	if _, err := MaterializeMeetings(db, now, meetingByID(id)); err != nil {
		return nil, err
	}
	var meeting models.Meeting
	if err := db.Preload("Attendees").Preload("Project").First(&meeting, id).Error; err != nil {
		return nil, notFoundOr(err, "meeting not found")
	}
	return &meeting, nil
}

func (s *MeetingService) isParticipant(m *models.Meeting, userID uint) bool {
	return userID == m.MentorID || m.IsAttendee(userID)
}

func (s *MeetingService) notify(eventType string, m *models.Meeting, actorID uint) {
	ev := newEvent(eventType, m.ID, s.Now())
	ev.ProjectID = m.ProjectID
	ev.Data = map[string]interface{}{
		"status":        m.Status,
		"proposed_date": m.ProposedDate,
	}
	recipients := append(m.AttendeeIDs(), m.MentorID)
	s.notifier.NotifyUsers(ev, without(recipients, actorID)...)
}

package services

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

// tomorrow returns hh:mm UTC on the day after baseNow.
func tomorrow(hour, minute int) time.Time {
	return time.Date(2026, 3, 3, hour, minute, 0, 0, time.UTC)
}

type meetingFixture struct {
	db       *gorm.DB
	svc      *MeetingService
	notifier *recordingNotifier
	mentor   *models.User
	s1, s2   *models.User
	project  *models.Project
}

func newMeetingFixture(t *testing.T) *meetingFixture {
	t.Helper()
	db := newTestDB(t)
	n := &recordingNotifier{}
	svc := NewMeetingService(db, n, DefaultSchedulePolicy())
	svc.SetClock(fixedClock(baseNow))

	mentor := createUser(t, db, models.RoleMentor, "mentor")
	s1 := createUser(t, db, models.RoleStudent, "ada")
	s2 := createUser(t, db, models.RoleStudent, "bob")
	return &meetingFixture{
		db:       db,
		svc:      svc,
		notifier: n,
		mentor:   mentor,
		s1:       s1,
		s2:       s2,
		project:  createProject(t, db, mentor, s1, s2),
	}
}

func (f *meetingFixture) propose(t *testing.T, by *models.User, at time.Time) *MeetingView {
	t.Helper()
	view, err := f.svc.Propose(actorOf(by), f.project.ID, &ProposeMeetingRequest{ProposedDate: at})
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	return view
}

func (f *meetingFixture) status(t *testing.T, id uint) string {
	t.Helper()
	var m models.Meeting
	if err := f.db.First(&m, id).Error; err != nil {
		t.Fatalf("reload meeting: %v", err)
	}
	return m.Status
}

func TestDeriveMeetingStatus(t *testing.T) {
	past := baseNow.Add(-time.Minute)
	future := baseNow.Add(time.Minute)

	tests := []struct {
		status string
		date   time.Time
		want   string
	}{
		{models.MeetingStatusAccepted, past, models.MeetingStatusHeld},
		{models.MeetingStatusPending, past, models.MeetingStatusExpired},
		{models.MeetingStatusRejected, past, models.MeetingStatusRejected},
		{models.MeetingStatusHeld, past, models.MeetingStatusHeld},
		{models.MeetingStatusExpired, past, models.MeetingStatusExpired},
		{models.MeetingStatusAccepted, future, models.MeetingStatusAccepted},
		{models.MeetingStatusPending, future, models.MeetingStatusPending},
		{models.MeetingStatusAccepted, baseNow, models.MeetingStatusAccepted},
	}
	for _, tt := range tests {
		if got := DeriveMeetingStatus(tt.status, tt.date, baseNow); got != tt.want {
			t.Errorf("DeriveMeetingStatus(%s, %v) = %s, expected %s", tt.status, tt.date, got, tt.want)
		}
	}
}

func TestAwaitingApprovalAndActionLabel(t *testing.T) {
	mentor := models.User{ID: 1, Role: models.RoleMentor}
	student := models.User{ID: 2, Role: models.RoleStudent}
	co := models.User{ID: 3, Role: models.RoleStudent}
	attendees := []models.User{student, co, mentor}

	byStudent := &models.Meeting{ProposerID: 2, MentorID: 1, Status: models.MeetingStatusPending, Attendees: attendees}
	if got := AwaitingApprovalFrom(byStudent); got != AwaitingMentor {
		t.Errorf("student proposal awaits %s", got)
	}
	if ActionLabel(byStudent, 1) != ActionNeedsYourResponse {
		t.Error("mentor should be asked to respond")
	}
	if ActionLabel(byStudent, 2) != ActionAwaitingMentor || ActionLabel(byStudent, 3) != ActionAwaitingMentor {
		t.Error("students should see awaiting_mentor")
	}

	byMentor := &models.Meeting{ProposerID: 1, MentorID: 1, Status: models.MeetingStatusPending, Attendees: attendees}
	if got := AwaitingApprovalFrom(byMentor); got != AwaitingStudent {
		t.Errorf("mentor proposal awaits %s", got)
	}
	if !CanRespond(byMentor, 3) || CanRespond(byMentor, 1) {
		t.Error("any student attendee, not the mentor, answers a mentor proposal")
	}
	if ActionLabel(byMentor, 1) != ActionAwaitingStudent {
		t.Error("mentor should see awaiting_student")
	}

	accepted := &models.Meeting{ProposerID: 2, MentorID: 1, Status: models.MeetingStatusAccepted}
	if AwaitingApprovalFrom(accepted) != AwaitingNone || ActionLabel(accepted, 1) != ActionScheduled {
		t.Error("accepted meetings await nobody")
	}
	if CanRespond(accepted, 1) {
		t.Error("accepted meetings cannot be answered")
	}
}

func TestMeeting_ProposeByStudent(t *testing.T) {
	f := newMeetingFixture(t)
	view := f.propose(t, f.s1, tomorrow(9, 0))

	if view.Status != models.MeetingStatusPending || view.ProposerID != f.s1.ID || view.MentorID != f.mentor.ID {
		t.Errorf("meeting = %+v", view.Meeting)
	}
	if len(view.Attendees) != 3 {
		t.Errorf("attendees = %d, expected both students and the mentor", len(view.Attendees))
	}
	if view.AwaitingApprovalFrom != AwaitingMentor || view.ActionLabel != ActionAwaitingMentor {
		t.Errorf("view = %s / %s", view.AwaitingApprovalFrom, view.ActionLabel)
	}

	sent := f.notifier.ofType(EventMeetingProposed)
	if len(sent) != 1 {
		t.Fatalf("expected one meeting.proposed, got %d", len(sent))
	}
	if containsID(sent[0].userIDs, f.s1.ID) || !containsID(sent[0].userIDs, f.mentor.ID) || !containsID(sent[0].userIDs, f.s2.ID) {
		t.Errorf("recipients = %v", sent[0].userIDs)
	}
}

func TestMeeting_ProposeValidation(t *testing.T) {
	f := newMeetingFixture(t)
	stranger := createUser(t, f.db, models.RoleStudent, "eve")

	tests := []struct {
		name    string
		actor   *models.User
		project uint
		at      time.Time
		check   func(error) bool
	}{
		{"before window", f.s1, f.project.ID, tomorrow(7, 59), response.IsBadRequest},
		{"window end is exclusive", f.s1, f.project.ID, tomorrow(17, 0), response.IsBadRequest},
		{"in the past", f.s1, f.project.ID, baseNow.Add(-time.Hour), response.IsBadRequest},
		{"not a member", stranger, f.project.ID, tomorrow(9, 0), response.IsForbidden},
		{"missing project", f.s1, 9999, tomorrow(9, 0), response.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Propose(actorOf(tt.actor), tt.project, &ProposeMeetingRequest{ProposedDate: tt.at})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if _, err := f.svc.Propose(actorOf(f.s1), f.project.ID, &ProposeMeetingRequest{ProposedDate: tomorrow(16, 59)}); err != nil {
		t.Errorf("16:59 is inside the window: %v", err)
	}
}

func TestMeeting_ProposeConflictChecksEveryStatus(t *testing.T) {
	f := newMeetingFixture(t)
	existing := insertMeeting(t, f.db, f.project, f.s1.ID, tomorrow(10, 0), models.MeetingStatusRejected)

	for _, at := range []time.Time{tomorrow(9, 31), tomorrow(10, 0), tomorrow(10, 29)} {
		_, err := f.svc.Propose(actorOf(f.s1), f.project.ID, &ProposeMeetingRequest{ProposedDate: at})
		if !response.IsConflict(err) {
			t.Errorf("propose at %s near %s meeting: expected conflict, got %v", at.Format("15:04"), existing.Status, err)
		}
	}
	for _, at := range []time.Time{tomorrow(9, 30), tomorrow(10, 30)} {
		if _, err := f.svc.Propose(actorOf(f.s1), f.project.ID, &ProposeMeetingRequest{ProposedDate: at}); err != nil {
			t.Errorf("propose at %s exactly one buffer away: %v", at.Format("15:04"), err)
		}
	}
}

func TestMeeting_CounterpartyRule(t *testing.T) {
	t.Run("mentor proposes, student approves", func(t *testing.T) {
		f := newMeetingFixture(t)
		m := f.propose(t, f.mentor, tomorrow(9, 0))

		if _, err := f.svc.Approve(actorOf(f.mentor), m.ID); !response.IsForbidden(err) {
			t.Errorf("mentor approving own proposal: expected forbidden, got %v", err)
		}
		view, err := f.svc.Approve(actorOf(f.s2), m.ID)
		if err != nil {
			t.Fatalf("student approval error = %v", err)
		}
		if view.Status != models.MeetingStatusAccepted || view.AwaitingApprovalFrom != AwaitingNone {
			t.Errorf("after approval: %s / %s", view.Status, view.AwaitingApprovalFrom)
		}
	})

	t.Run("student proposes, mentor approves", func(t *testing.T) {
		f := newMeetingFixture(t)
		m := f.propose(t, f.s1, tomorrow(9, 0))

		if _, err := f.svc.Approve(actorOf(f.s1), m.ID); !response.IsForbidden(err) {
			t.Errorf("proposer approving: expected forbidden, got %v", err)
		}
		if _, err := f.svc.Approve(actorOf(f.s2), m.ID); !response.IsForbidden(err) {
			t.Errorf("co-student approving a student proposal: expected forbidden, got %v", err)
		}
		if _, err := f.svc.Approve(actorOf(f.mentor), m.ID); err != nil {
			t.Fatalf("mentor approval error = %v", err)
		}
		if got := f.status(t, m.ID); got != models.MeetingStatusAccepted {
			t.Errorf("stored status = %s", got)
		}
	})

	t.Run("outsider", func(t *testing.T) {
		f := newMeetingFixture(t)
		m := f.propose(t, f.s1, tomorrow(9, 0))
		hod := createUser(t, f.db, models.RoleHOD, "hod")
		if _, err := f.svc.Decline(actorOf(hod), m.ID); !response.IsForbidden(err) {
			t.Errorf("non-participant: expected forbidden, got %v", err)
		}
	})
}

func TestMeeting_DeclineClearsReason(t *testing.T) {
	f := newMeetingFixture(t)
	m := f.propose(t, f.s1, tomorrow(9, 0))
	f.db.Model(&models.Meeting{}).Where("id = ?", m.ID).Update("reschedule_reason", "clash")

	view, err := f.svc.Decline(actorOf(f.mentor), m.ID)
	if err != nil {
		t.Fatalf("Decline() error = %v", err)
	}
	if view.Status != models.MeetingStatusRejected || view.RescheduleReason != "" {
		t.Errorf("declined = %s reason=%q", view.Status, view.RescheduleReason)
	}
	if _, err := f.svc.Approve(actorOf(f.mentor), m.ID); !response.IsConflict(err) {
		t.Errorf("answering a declined meeting: expected conflict, got %v", err)
	}
	if updates := f.notifier.ofType(EventMeetingUpdated); len(updates) != 1 {
		t.Errorf("meeting.updated notifications = %d", len(updates))
	}
}

func TestMeeting_PastPendingExpiresOnRead(t *testing.T) {
	f := newMeetingFixture(t)
	m := insertMeeting(t, f.db, f.project, f.s1.ID, baseNow.Add(-2*time.Hour), models.MeetingStatusPending)

	view, err := f.svc.Get(actorOf(f.mentor), m.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Status != models.MeetingStatusExpired || view.ActionLabel != ActionExpired {
		t.Errorf("read returned %s / %s", view.Status, view.ActionLabel)
	}
	if got := f.status(t, m.ID); got != models.MeetingStatusExpired {
		t.Errorf("stored status = %s, expected expired", got)
	}

	if _, err := f.svc.Approve(actorOf(f.mentor), m.ID); !response.IsConflict(err) {
		t.Errorf("approving an expired meeting: expected conflict, got %v", err)
	}
	if _, err := f.svc.Decline(actorOf(f.mentor), m.ID); !response.IsConflict(err) {
		t.Errorf("declining an expired meeting: expected conflict, got %v", err)
	}
}

func TestMeeting_ApproveMaterializesFirst(t *testing.T) {
	f := newMeetingFixture(t)
	m := f.propose(t, f.s1, tomorrow(9, 0))

	// Time moves past the meeting without any read in between.
	f.svc.SetClock(fixedClock(tomorrow(9, 1)))
	if _, err := f.svc.Approve(actorOf(f.mentor), m.ID); !response.IsConflict(err) {
		t.Errorf("expected conflict once the date passed, got %v", err)
	}
	if got := f.status(t, m.ID); got != models.MeetingStatusExpired {
		t.Errorf("stored status = %s", got)
	}
}

func TestMaterializeMeetings_Idempotent(t *testing.T) {
	f := newMeetingFixture(t)
	past := baseNow.Add(-time.Hour)
	accepted := insertMeeting(t, f.db, f.project, f.s1.ID, past, models.MeetingStatusAccepted)
	pending := insertMeeting(t, f.db, f.project, f.s1.ID, past.Add(-time.Hour), models.MeetingStatusPending)
	rejected := insertMeeting(t, f.db, f.project, f.s1.ID, past.Add(-2*time.Hour), models.MeetingStatusRejected)
	future := insertMeeting(t, f.db, f.project, f.s1.ID, tomorrow(9, 0), models.MeetingStatusAccepted)

	changed, err := MaterializeMeetings(f.db, baseNow)
	if err != nil {
		t.Fatalf("MaterializeMeetings() error = %v", err)
	}
	if changed != 2 {
		t.Errorf("changed = %d, expected 2", changed)
	}

	want := map[uint]string{
		accepted.ID: models.MeetingStatusHeld,
		pending.ID:  models.MeetingStatusExpired,
		rejected.ID: models.MeetingStatusRejected,
		future.ID:   models.MeetingStatusAccepted,
	}
	check := func() {
		for id, status := range want {
			if got := f.status(t, id); got != status {
				t.Errorf("meeting %d status = %s, expected %s", id, got, status)
			}
		}
	}
	check()

	again, err := MaterializeMeetings(f.db, baseNow)
	if err != nil || again != 0 {
		t.Errorf("second pass changed %d rows (err=%v)", again, err)
	}
	check()
}

func TestMeeting_Reschedule(t *testing.T) {
	f := newMeetingFixture(t)
	m := f.propose(t, f.s1, tomorrow(9, 0))
	if _, err := f.svc.Approve(actorOf(f.mentor), m.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	view, err := f.svc.Reschedule(actorOf(f.mentor), m.ID, &RescheduleMeetingRequest{
		ProposedDate: tomorrow(11, 0),
		Reason:       " exam clash ",
	})
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
	if view.Status != models.MeetingStatusPending || view.ProposerID != f.mentor.ID {
		t.Errorf("rescheduled = %s proposer=%d", view.Status, view.ProposerID)
	}
	if !view.ProposedDate.Equal(tomorrow(11, 0)) || view.RescheduleReason != "exam clash" {
		t.Errorf("rescheduled date=%v reason=%q", view.ProposedDate, view.RescheduleReason)
	}
	if view.AwaitingApprovalFrom != AwaitingStudent {
		t.Errorf("after mentor reschedule, awaiting %s", view.AwaitingApprovalFrom)
	}

	// The student side now answers.
	accepted, err := f.svc.Approve(actorOf(f.s2), m.ID)
	if err != nil {
		t.Fatalf("student approval after reschedule: %v", err)
	}
	if accepted.RescheduleReason != "" {
		t.Error("approval should clear the reschedule reason")
	}
}

func TestMeeting_RescheduleGuards(t *testing.T) {
	f := newMeetingFixture(t)
	stranger := createUser(t, f.db, models.RoleMentor, "stranger")
	declined := insertMeeting(t, f.db, f.project, f.s1.ID, tomorrow(9, 0), models.MeetingStatusRejected)
	held := insertMeeting(t, f.db, f.project, f.s1.ID, baseNow.Add(-time.Hour), models.MeetingStatusAccepted)
	open := insertMeeting(t, f.db, f.project, f.s1.ID, tomorrow(13, 0), models.MeetingStatusPending)

	tests := []struct {
		name  string
		actor *models.User
		id    uint
		at    time.Time
		check func(error) bool
	}{
		{"declined meeting", f.s1, declined.ID, tomorrow(15, 0), response.IsConflict},
		{"date already passed", f.s1, held.ID, tomorrow(15, 0), response.IsConflict},
		{"new date in the past", f.s1, open.ID, baseNow.Add(-time.Minute), response.IsBadRequest},
		{"new date outside window", f.s1, open.ID, tomorrow(18, 0), response.IsBadRequest},
		{"not a participant", stranger, open.ID, tomorrow(15, 0), response.IsForbidden},
		{"missing meeting", f.s1, 9999, tomorrow(15, 0), response.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reschedule(actorOf(tt.actor), tt.id, &RescheduleMeetingRequest{ProposedDate: tt.at})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	if got := f.status(t, held.ID); got != models.MeetingStatusHeld {
		t.Errorf("past accepted meeting should be held, got %s", got)
	}
}

// Propose checks every meeting of the mentor; reschedule only accepted ones.
func TestMeeting_ConflictScopeDiffersBetweenProposeAndReschedule(t *testing.T) {
	f := newMeetingFixture(t)
	s3 := createUser(t, f.db, models.RoleStudent, "cy")
	otherProject := createProject(t, f.db, f.mentor, s3)

	insertMeeting(t, f.db, otherProject, s3.ID, tomorrow(11, 0), models.MeetingStatusPending)
	insertMeeting(t, f.db, otherProject, s3.ID, tomorrow(14, 0), models.MeetingStatusAccepted)
	mine := insertMeeting(t, f.db, f.project, f.s1.ID, tomorrow(9, 0), models.MeetingStatusPending)

	if _, err := f.svc.Propose(actorOf(f.s1), f.project.ID, &ProposeMeetingRequest{ProposedDate: tomorrow(11, 10)}); !response.IsConflict(err) {
		t.Errorf("propose near a pending meeting: expected conflict, got %v", err)
	}
	if _, err := f.svc.Reschedule(actorOf(f.s1), mine.ID, &RescheduleMeetingRequest{ProposedDate: tomorrow(14, 10)}); !response.IsConflict(err) {
		t.Errorf("reschedule near an accepted meeting: expected conflict, got %v", err)
	}
	if _, err := f.svc.Reschedule(actorOf(f.s1), mine.ID, &RescheduleMeetingRequest{ProposedDate: tomorrow(11, 10)}); err != nil {
		t.Errorf("reschedule near a pending meeting should pass: %v", err)
	}
}

func TestMeeting_RescheduleIgnoresItself(t *testing.T) {
	f := newMeetingFixture(t)
	m := insertMeeting(t, f.db, f.project, f.s1.ID, tomorrow(9, 0), models.MeetingStatusAccepted)

	if _, err := f.svc.Reschedule(actorOf(f.s1), m.ID, &RescheduleMeetingRequest{ProposedDate: tomorrow(9, 15)}); err != nil {
		t.Errorf("moving a meeting by 15 minutes should not conflict with itself: %v", err)
	}
}

func TestMeeting_ListByProjectMaterializes(t *testing.T) {
	f := newMeetingFixture(t)
	insertMeeting(t, f.db, f.project, f.s1.ID, baseNow.Add(-time.Hour), models.MeetingStatusAccepted)
	f.propose(t, f.s1, tomorrow(9, 0))

	views, err := f.svc.ListByProject(actorOf(f.mentor), f.project.ID)
	if err != nil {
		t.Fatalf("ListByProject() error = %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("meetings = %d, expected 2", len(views))
	}
	if views[0].Status != models.MeetingStatusPending || views[0].ActionLabel != ActionNeedsYourResponse {
		t.Errorf("newest = %s / %s", views[0].Status, views[0].ActionLabel)
	}
	if views[1].Status != models.MeetingStatusHeld {
		t.Errorf("past accepted meeting listed as %s", views[1].Status)
	}

	stranger := createUser(t, f.db, models.RoleStudent, "eve")
	if _, err := f.svc.ListByProject(actorOf(stranger), f.project.ID); !response.IsForbidden(err) {
		t.Errorf("stranger listing: expected forbidden, got %v", err)
	}
}

func TestMeeting_HolidayCalendar(t *testing.T) {
	cfg := config.DefaultPortalConfig()
	cfg.HolidayCountry = CalendarWeekdays
	policy, err := NewSchedulePolicy(cfg, nil)
	if err != nil {
		t.Fatalf("NewSchedulePolicy() error = %v", err)
	}

	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	if err := policy.CheckSlot(saturday); !response.IsBadRequest(err) {
		t.Errorf("weekend slot: expected bad request, got %v", err)
	}
	if err := policy.CheckSlot(tomorrow(10, 0)); err != nil {
		t.Errorf("weekday slot: %v", err)
	}

	cfg.HolidayCountry = "XX"
	if _, err := NewSchedulePolicy(cfg, nil); err == nil {
		t.Error("unknown holiday country should be refused")
	}
}

func TestSchedulePolicy_Timezone(t *testing.T) {
	cfg := config.DefaultPortalConfig()
	cfg.Timezone = "Africa/Johannesburg"
	policy, err := NewSchedulePolicy(cfg, nil)
	if err != nil {
		t.Fatalf("NewSchedulePolicy() error = %v", err)
	}

	// 06:30 UTC is 08:30 in Johannesburg (UTC+2).
	if !policy.InWindow(tomorrow(6, 30)) {
		t.Error("08:30 local should be inside the window")
	}
	if policy.InWindow(tomorrow(15, 0)) {
		t.Error("17:00 local should be outside the window")
	}
}

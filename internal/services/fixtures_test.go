package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/models"
	"gorm.io/gorm"
)

// Monday 2 March 2026, 10:00 UTC.
var baseNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

var userSeq int

func createUser(t *testing.T, db *gorm.DB, role, first string) *models.User {
	t.Helper()
	userSeq++
	u := &models.User{
		IDNumber:  fmt.Sprintf("%s-%04d", role, userSeq),
		Email:     fmt.Sprintf("%s%d@example.edu", first, userSeq),
		FirstName: first,
		LastName:  "Test",
		Role:      role,
		IsActive:  true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func actorOf(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var u models.User
	if err := db.First(&u, id).Error; err != nil {
		t.Fatalf("reload user %d: %v", id, err)
	}
	return &u
}

func reloadProposal(t *testing.T, db *gorm.DB, id uint) *models.Proposal {
	t.Helper()
	var p models.Proposal
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("reload proposal %d: %v", id, err)
	}
	return &p
}

// createProject inserts an Approved proposal and its project directly,
// bypassing the approval flow.
func createProject(t *testing.T, db *gorm.DB, mentor *models.User, students ...*models.User) *models.Project {
	t.Helper()
	approvedAt := baseNow.Add(-24 * time.Hour)
	proposal := &models.Proposal{
		Name:              "Test Project",
		AuthorID:          students[0].ID,
		SuggestedMentorID: uintPtr(mentor.ID),
		Status:            models.ProposalStatusApproved,
		ReviewDecision:    ReviewDecisionApproved,
		SubmittedAt:       &approvedAt,
		ReviewedAt:        &approvedAt,
	}
	if len(students) > 1 {
		proposal.CoStudentID = uintPtr(students[1].ID)
	}
	if err := db.Create(proposal).Error; err != nil {
		t.Fatalf("create approved proposal: %v", err)
	}

	p := &models.Project{
		Name:       proposal.Name,
		Status:     models.ProjectStatusProposal,
		StudentID:  students[0].ID,
		MentorID:   mentor.ID,
		ProposalID: proposal.ID,
	}
	if len(students) > 1 {
		p.CoStudentID = uintPtr(students[1].ID)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, s := range students {
		if err := db.Model(&models.User{}).Where("id = ?", s.ID).
			Updates(map[string]interface{}{"project_id": p.ID, "mentor_id": mentor.ID}).Error; err != nil {
			t.Fatalf("assign student: %v", err)
		}
	}
	return p
}

// insertMeeting writes a meeting row as-is, without validation or materialization.
func insertMeeting(t *testing.T, db *gorm.DB, project *models.Project, proposer uint, at time.Time, status string) *models.Meeting {
	t.Helper()
	var attendees []models.User
	if err := db.Where("id IN ?", append(project.StudentIDs(), project.MentorID)).Find(&attendees).Error; err != nil {
		t.Fatalf("load attendees: %v", err)
	}
	m := &models.Meeting{
		ProjectID:    project.ID,
		ProposerID:   proposer,
		MentorID:     project.MentorID,
		ProposedDate: at,
		Status:       status,
		Attendees:    attendees,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("insert meeting: %v", err)
	}
	return m
}

type sentEvent struct {
	event   Event
	userIDs []uint
	role    string
	all     bool
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (r *recordingNotifier) NotifyUsers(event Event, userIDs ...uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{event: event, userIDs: userIDs})
}

func (r *recordingNotifier) NotifyRole(event Event, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{event: event, role: role})
}

func (r *recordingNotifier) Broadcast(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{event: event, all: true})
}

func (r *recordingNotifier) ofType(eventType string) []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEvent
	for _, s := range r.sent {
		if s.event.Type == eventType {
			out = append(out, s)
		}
	}
	return out
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

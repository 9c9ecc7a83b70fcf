package models

import "time"

const (
	ProposalStatusDraft    = "Draft"
	ProposalStatusPending  = "Pending"
	ProposalStatusApproved = "Approved"
	ProposalStatusRejected = "Rejected"
)

// StudentSnapshot is a copy of a student's identity taken when a proposal is
// saved or submitted. It is never refreshed from the live user afterwards.
type StudentSnapshot struct {
	IDNumber  string `gorm:"size:50" json:"id_number"`
	FirstName string `gorm:"size:100" json:"first_name"`
	LastName  string `gorm:"size:100" json:"last_name"`
	Email     string `gorm:"size:255" json:"email"`
}

func SnapshotOf(u *User) StudentSnapshot {
	if u == nil {
		return StudentSnapshot{}
	}
	return StudentSnapshot{
		IDNumber:  u.IDNumber,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}

// Proposal is a student-authored project pitch reviewed by the HOD.
//
// PendingAuthorID and PendingCoStudentID mirror AuthorID/CoStudentID only
// while the proposal is Pending and are NULL otherwise. Their unique indexes
// enforce "one Pending proposal per author / per co-student" in the database
// on every supported driver, since NULLs never collide. There is no save
// hook: every status change must go through SetStatus, or, for column
// updates, set pending_author_id and pending_co_student_id alongside status.
type Proposal struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	Name              string `gorm:"size:200" json:"name"`
	Background        string `gorm:"type:text" json:"background"`
	Objectives        string `gorm:"type:text" json:"objectives"`
	MarketReview      string `gorm:"type:text" json:"market_review"`
	Novelty           string `gorm:"type:text" json:"novelty"`
	AuthorID          uint   `gorm:"index;not null" json:"author_id"`
	CoStudentID       *uint  `gorm:"index" json:"co_student_id"`
	SuggestedMentorID *uint  `gorm:"index" json:"suggested_mentor_id"`
	AttachmentID      *uint  `json:"attachment_id"`
	Attachment        *File  `gorm:"foreignKey:AttachmentID" json:"attachment,omitempty"`
	Status            string `gorm:"size:20;index;default:Draft" json:"status"`

	AuthorSnapshot    StudentSnapshot `gorm:"embedded;embeddedPrefix:author_snap_" json:"author_snapshot"`
	CoStudentSnapshot StudentSnapshot `gorm:"embedded;embeddedPrefix:co_student_snap_" json:"co_student_snapshot"`

	PendingAuthorID    *uint `gorm:"uniqueIndex:idx_proposals_pending_author" json:"-"`
	PendingCoStudentID *uint `gorm:"uniqueIndex:idx_proposals_pending_co_student" json:"-"`

	SubmittedAt     *time.Time `json:"submitted_at"`
	ReviewedByID    *uint      `json:"reviewed_by_id"`
	ReviewDecision  string     `gorm:"size:20" json:"review_decision,omitempty"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	// InvalidatedByID points at the proposal whose approval auto-rejected this one.
	InvalidatedByID *uint `gorm:"index" json:"invalidated_by_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Proposal) TableName() string { return "proposals" }

// SetStatus changes the status and keeps the pending uniqueness keys in sync.
func (p *Proposal) SetStatus(status string) {
	p.Status = status
	p.SyncPendingKeys()
}

func (p *Proposal) SyncPendingKeys() {
	if p.Status != ProposalStatusPending {
		p.PendingAuthorID = nil
		p.PendingCoStudentID = nil
		return
	}
	author := p.AuthorID
	p.PendingAuthorID = &author
	if p.CoStudentID != nil {
		co := *p.CoStudentID
		p.PendingCoStudentID = &co
	} else {
		p.PendingCoStudentID = nil
	}
}

// StudentIDs returns the author followed by the co-student, if any.
func (p *Proposal) StudentIDs() []uint {
	ids := []uint{p.AuthorID}
	if p.CoStudentID != nil {
		ids = append(ids, *p.CoStudentID)
	}
	return ids
}

// Involves reports whether userID is the author or the co-student.
func (p *Proposal) Involves(userID uint) bool {
	for _, id := range p.StudentIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

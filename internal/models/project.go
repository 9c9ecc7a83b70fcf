package models

import "time"

const (
	ProjectStatusProposal      = "proposal"
	ProjectStatusSpecification = "specification"
	ProjectStatusCode          = "code"
	ProjectStatusPresentation  = "presentation"
	ProjectStatusDone          = "done"
)

// ProjectStatuses lists project phases in order.
var ProjectStatuses = []string{
	ProjectStatusProposal,
	ProjectStatusSpecification,
	ProjectStatusCode,
	ProjectStatusPresentation,
	ProjectStatusDone,
}

func ValidProjectStatus(status string) bool {
	return projectStatusIndex(status) >= 0
}

func projectStatusIndex(status string) int {
	for i, s := range ProjectStatuses {
		if s == status {
			return i
		}
	}
	return -1
}

// NextProjectStatus returns the phase after status, or "" when status is
// the last phase or unknown.
func NextProjectStatus(status string) string {
	i := projectStatusIndex(status)
	if i < 0 || i == len(ProjectStatuses)-1 {
		return ""
	}
	return ProjectStatuses[i+1]
}

// ProjectSnapshot freezes the people involved at approval time.
type ProjectSnapshot struct {
	StudentName    string    `gorm:"size:200" json:"student_name"`
	CoStudentName  string    `gorm:"size:200" json:"co_student_name,omitempty"`
	MentorName     string    `gorm:"size:200" json:"mentor_name"`
	ApprovedAt     time.Time `json:"approved_at"`
	ApprovedByID   uint      `json:"approved_by_id"`
	ApprovedByName string    `gorm:"size:200" json:"approved_by_name"`
}

// Project is created only by approving a proposal.
type Project struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Background  string          `gorm:"type:text" json:"background"`
	Objectives  string          `gorm:"type:text" json:"objectives"`
	Status      string          `gorm:"size:30;index;default:proposal" json:"status"`
	StudentID   uint            `gorm:"index;not null" json:"student_id"`
	CoStudentID *uint           `gorm:"index" json:"co_student_id"`
	MentorID    uint            `gorm:"index;not null" json:"mentor_id"`
	ProposalID  uint            `gorm:"uniqueIndex;not null" json:"proposal_id"`
	Snapshot    ProjectSnapshot `gorm:"embedded;embeddedPrefix:snap_" json:"snapshot"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) StudentIDs() []uint {
	ids := []uint{p.StudentID}
	if p.CoStudentID != nil {
		ids = append(ids, *p.CoStudentID)
	}
	return ids
}

func (p *Project) HasStudent(userID uint) bool {
	for _, id := range p.StudentIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

// IsMember reports whether userID is one of the students or the mentor.
func (p *Project) IsMember(userID uint) bool {
	return p.MentorID == userID || p.HasStudent(userID)
}

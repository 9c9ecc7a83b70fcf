package services

import (
	"errors"
	"strings"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

const (
	ReasonStudentNotFound  = "student_not_found"
	ReasonNotAStudent      = "not_a_student"
	ReasonAlreadyInProject = "already_in_project"
	ReasonPendingProposal  = "pending_proposal"
)

// Eligibility is the answer to "may this student author or co-author a proposal".
type Eligibility struct {
	StudentID uint   `json:"student_id"`
	Eligible  bool   `json:"eligible"`
	Reason    string `json:"reason,omitempty"`
}

// Err converts an ineligible result into a conflict error carrying the reason.
func (e *Eligibility) Err(subject string) error {
	if e.Eligible {
		return nil
	}
	return response.NewConflict(subject + " is not eligible: " + strings.ReplaceAll(e.Reason, "_", " ")).WithReason(e.Reason)
}

type EligibilityService struct {
	db *gorm.DB
}

func NewEligibilityService(db *gorm.DB) *EligibilityService {
	return &EligibilityService{db: db}
}

// Check never fails for a missing student; that is reported as a reason.
// excludeProposalID skips the caller's own proposal, 0 excludes nothing.
func (s *EligibilityService) Check(studentID, excludeProposalID uint) (*Eligibility, error) {
	return checkEligibility(s.db, studentID, excludeProposalID)
}

func checkEligibility(db *gorm.DB, studentID, excludeProposalID uint) (*Eligibility, error) {
	result := &Eligibility{StudentID: studentID}

	var user models.User
	if err := db.First(&user, studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Reason = ReasonStudentNotFound
			return result, nil
		}
		return nil, err
	}
	if !user.IsStudent() {
		result.Reason = ReasonNotAStudent
		return result, nil
	}
	if user.ProjectID != nil {
		result.Reason = ReasonAlreadyInProject
		return result, nil
	}

	var pending int64
	query := db.Model(&models.Proposal{}).
		Where("status = ?", models.ProposalStatusPending).
		Where("author_id = ? OR co_student_id = ?", studentID, studentID)
	if excludeProposalID != 0 {
		query = query.Where("id <> ?", excludeProposalID)
	}
	if err := query.Count(&pending).Error; err != nil {
		return nil, err
	}
	if pending > 0 {
		result.Reason = ReasonPendingProposal
		return result, nil
	}

	result.Eligible = true
	return result, nil
}

// ListEligibleCoStudents returns students the actor could pick as co-student.
func (s *EligibilityService) ListEligibleCoStudents(actor Actor, search string) ([]models.User, error) {
	pendingAuthors := s.db.Model(&models.Proposal{}).
		Select("author_id").
		Where("status = ?", models.ProposalStatusPending)
	pendingCoStudents := s.db.Model(&models.Proposal{}).
		Select("co_student_id").
		Where("status = ? AND co_student_id IS NOT NULL", models.ProposalStatusPending)

	query := s.db.Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleStudent, true).
		Where("project_id IS NULL").
		Where("id <> ?", actor.ID).
		Where("id NOT IN (?)", pendingAuthors).
		Where("id NOT IN (?)", pendingCoStudents)

	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		query = query.Where("first_name LIKE ? OR last_name LIKE ? OR id_number LIKE ? OR email LIKE ?", like, like, like, like)
	}

	var users []models.User
	if err := query.Order("last_name, first_name").Limit(100).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

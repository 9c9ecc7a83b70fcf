package services

import (
	"fmt"
	"strings"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/logger"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

const (
	ReviewDecisionApproved     = "approved"
	ReviewDecisionRejected     = "rejected"
	ReviewDecisionAutoRejected = "auto_rejected"
)

type ProposalService struct {
	clock
	db       *gorm.DB
	notifier Notifier
}

func NewProposalService(db *gorm.DB, notifier Notifier) *ProposalService {
	return &ProposalService{db: db, notifier: orNop(notifier)}
}

// ProposalInput carries the editable content of a proposal. A save replaces
// every field, so a nil reference clears it.
type ProposalInput struct {
	Name              string `json:"name" binding:"max=200"`
	Background        string `json:"background"`
	Objectives        string `json:"objectives"`
	MarketReview      string `json:"market_review"`
	Novelty           string `json:"novelty"`
	CoStudentID       *uint  `json:"co_student_id"`
	SuggestedMentorID *uint  `json:"suggested_mentor_id"`
	AttachmentID      *uint  `json:"attachment_id"`
}

type SaveDraftRequest struct {
	ID uint `json:"id"`
	ProposalInput
}

type ApproveProposalRequest struct {
	MentorID *uint `json:"mentor_id"`
}

type RejectProposalRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ProposalListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status" binding:"omitempty,oneof=Draft Pending Approved Rejected"`
}

type ProposalListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.Proposal `json:"items"`
}

// ApprovalResult is everything an approval changed.
type ApprovalResult struct {
	Proposal     *models.Proposal `json:"proposal"`
	Project      *models.Project  `json:"project"`
	AutoRejected []uint           `json:"auto_rejected"`
}

// SaveDraft creates or updates the actor's draft. Without an ID the author's
// latest draft is reused so repeated saves never pile up drafts.
func (s *ProposalService) SaveDraft(actor Actor, req *SaveDraftRequest) (*models.Proposal, error) {
	if !actor.IsStudent() {
		return nil, response.NewForbidden("only students can author proposals")
	}

	var proposal models.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.ID != 0 {
			if err := tx.First(&proposal, req.ID).Error; err != nil {
				return notFoundOr(err, "proposal not found")
			}
			if proposal.AuthorID != actor.ID {
				return response.NewForbidden("proposal belongs to another student")
			}
			if proposal.Status != models.ProposalStatusDraft {
				return response.NewConflict("only draft proposals can be edited")
			}
		} else {
			err := tx.Where("author_id = ? AND status = ?", actor.ID, models.ProposalStatusDraft).
				Order("id DESC").First(&proposal).Error
			if err != nil && !isRecordNotFound(err) {
				return err
			}
			if err != nil {
				proposal = models.Proposal{AuthorID: actor.ID, Status: models.ProposalStatusDraft}
			}
		}

		if err := s.applyInput(tx, actor, &proposal, &req.ProposalInput); err != nil {
			return err
		}
		if err := s.snapshotStudents(tx, &proposal); err != nil {
			return err
		}
		proposal.SetStatus(models.ProposalStatusDraft)

		if err := tx.Save(&proposal).Error; err != nil {
			return err
		}
		return linkAttachment(tx, &proposal)
	})
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// Submit moves a Draft or Rejected proposal to Pending. A non-nil input is
// applied first, which is how a rejected proposal is edited and resubmitted.
func (s *ProposalService) Submit(actor Actor, id uint, input *ProposalInput) (*models.Proposal, error) {
	if !actor.IsStudent() {
		return nil, response.NewForbidden("only students can submit proposals")
	}

	var proposal models.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&proposal, id).Error; err != nil {
			return notFoundOr(err, "proposal not found")
		}
		if proposal.AuthorID != actor.ID {
			return response.NewForbidden("proposal belongs to another student")
		}
		if proposal.Status != models.ProposalStatusDraft && proposal.Status != models.ProposalStatusRejected {
			return response.NewConflict(fmt.Sprintf("a %s proposal cannot be submitted", strings.ToLower(proposal.Status)))
		}

		if input != nil {
			if err := s.applyInput(tx, actor, &proposal, input); err != nil {
				return err
			}
		}
		if err := requireSubmittable(&proposal); err != nil {
			return err
		}

		author, err := checkEligibility(tx, proposal.AuthorID, proposal.ID)
		if err != nil {
			return err
		}
		if err := author.Err("author"); err != nil {
			return err
		}
		if proposal.CoStudentID != nil {
			co, err := checkEligibility(tx, *proposal.CoStudentID, proposal.ID)
			if err != nil {
				return err
			}
			if err := co.Err("co-student"); err != nil {
				return err
			}
		}
		if err := s.snapshotStudents(tx, &proposal); err != nil {
			return err
		}

		now := s.Now()
		proposal.SubmittedAt = &now
		proposal.ReviewedByID = nil
		proposal.ReviewDecision = ""
		proposal.RejectionReason = ""
		proposal.ReviewedAt = nil
		proposal.InvalidatedByID = nil
		proposal.SetStatus(models.ProposalStatusPending)

		if err := tx.Save(&proposal).Error; err != nil {
			if isDuplicateKey(err) {
				return response.NewConflict("a student on this proposal already has a pending proposal").WithReason(ReasonPendingProposal)
			}
			return err
		}
		return linkAttachment(tx, &proposal)
	})
	if err != nil {
		return nil, err
	}

	now := s.Now()
	s.notifier.NotifyRole(newEvent(EventProposalPending, proposal.ID, now), models.RoleHOD)
	s.notifier.Broadcast(newEvent(EventCoStudentsInvalidated, proposal.ID, now))
	return &proposal, nil
}

// approvalPlan is the full set of reads an approval depends on, gathered
// before anything is written.
type approvalPlan struct {
	proposal    models.Proposal
	mentor      models.User
	students    []models.User
	approver    models.User
	competitors []models.Proposal
}

// Approve turns a Pending proposal into a project. The project, the proposal
// flip, the student assignment and the cascade rejection of competing
// Pending proposals commit together or not at all.
func (s *ProposalService) Approve(actor Actor, id uint, mentorOverride *uint) (*ApprovalResult, error) {
	if !actor.IsHOD() {
		return nil, response.NewForbidden("only the HOD can approve proposals")
	}

	var result *ApprovalResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		plan, err := s.planApproval(tx, actor, id, mentorOverride)
		if err != nil {
			return err
		}
		result, err = s.applyApproval(tx, actor, plan)
		return err
	})
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		logger.Error().Err(err).Uint("proposal_id", id).Uint("user_id", actor.ID).Msg("proposal approval rolled back")
		return nil, response.NewServerError("approval failed; no changes were applied")
	}

	s.notifyApproval(result)
	return result, nil
}

func (s *ProposalService) planApproval(tx *gorm.DB, actor Actor, id uint, mentorOverride *uint) (*approvalPlan, error) {
	plan := &approvalPlan{}

	if err := tx.First(&plan.proposal, id).Error; err != nil {
		return nil, notFoundOr(err, "proposal not found")
	}
	if plan.proposal.Status != models.ProposalStatusPending {
		return nil, response.NewConflict("only pending proposals can be approved")
	}

	mentorID := mentorOverride
	if mentorID == nil || *mentorID == 0 {
		mentorID = plan.proposal.SuggestedMentorID
	}
	if mentorID == nil || *mentorID == 0 {
		return nil, response.NewBadRequest("a mentor must be chosen: the proposal has no suggested mentor")
	}
	if err := tx.First(&plan.mentor, *mentorID).Error; err != nil {
		return nil, notFoundOr(err, "mentor not found")
	}
	if !plan.mentor.IsMentor() {
		return nil, response.NewBadRequest("assigned user is not a mentor")
	}

	studentIDs := plan.proposal.StudentIDs()
	if err := tx.Where("id IN ?", studentIDs).Find(&plan.students).Error; err != nil {
		return nil, err
	}
	if len(plan.students) != len(studentIDs) {
		return nil, response.NewNotFound("a student on this proposal no longer exists")
	}
	for _, st := range plan.students {
		if st.ProjectID != nil {
			return nil, response.NewConflict(fmt.Sprintf("student %s is already assigned to a project", st.IDNumber)).
				WithReason(ReasonAlreadyInProject)
		}
	}

	if err := tx.First(&plan.approver, actor.ID).Error; err != nil {
		return nil, notFoundOr(err, "approver not found")
	}

	if err := tx.Where("status = ? AND id <> ?", models.ProposalStatusPending, plan.proposal.ID).
		Where("author_id IN ? OR co_student_id IN ?", studentIDs, studentIDs).
		Find(&plan.competitors).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *ProposalService) applyApproval(tx *gorm.DB, actor Actor, plan *approvalPlan) (*ApprovalResult, error) {
	now := s.Now()
	proposal := plan.proposal

	project := &models.Project{
		Name:        proposal.Name,
		Background:  proposal.Background,
		Objectives:  proposal.Objectives,
		Status:      models.ProjectStatusProposal,
		StudentID:   proposal.AuthorID,
		CoStudentID: proposal.CoStudentID,
		MentorID:    plan.mentor.ID,
		ProposalID:  proposal.ID,
		Snapshot: models.ProjectSnapshot{
			MentorName:     plan.mentor.FullName(),
			ApprovedAt:     now,
			ApprovedByID:   plan.approver.ID,
			ApprovedByName: plan.approver.FullName(),
		},
	}
	for _, st := range plan.students {
		if st.ID == proposal.AuthorID {
			project.Snapshot.StudentName = st.FullName()
		} else {
			project.Snapshot.CoStudentName = st.FullName()
		}
	}
	if err := tx.Create(project).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, response.NewConflict("proposal already has a project")
		}
		return nil, err
	}

	flip := tx.Model(&models.Proposal{}).
		Where("id = ? AND status = ?", proposal.ID, models.ProposalStatusPending).
		Updates(map[string]interface{}{
			"status":                models.ProposalStatusApproved,
			"pending_author_id":     nil,
			"pending_co_student_id": nil,
			"reviewed_by_id":        actor.ID,
			"review_decision":       ReviewDecisionApproved,
			"reviewed_at":           now,
		})
	if flip.Error != nil {
		return nil, flip.Error
	}
	if flip.RowsAffected != 1 {
		return nil, response.NewConflict("proposal was reviewed concurrently")
	}

	studentIDs := proposal.StudentIDs()
	assign := tx.Model(&models.User{}).
		Where("id IN ? AND project_id IS NULL", studentIDs).
		Updates(map[string]interface{}{
			"project_id": project.ID,
			"mentor_id":  plan.mentor.ID,
		})
	if assign.Error != nil {
		return nil, assign.Error
	}
	if assign.RowsAffected != int64(len(studentIDs)) {
		return nil, response.NewConflict("a student was assigned to another project concurrently").
			WithReason(ReasonAlreadyInProject)
	}

	autoRejected := make([]uint, 0, len(plan.competitors))
	for _, c := range plan.competitors {
		autoRejected = append(autoRejected, c.ID)
	}
	if len(autoRejected) > 0 {
		reason := fmt.Sprintf("Automatically rejected: a student on this proposal joined project %q when proposal #%d was approved.",
			proposal.Name, proposal.ID)
		if err := tx.Model(&models.Proposal{}).
			Where("id IN ? AND status = ?", autoRejected, models.ProposalStatusPending).
			Updates(map[string]interface{}{
				"status":                models.ProposalStatusRejected,
				"pending_author_id":     nil,
				"pending_co_student_id": nil,
				"reviewed_by_id":        actor.ID,
				"review_decision":       ReviewDecisionAutoRejected,
				"rejection_reason":      reason,
				"reviewed_at":           now,
				"invalidated_by_id":     proposal.ID,
			}).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.First(&proposal, proposal.ID).Error; err != nil {
		return nil, err
	}
	return &ApprovalResult{Proposal: &proposal, Project: project, AutoRejected: autoRejected}, nil
}

func (s *ProposalService) notifyApproval(result *ApprovalResult) {
	now := s.Now()
	project := result.Project

	approved := newEvent(EventProposalApproved, result.Proposal.ID, now)
	approved.ProjectID = project.ID
	s.notifier.NotifyUsers(approved, append(project.StudentIDs(), project.MentorID)...)

	updated := newEvent(EventProjectUpdated, project.ID, now)
	updated.ProjectID = project.ID
	s.notifier.NotifyUsers(updated, append(project.StudentIDs(), project.MentorID)...)

	if len(result.AutoRejected) > 0 {
		LogInfo(LogEntry{
			Module:  "Proposals",
			Action:  "Cascade Reject",
			Message: fmt.Sprintf("approval of proposal %d auto-rejected %d competing proposal(s)", result.Proposal.ID, len(result.AutoRejected)),
			UserID:  result.Proposal.ReviewedByID,
			Role:    models.RoleHOD,
			Extra:   map[string]interface{}{"proposal_id": result.Proposal.ID, "project_id": project.ID, "auto_rejected": result.AutoRejected},
		})
		var rejected []models.Proposal
		if err := s.db.Where("id IN ?", result.AutoRejected).Find(&rejected).Error; err != nil {
			logger.Warn().Err(err).Uint("proposal_id", result.Proposal.ID).Msg("auto-rejected audience lookup failed")
		}
		for i := range rejected {
			ev := newEvent(EventProposalRejected, rejected[i].ID, now)
			ev.Data = map[string]interface{}{"invalidated_by_id": result.Proposal.ID}
			s.notifier.NotifyUsers(ev, rejected[i].StudentIDs()...)
		}
	}
	s.notifier.Broadcast(newEvent(EventCoStudentsInvalidated, result.Proposal.ID, now))
}

// Reject closes a Pending proposal with a mandatory reason.
func (s *ProposalService) Reject(actor Actor, id uint, reason string) (*models.Proposal, error) {
	if !actor.IsHOD() {
		return nil, response.NewForbidden("only the HOD can reject proposals")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, response.NewBadRequest("a rejection reason is required")
	}

	var proposal models.Proposal
	if err := s.db.First(&proposal, id).Error; err != nil {
		return nil, notFoundOr(err, "proposal not found")
	}
	if proposal.Status != models.ProposalStatusPending {
		return nil, response.NewConflict("only pending proposals can be rejected")
	}

	now := s.Now()
	res := s.db.Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalStatusPending).
		Updates(map[string]interface{}{
			"status":                models.ProposalStatusRejected,
			"pending_author_id":     nil,
			"pending_co_student_id": nil,
			"reviewed_by_id":        actor.ID,
			"review_decision":       ReviewDecisionRejected,
			"rejection_reason":      reason,
			"reviewed_at":           now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("proposal was reviewed concurrently")
	}
	if err := s.db.First(&proposal, id).Error; err != nil {
		return nil, err
	}

	s.notifier.NotifyUsers(newEvent(EventProposalRejected, proposal.ID, now), proposal.StudentIDs()...)
	s.notifier.Broadcast(newEvent(EventCoStudentsInvalidated, proposal.ID, now))
	return &proposal, nil
}

// Get returns a proposal visible to actor.
func (s *ProposalService) Get(actor Actor, id uint) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := s.db.Preload("Attachment").First(&proposal, id).Error; err != nil {
		return nil, notFoundOr(err, "proposal not found")
	}
	ok, err := canViewProposal(s.db, actor, &proposal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, response.NewForbidden("you cannot view this proposal")
	}
	return &proposal, nil
}

func canViewProposal(db *gorm.DB, actor Actor, p *models.Proposal) (bool, error) {
	switch {
	case actor.IsHOD():
		return p.Status != models.ProposalStatusDraft, nil
	case actor.IsStudent():
		return p.Involves(actor.ID), nil
	case actor.IsMentor():
		if p.SuggestedMentorID != nil && *p.SuggestedMentorID == actor.ID {
			return true, nil
		}
		var count int64
		err := db.Model(&models.Project{}).
			Where("proposal_id = ? AND mentor_id = ?", p.ID, actor.ID).
			Count(&count).Error
		return count > 0, err
	}
	return false, nil
}

// List returns the proposals in actor's scope: students see their own,
// mentors those suggesting or assigning them, the HOD everything submitted.
func (s *ProposalService) List(actor Actor, req *ProposalListRequest) (*ProposalListResponse, error) {
	page, pageSize, offset := pageBounds(req.Page, req.PageSize)

	query := s.db.Model(&models.Proposal{})
	switch {
	case actor.IsStudent():
		query = query.Where("author_id = ? OR co_student_id = ?", actor.ID, actor.ID)
	case actor.IsMentor():
		mentored := s.db.Model(&models.Project{}).Select("proposal_id").Where("mentor_id = ?", actor.ID)
		query = query.Where("suggested_mentor_id = ? OR id IN (?)", actor.ID, mentored)
	case actor.IsHOD():
		query = query.Where("status <> ?", models.ProposalStatusDraft)
	default:
		return nil, response.NewForbidden("unknown role")
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.Proposal
	if err := query.Preload("Attachment").Order("updated_at DESC, id DESC").
		Offset(offset).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return &ProposalListResponse{Total: total, Page: page, PageSize: pageSize, Items: items}, nil
}

func (s *ProposalService) applyInput(tx *gorm.DB, actor Actor, p *models.Proposal, in *ProposalInput) error {
	p.Name = strings.TrimSpace(in.Name)
	p.Background = in.Background
	p.Objectives = in.Objectives
	p.MarketReview = in.MarketReview
	p.Novelty = in.Novelty

	p.CoStudentID = nil
	if in.CoStudentID != nil && *in.CoStudentID != 0 {
		if *in.CoStudentID == p.AuthorID {
			return response.NewBadRequest("the author cannot also be the co-student")
		}
		co, err := checkEligibility(tx, *in.CoStudentID, p.ID)
		if err != nil {
			return err
		}
		if err := co.Err("co-student"); err != nil {
			if co.Reason == ReasonStudentNotFound {
				return response.NewNotFound("co-student not found")
			}
			return err
		}
		p.CoStudentID = uintPtr(*in.CoStudentID)
	}

	p.SuggestedMentorID = nil
	if in.SuggestedMentorID != nil && *in.SuggestedMentorID != 0 {
		var mentor models.User
		if err := tx.First(&mentor, *in.SuggestedMentorID).Error; err != nil {
			return notFoundOr(err, "suggested mentor not found")
		}
		if !mentor.IsMentor() {
			return response.NewBadRequest("suggested mentor is not a mentor")
		}
		p.SuggestedMentorID = uintPtr(mentor.ID)
	}

	p.AttachmentID = nil
	p.Attachment = nil
	if in.AttachmentID != nil && *in.AttachmentID != 0 {
		var file models.File
		if err := tx.First(&file, *in.AttachmentID).Error; err != nil {
			return notFoundOr(err, "attachment not found")
		}
		if file.AuthorID != actor.ID {
			return response.NewForbidden("attachment was uploaded by another user")
		}
		p.AttachmentID = uintPtr(file.ID)
	}
	return nil
}

// snapshotStudents copies the current identity of the author and co-student
// into the proposal.
func (s *ProposalService) snapshotStudents(tx *gorm.DB, p *models.Proposal) error {
	var author models.User
	if err := tx.First(&author, p.AuthorID).Error; err != nil {
		return notFoundOr(err, "author not found")
	}
	p.AuthorSnapshot = models.SnapshotOf(&author)

	p.CoStudentSnapshot = models.StudentSnapshot{}
	if p.CoStudentID != nil {
		var co models.User
		if err := tx.First(&co, *p.CoStudentID).Error; err != nil {
			return notFoundOr(err, "co-student not found")
		}
		p.CoStudentSnapshot = models.SnapshotOf(&co)
	}
	return nil
}

func requireSubmittable(p *models.Proposal) error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Background) == "" {
		missing = append(missing, "background")
	}
	if strings.TrimSpace(p.Objectives) == "" {
		missing = append(missing, "objectives")
	}
	if len(missing) > 0 {
		return response.NewBadRequest("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

func linkAttachment(tx *gorm.DB, p *models.Proposal) error {
	if p.AttachmentID == nil {
		return nil
	}
	return tx.Model(&models.File{}).Where("id = ?", *p.AttachmentID).Update("proposal_id", p.ID).Error
}

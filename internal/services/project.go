package services

import (
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

type ProjectService struct {
	clock
	db       *gorm.DB
	notifier Notifier
}

func NewProjectService(db *gorm.DB, notifier Notifier) *ProjectService {
	return &ProjectService{db: db, notifier: orNop(notifier)}
}

type ProjectListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Name     string `form:"name"`
	Status   string `form:"status" binding:"omitempty,project_status"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type UpdateProjectStatusRequest struct {
	Status string `json:"status" binding:"required,project_status"`
}

// List returns the projects in actor's scope: students their own, mentors
// the ones they supervise, the HOD all of them.
func (s *ProjectService) List(actor Actor, req *ProjectListRequest) (*ProjectListResponse, error) {
	page, pageSize, offset := pageBounds(req.Page, req.PageSize)

	query := s.db.Model(&models.Project{})
	switch {
	case actor.IsStudent():
		query = query.Where("student_id = ? OR co_student_id = ?", actor.ID, actor.ID)
	case actor.IsMentor():
		query = query.Where("mentor_id = ?", actor.ID)
	case actor.IsHOD():
	default:
		return nil, response.NewForbidden("unknown role")
	}
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var projects []models.Project
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC, id DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return &ProjectListResponse{Total: total, Page: page, PageSize: pageSize, Items: projects}, nil
}

// GetByID returns a project visible to actor.
func (s *ProjectService) GetByID(actor Actor, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		return nil, notFoundOr(err, "project not found")
	}
	if !actor.IsHOD() && !project.IsMember(actor.ID) {
		return nil, response.NewForbidden("you are not a member of this project")
	}
	return &project, nil
}

// UpdateStatus advances the project to its next phase. Only the assigned
// mentor may do so, one phase at a time and never backwards.
func (s *ProjectService) UpdateStatus(actor Actor, id uint, status string) (*models.Project, error) {
	if !models.ValidProjectStatus(status) {
		return nil, response.NewBadRequest("invalid project status: " + status)
	}
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		return nil, notFoundOr(err, "project not found")
	}
	if project.MentorID != actor.ID {
		return nil, response.NewForbidden("only the assigned mentor can change the project status")
	}
	if project.Status == status {
		return &project, nil
	}
	next := models.NextProjectStatus(project.Status)
	if next == "" {
		return nil, response.NewConflict("project is already " + project.Status)
	}
	if status != next {
		return nil, response.NewConflict("project can only move from " + project.Status + " to " + next)
	}

	res := s.db.Model(&models.Project{}).
		Where("id = ? AND status = ?", project.ID, project.Status).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("project status changed concurrently; reload and try again")
	}
	project.Status = status

	ev := newEvent(EventProjectUpdated, project.ID, s.Now())
	ev.ProjectID = project.ID
	ev.Data = map[string]interface{}{"status": status}
	s.notifier.NotifyUsers(ev, project.StudentIDs()...)
	return &project, nil
}

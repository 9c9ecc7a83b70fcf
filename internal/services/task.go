package services

import (
	"strings"
	"time"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

type TaskService struct {
	clock
	db       *gorm.DB
	notifier Notifier
}

func NewTaskService(db *gorm.DB, notifier Notifier) *TaskService {
	return &TaskService{db: db, notifier: orNop(notifier)}
}

type CreateTaskRequest struct {
	Title       string    `json:"title" binding:"required,max=200"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date" binding:"required"`
}

// UpdateTaskRequest is a partial edit. DueDate distinguishes "absent" from
// an explicit null, which is refused.
type UpdateTaskRequest struct {
	Title       *string      `json:"title" binding:"omitempty,max=200"`
	Description *string      `json:"description"`
	DueDate     NullableTime `json:"due_date"`
}

type TaskListRequest struct {
	MeetingID uint   `form:"meeting_id"`
	Status    string `form:"status" binding:"omitempty,oneof=open completed"`
}

// Create adds a follow-up task to a held meeting.
func (s *TaskService) Create(actor Actor, meetingID uint, req *CreateTaskRequest) (*models.Task, error) {
	now := s.Now().UTC()
	meeting, err := loadMeeting(s.db, meetingID, now)
	if err != nil {
		return nil, err
	}
	if !isMeetingMentor(meeting, actor.ID) {
		return nil, response.NewForbidden("only the mentor can create tasks")
	}
	if meeting.Status != models.MeetingStatusHeld {
		return nil, response.NewConflict("tasks can only be created for held meetings; this meeting is " + meeting.Status)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, response.NewBadRequest("title is required")
	}
	due := req.DueDate.UTC()
	if !due.After(now) {
		return nil, response.NewBadRequest("due date must be in the future")
	}

	task := models.Task{
		MeetingID:   meeting.ID,
		ProjectID:   meeting.ProjectID,
		Title:       title,
		Description: req.Description,
		DueDate:     &due,
		Status:      models.TaskStatusOpen,
		CreatedByID: actor.ID,
	}
	if err := s.db.Create(&task).Error; err != nil {
		return nil, err
	}
	task.Decorate(now)

	s.notify(EventTaskCreated, &task, actor.ID)
	return &task, nil
}

// Update edits an open task. The due date can be moved but never cleared,
// and must stay in the future.
func (s *TaskService) Update(actor Actor, id uint, req *UpdateTaskRequest) (*models.Task, error) {
	task, project, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if actor.ID != project.MentorID {
		return nil, response.NewForbidden("only the mentor can edit tasks")
	}
	if task.Status != models.TaskStatusOpen {
		return nil, response.NewConflict("only open tasks can be edited")
	}

	now := s.Now().UTC()
	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, response.NewBadRequest("title cannot be empty")
		}
		updates["title"] = title
		task.Title = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
		task.Description = *req.Description
	}
	if req.DueDate.Set {
		if req.DueDate.Value == nil {
			return nil, response.NewBadRequest("due date cannot be removed")
		}
		due := req.DueDate.Value.UTC()
		if !due.After(now) {
			return nil, response.NewBadRequest("due date must be in the future")
		}
		updates["due_date"] = due
		task.DueDate = &due
	}
	if len(updates) == 0 {
		return nil, response.NewBadRequest("nothing to update")
	}

	res := s.db.Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskStatusOpen).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("task was completed concurrently")
	}
	task.Decorate(now)

	s.notify(EventTaskUpdated, task, actor.ID)
	return task, nil
}

// Complete marks an open task done, keeping the due date in effect at that
// moment for late detection.
func (s *TaskService) Complete(actor Actor, id uint) (*models.Task, error) {
	task, project, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !project.IsMember(actor.ID) {
		return nil, response.NewForbidden("only the project's students or mentor can complete tasks")
	}
	if task.Status != models.TaskStatusOpen {
		return nil, response.NewConflict("task is already completed")
	}

	now := s.Now().UTC()
	res := s.db.Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskStatusOpen).
		Updates(map[string]interface{}{
			"status":                 models.TaskStatusCompleted,
			"completed_at":           now,
			"due_date_at_completion": task.DueDate,
			"completed_by_id":        actor.ID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("task was completed concurrently")
	}
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	task.DueDateAtCompletion = task.DueDate
	task.CompletedByID = uintPtr(actor.ID)
	task.Decorate(now)

	s.notify(EventTaskUpdated, task, actor.ID)
	return task, nil
}

// Reopen returns a completed task to open and drops all completion data.
func (s *TaskService) Reopen(actor Actor, id uint) (*models.Task, error) {
	task, project, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if actor.ID != project.MentorID {
		return nil, response.NewForbidden("only the mentor can reopen tasks")
	}
	if task.Status != models.TaskStatusCompleted {
		return nil, response.NewConflict("task is not completed")
	}

	res := s.db.Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskStatusCompleted).
		Updates(map[string]interface{}{
			"status":                 models.TaskStatusOpen,
			"completed_at":           nil,
			"due_date_at_completion": nil,
			"completed_by_id":        nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("task was reopened concurrently")
	}
	task.Status = models.TaskStatusOpen
	task.CompletedAt = nil
	task.DueDateAtCompletion = nil
	task.CompletedByID = nil
	task.Decorate(s.Now().UTC())

	s.notify(EventTaskUpdated, task, actor.ID)
	return task, nil
}

func (s *TaskService) Delete(actor Actor, id uint) error {
	task, project, err := s.load(id)
	if err != nil {
		return err
	}
	if actor.ID != project.MentorID {
		return response.NewForbidden("only the mentor can delete tasks")
	}
	if err := s.db.Delete(&models.Task{}, task.ID).Error; err != nil {
		return err
	}
	s.notify(EventTaskDeleted, task, actor.ID)
	return nil
}

// ListByProject returns the project's tasks, newest due date last.
func (s *TaskService) ListByProject(actor Actor, projectID uint, req *TaskListRequest) ([]models.Task, error) {
	var project models.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		return nil, notFoundOr(err, "project not found")
	}
	if !actor.IsHOD() && !project.IsMember(actor.ID) {
		return nil, response.NewForbidden("you are not a member of this project")
	}

	query := s.db.Where("project_id = ?", projectID)
	if req != nil && req.MeetingID != 0 {
		query = query.Where("meeting_id = ?", req.MeetingID)
	}
	if req != nil && req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var tasks []models.Task
	if err := query.Order("due_date, id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	now := s.Now().UTC()
	for i := range tasks {
		tasks[i].Decorate(now)
	}
	return tasks, nil
}

func (s *TaskService) load(id uint) (*models.Task, *models.Project, error) {
	var task models.Task
	if err := s.db.First(&task, id).Error; err != nil {
		return nil, nil, notFoundOr(err, "task not found")
	}
	var project models.Project
	if err := s.db.First(&project, task.ProjectID).Error; err != nil {
		return nil, nil, notFoundOr(err, "project not found")
	}
	return &task, &project, nil
}

// isMeetingMentor accepts the meeting's mentor or the project's current
// mentor; the two can differ after a reassignment.
func isMeetingMentor(m *models.Meeting, userID uint) bool {
	if m.MentorID == userID {
		return true
	}
	return m.Project != nil && m.Project.MentorID == userID
}

func (s *TaskService) notify(eventType string, t *models.Task, actorID uint) {
	var project models.Project
	if err := s.db.First(&project, t.ProjectID).Error; err != nil {
		return
	}
	ev := newEvent(eventType, t.ID, s.Now())
	ev.ProjectID = t.ProjectID
	ev.Data = map[string]interface{}{"meeting_id": t.MeetingID, "status": t.Status}
	s.notifier.NotifyUsers(ev, without(append(project.StudentIDs(), project.MentorID), actorID)...)
}

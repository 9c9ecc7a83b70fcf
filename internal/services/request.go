package services

import (
	"strings"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

// RequestService handles students asking mentors to supervise them.
type RequestService struct {
	clock
	db       *gorm.DB
	notifier Notifier
}

func NewRequestService(db *gorm.DB, notifier Notifier) *RequestService {
	return &RequestService{db: db, notifier: orNop(notifier)}
}

type CreateRequestRequest struct {
	MentorID uint   `json:"mentor_id" binding:"required"`
	Message  string `json:"message" binding:"max=2000"`
}

type RespondRequestRequest struct {
	Accept bool   `json:"accept"`
	Note   string `json:"note" binding:"max=2000"`
}

type RequestListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=pending accepted declined"`
}

func (s *RequestService) Create(actor Actor, req *CreateRequestRequest) (*models.Request, error) {
	if !actor.IsStudent() {
		return nil, response.NewForbidden("only students can send mentorship requests")
	}
	var student models.User
	if err := s.db.First(&student, actor.ID).Error; err != nil {
		return nil, notFoundOr(err, "student not found")
	}
	if student.ProjectID != nil {
		return nil, response.NewConflict("you already have a project and a mentor").WithReason(ReasonAlreadyInProject)
	}
	var mentor models.User
	if err := s.db.First(&mentor, req.MentorID).Error; err != nil {
		return nil, notFoundOr(err, "mentor not found")
	}
	if !mentor.IsMentor() {
		return nil, response.NewBadRequest("requests can only be sent to mentors")
	}

	request := models.Request{
		StudentID:  actor.ID,
		MentorID:   mentor.ID,
		Message:    strings.TrimSpace(req.Message),
		Status:     models.RequestStatusPending,
		PendingKey: models.RequestPendingKey(actor.ID, mentor.ID),
	}
	if err := s.db.Create(&request).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, response.NewConflict("you already have a pending request to this mentor")
		}
		return nil, err
	}
	request.Student = &student
	request.Mentor = &mentor

	s.notifier.NotifyUsers(newEvent(EventRequestCreated, request.ID, s.Now()), mentor.ID)
	return &request, nil
}

// List returns requests sent by a student, addressed to a mentor, or all
// of them for the HOD.
func (s *RequestService) List(actor Actor, req *RequestListRequest) ([]models.Request, error) {
	query := s.db.Preload("Student").Preload("Mentor")
	switch {
	case actor.IsStudent():
		query = query.Where("student_id = ?", actor.ID)
	case actor.IsMentor():
		query = query.Where("mentor_id = ?", actor.ID)
	case actor.IsHOD():
	default:
		return nil, response.NewForbidden("unknown role")
	}
	if req != nil && req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var requests []models.Request
	if err := query.Order("created_at DESC, id DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// Respond lets the addressed mentor accept or decline a pending request.
func (s *RequestService) Respond(actor Actor, id uint, req *RespondRequestRequest) (*models.Request, error) {
	var request models.Request
	if err := s.db.First(&request, id).Error; err != nil {
		return nil, notFoundOr(err, "request not found")
	}
	if request.MentorID != actor.ID {
		return nil, response.NewForbidden("only the addressed mentor can respond")
	}
	if request.Status != models.RequestStatusPending {
		return nil, response.NewConflict("request has already been answered")
	}

	status := models.RequestStatusDeclined
	if req.Accept {
		status = models.RequestStatusAccepted
	}
	now := s.Now()
	res := s.db.Model(&models.Request{}).
		Where("id = ? AND status = ?", id, models.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":        status,
			"response_note": strings.TrimSpace(req.Note),
			"pending_key":   nil,
			"responded_at":  now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, response.NewConflict("request has already been answered")
	}
	if err := s.db.Preload("Student").Preload("Mentor").First(&request, id).Error; err != nil {
		return nil, err
	}

	ev := newEvent(EventRequestUpdated, request.ID, now)
	ev.Data = map[string]interface{}{"status": status}
	s.notifier.NotifyUsers(ev, request.StudentID)
	return &request, nil
}

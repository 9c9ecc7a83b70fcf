package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/services"
	"github.com/huangang/projectportal/pkg/response"
)

type MeetingHandler struct {
	meetingService *services.MeetingService
}

func NewMeetingHandler(meetingService *services.MeetingService) *MeetingHandler {
	return &MeetingHandler{meetingService: meetingService}
}

// Propose opens a meeting negotiation for a project
// POST /api/projects/:id/meetings
func (h *MeetingHandler) Propose(c *gin.Context) {
	projectID, ok := parseID(c, "id", "project")
	if !ok {
		return
	}

	var req services.ProposeMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	meeting, err := h.meetingService.Propose(currentActor(c), projectID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, meeting)
}

// ListByProject returns the project's meetings, materialized
// GET /api/projects/:id/meetings
func (h *MeetingHandler) ListByProject(c *gin.Context) {
	projectID, ok := parseID(c, "id", "project")
	if !ok {
		return
	}

	meetings, err := h.meetingService.ListByProject(currentActor(c), projectID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, meetings)
}

// GetByID returns a meeting by ID
// GET /api/meetings/:id
func (h *MeetingHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id", "meeting")
	if !ok {
		return
	}

	meeting, err := h.meetingService.Get(currentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, meeting)
}

// Approve accepts the proposed time
// POST /api/meetings/:id/approve
func (h *MeetingHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id", "meeting")
	if !ok {
		return
	}

	meeting, err := h.meetingService.Approve(currentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, meeting)
}

// Decline rejects the proposed time
// POST /api/meetings/:id/decline
func (h *MeetingHandler) Decline(c *gin.Context) {
	id, ok := parseID(c, "id", "meeting")
	if !ok {
		return
	}

	meeting, err := h.meetingService.Decline(currentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, meeting)
}

// Reschedule proposes a new time for the meeting
// POST /api/meetings/:id/reschedule
func (h *MeetingHandler) Reschedule(c *gin.Context) {
	id, ok := parseID(c, "id", "meeting")
	if !ok {
		return
	}

	var req services.RescheduleMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	meeting, err := h.meetingService.Reschedule(currentActor(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, meeting)
}

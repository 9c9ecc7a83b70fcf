package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/services"
	"github.com/huangang/projectportal/pkg/response"
)

type RequestHandler struct {
	requestService *services.RequestService
}

func NewRequestHandler(requestService *services.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// Create sends a mentorship request
// POST /api/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var req services.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	request, err := h.requestService.Create(currentActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, request)
}

// List returns requests in the caller's scope
// GET /api/requests
func (h *RequestHandler) List(c *gin.Context) {
	var req services.RequestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	requests, err := h.requestService.List(currentActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, requests)
}

// Respond accepts or declines a request
// POST /api/requests/:id/respond
func (h *RequestHandler) Respond(c *gin.Context) {
	id, ok := parseID(c, "id", "request")
	if !ok {
		return
	}

	var req services.RespondRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	request, err := h.requestService.Respond(currentActor(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, request)
}

package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/services"
	"github.com/huangang/projectportal/pkg/response"
)

type ProposalHandler struct {
	proposalService *services.ProposalService
}

func NewProposalHandler(proposalService *services.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposalService: proposalService}
}

// SaveDraft creates or updates the caller's draft
// POST /api/proposals/draft
func (h *ProposalHandler) SaveDraft(c *gin.Context) {
	var req services.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	proposal, err := h.proposalService.SaveDraft(currentActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, proposal)
}

// Submit sends a draft or rejected proposal for review. A body replaces the
// content before submitting.
// POST /api/proposals/:id/submit
func (h *ProposalHandler) Submit(c *gin.Context) {
	id, ok := parseID(c, "id", "proposal")
	if !ok {
		return
	}

	var input services.ProposalInput
	present, err := bindOptionalJSON(c, &input)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var in *services.ProposalInput
	if present {
		in = &input
	}

	proposal, err := h.proposalService.Submit(currentActor(c), id, in)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, proposal)
}

// Approve turns a pending proposal into a project
// POST /api/proposals/:id/approve
func (h *ProposalHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id", "proposal")
	if !ok {
		return
	}

	var req services.ApproveProposalRequest
	if _, err := bindOptionalJSON(c, &req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.proposalService.Approve(currentActor(c), id, req.MentorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Reject declines a pending proposal with a reason
// POST /api/proposals/:id/reject
func (h *ProposalHandler) Reject(c *gin.Context) {
	id, ok := parseID(c, "id", "proposal")
	if !ok {
		return
	}

	var req services.RejectProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	proposal, err := h.proposalService.Reject(currentActor(c), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, proposal)
}

// List returns proposals in the caller's scope
// GET /api/proposals
func (h *ProposalHandler) List(c *gin.Context) {
	var req services.ProposalListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.proposalService.List(currentActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// GetByID returns a proposal by ID
// GET /api/proposals/:id
func (h *ProposalHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id", "proposal")
	if !ok {
		return
	}

	proposal, err := h.proposalService.Get(currentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, proposal)
}

package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/middleware"
	"github.com/huangang/projectportal/internal/services"
	"github.com/huangang/projectportal/pkg/response"
)

type UserHandler struct {
	userService        *services.UserService
	eligibilityService *services.EligibilityService
}

func NewUserHandler(userService *services.UserService, eligibilityService *services.EligibilityService) *UserHandler {
	return &UserHandler{
		userService:        userService,
		eligibilityService: eligibilityService,
	}
}

// UpdateMe edits the caller's profile
// PUT /api/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.userService.UpdateProfile(middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, user)
}

// ListMentors returns mentors with their project counts
// GET /api/users/mentors
func (h *UserHandler) ListMentors(c *gin.Context) {
	var req services.MentorListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	mentors, err := h.userService.ListMentors(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, mentors)
}

// EligibleCoStudents lists students the caller may pick as co-student
// GET /api/users/eligible-co-students
func (h *UserHandler) EligibleCoStudents(c *gin.Context) {
	users, err := h.eligibilityService.ListEligibleCoStudents(currentActor(c), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, users)
}

// Eligibility reports whether a student can join a new proposal
// GET /api/users/:id/eligibility
func (h *UserHandler) Eligibility(c *gin.Context) {
	id, ok := parseID(c, "id", "user")
	if !ok {
		return
	}

	result, err := h.eligibilityService.Check(id, 0)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

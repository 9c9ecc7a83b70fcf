package handlers

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/middleware"
	"github.com/huangang/projectportal/internal/services"
	"github.com/huangang/projectportal/pkg/response"
)

// currentActor builds the service-level caller from the auth context.
func currentActor(c *gin.Context) services.Actor {
	return services.Actor{
		ID:   middleware.GetUserID(c),
		Role: middleware.GetRole(c),
	}
}

// parseID reads a numeric path parameter and answers 400 when it is invalid.
func parseID(c *gin.Context, param, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return uint(id), true
}

// bindOptionalJSON binds the body when one was sent. It reports whether a
// body was present.
func bindOptionalJSON(c *gin.Context, obj interface{}) (bool, error) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return false, nil
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

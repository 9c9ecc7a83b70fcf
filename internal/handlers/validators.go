package handlers

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/huangang/projectportal/internal/models"
)

// RegisterValidators adds the portal's binding tags to gin's validator:
// portal_role and project_status.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	if err := v.RegisterValidation("portal_role", func(fl validator.FieldLevel) bool {
		return models.ValidRole(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("project_status", func(fl validator.FieldLevel) bool {
		return models.ValidProjectStatus(fl.Field().String())
	})
}

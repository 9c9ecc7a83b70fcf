package services

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID   uint
	Role string
}

func (a Actor) IsStudent() bool { return a.Role == models.RoleStudent }
func (a Actor) IsMentor() bool  { return a.Role == models.RoleMentor }
func (a Actor) IsHOD() bool     { return a.Role == models.RoleHOD }

// clock is embedded by services whose behaviour depends on the current time.
type clock struct {
	now func() time.Time
}

func (c *clock) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// SetClock replaces the time source, mainly for tests.
func (c *clock) SetClock(now func() time.Time) {
	c.now = now
}

// notFoundOr maps gorm's missing-record error onto the not-found category.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return response.NewNotFound(msg)
	}
	return err
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// isAppError reports whether err already carries an error category.
func isAppError(err error) bool {
	var appErr *response.AppError
	return errors.As(err, &appErr)
}

// NullableTime distinguishes an absent JSON field from an explicit null.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *NullableTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	n.Value = &t
	return nil
}

func uintPtr(v uint) *uint { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// pageBounds applies the list defaults used across services.
func pageBounds(page, pageSize int) (int, int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

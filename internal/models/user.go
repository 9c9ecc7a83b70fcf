package models

import (
	"strings"
	"time"
)

const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
	RoleHOD     = "hod"
)

// User is a portal account. Students additionally point at the project and
// mentor assigned to them by a proposal approval.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	IDNumber  string     `gorm:"uniqueIndex;size:50;not null" json:"id_number"`
	Email     string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password  string     `gorm:"size:255" json:"-"`
	FirstName string     `gorm:"size:100" json:"first_name"`
	LastName  string     `gorm:"size:100" json:"last_name"`
	Role      string     `gorm:"size:20;index;not null" json:"role"` // student, mentor, hod
	ProjectID *uint      `gorm:"index" json:"project_id"`
	MentorID  *uint      `gorm:"index" json:"mentor_id"`
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	LastLogin *time.Time `json:"last_login"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsStudent() bool { return u.Role == RoleStudent }
func (u *User) IsMentor() bool  { return u.Role == RoleMentor }
func (u *User) IsHOD() bool     { return u.Role == RoleHOD }

// ValidRole reports whether role is one of the portal roles.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleMentor, RoleHOD:
		return true
	}
	return false
}

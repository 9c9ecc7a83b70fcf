package services

import (
	"strings"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// UpdateProfileRequest edits the caller's own identity fields. Existing
// proposal snapshots are not touched.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" binding:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name" binding:"omitempty,min=1,max=100"`
	Email     *string `json:"email" binding:"omitempty,email"`
}

type MentorListRequest struct {
	Name string `form:"name"`
}

// MentorSummary is a mentor with the number of projects they supervise.
type MentorSummary struct {
	ID           uint   `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	ProjectCount int64  `json:"project_count"`
}

func (s *UserService) UpdateProfile(userID uint, req *UpdateProfileRequest) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, notFoundOr(err, "user not found")
	}

	updates := make(map[string]interface{})
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.Model(&user).Updates(updates).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, response.NewConflict("email is already registered")
		}
		return nil, err
	}
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListMentors returns active mentors with their current project load.
func (s *UserService) ListMentors(req *MentorListRequest) ([]MentorSummary, error) {
	query := s.db.Model(&models.User{}).
		Select("users.id, users.first_name, users.last_name, users.email, COUNT(projects.id) AS project_count").
		Joins("LEFT JOIN projects ON projects.mentor_id = users.id").
		Where("users.role = ? AND users.is_active = ?", models.RoleMentor, true).
		Group("users.id, users.first_name, users.last_name, users.email").
		Order("users.last_name, users.first_name")

	if req != nil && strings.TrimSpace(req.Name) != "" {
		like := "%" + strings.TrimSpace(req.Name) + "%"
		query = query.Where("users.first_name LIKE ? OR users.last_name LIKE ?", like, like)
	}

	var mentors []MentorSummary
	if err := query.Scan(&mentors).Error; err != nil {
		return nil, err
	}
	return mentors, nil
}

package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/internal/utils"
	"github.com/huangang/projectportal/pkg/logger"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

const refreshTokenExpireHours = 720

type AuthService struct {
	clock
	db        *gorm.DB
	jwtConfig *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, jwtConfig: jwtCfg}
}

type RegisterRequest struct {
	IDNumber  string `json:"id_number" binding:"required,max=50"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Role      string `json:"role" binding:"required,portal_role,ne=hod"`
}

// LoginRequest accepts either the email or the id number as Login.
type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	AccessToken     string       `json:"token"`
	AccessExpireAt  time.Time    `json:"expire_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expire_at"`
	User            *models.User `json:"user"`
}

type RefreshResult struct {
	AccessToken     string    `json:"token"`
	AccessExpireAt  time.Time `json:"expire_at"`
	RefreshToken    string    `json:"refresh_token"`
	RefreshExpireAt time.Time `json:"refresh_expire_at"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// Register creates a student or mentor account. HOD accounts only come from
// bootstrap configuration.
func (s *AuthService) Register(req *RegisterRequest) (*models.User, error) {
	if req.Role != models.RoleStudent && req.Role != models.RoleMentor {
		return nil, response.NewBadRequest("role must be student or mentor")
	}
	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		IDNumber:  strings.TrimSpace(req.IDNumber),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Password:  hashed,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      req.Role,
		IsActive:  true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, response.NewConflict("id number or email is already registered")
		}
		return nil, err
	}
	return &user, nil
}

// Login authenticates a user and issues an access token plus a refresh token.
func (s *AuthService) Login(req *LoginRequest, clientIP, userAgent string) (*LoginResult, error) {
	user, err := s.localAuth(req.Login, req.Password)
	if err != nil {
		return nil, err
	}

	access, accessExpireAt, err := s.issueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, record, err := s.newRefreshRecord(user.ID, clientIP, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, err
	}

	now := s.Now()
	user.LastLogin = &now
	if err := s.db.Model(user).Update("last_login", now).Error; err != nil {
		logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record last login")
	}

	return &LoginResult{
		AccessToken:     access,
		AccessExpireAt:  accessExpireAt,
		RefreshToken:    refresh,
		RefreshExpireAt: record.ExpiresAt,
		User:            user,
	}, nil
}

// Refresh rotates a refresh token: the old one is revoked and linked to the
// new one in the same transaction.
func (s *AuthService) Refresh(refreshToken string, clientIP, userAgent string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, response.NewBadRequest("refresh token required")
	}

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, response.NewUnauthorized("invalid refresh token")
		}
		return nil, err
	}
	now := s.Now()
	if !stored.Usable(now) {
		return nil, response.NewUnauthorized("refresh token expired or revoked")
	}

	var user models.User
	if err := s.db.First(&user, stored.UserID).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, response.NewUnauthorized("user not found")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, response.NewUnauthorized("user is disabled")
	}

	access, accessExpireAt, err := s.issueAccessToken(&user)
	if err != nil {
		return nil, err
	}
	newRefresh, record, err := s.newRefreshRecord(user.ID, clientIP, userAgent)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", stored.ID).
			Updates(map[string]interface{}{
				"revoked_at":           now,
				"replaced_by_token_id": record.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return response.NewUnauthorized("refresh token already used")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken:     access,
		AccessExpireAt:  accessExpireAt,
		RefreshToken:    newRefresh,
		RefreshExpireAt: record.ExpiresAt,
	}, nil
}

func (s *AuthService) RevokeRefreshToken(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", s.Now()).Error
}

func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return &user, nil
}

func (s *AuthService) ChangePassword(userID uint, req *ChangePasswordRequest) error {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return notFoundOr(err, "user not found")
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return response.NewBadRequest("incorrect old password")
	}
	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.Model(&user).Update("password", hashed).Error
}

// EnsureHOD creates the configured HOD account when no HOD exists yet.
func (s *AuthService) EnsureHOD(cfg *config.BootstrapConfig) error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleHOD).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 || cfg.HODEmail == "" {
		return nil
	}

	hashed, err := utils.HashPassword(cfg.HODPassword)
	if err != nil {
		return err
	}
	idNumber := cfg.HODIDNumber
	if idNumber == "" {
		idNumber = "HOD-1"
	}
	hod := models.User{
		IDNumber:  idNumber,
		Email:     strings.ToLower(cfg.HODEmail),
		Password:  hashed,
		FirstName: "Head of",
		LastName:  "Department",
		Role:      models.RoleHOD,
		IsActive:  true,
	}
	if err := s.db.Create(&hod).Error; err != nil {
		return err
	}
	logger.Info().Str("email", hod.Email).Msg("default HOD account created")
	return nil
}

func (s *AuthService) issueAccessToken(user *models.User) (string, time.Time, error) {
	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 24
	}
	token, err := utils.GenerateToken(user.ID, user.Email, user.Role, hours)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, s.Now().Add(time.Duration(hours) * time.Hour), nil
}

func (s *AuthService) newRefreshRecord(userID uint, clientIP, userAgent string) (string, *models.RefreshToken, error) {
	token, hash, err := generateRefreshToken()
	if err != nil {
		return "", nil, err
	}
	return token, &models.RefreshToken{
		UserID:      userID,
		TokenHash:   hash,
		ExpiresAt:   s.Now().Add(refreshTokenExpireHours * time.Hour),
		CreatedByIP: clientIP,
		UserAgent:   userAgent,
	}, nil
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	return token, hashRefreshToken(token), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) localAuth(login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	var user models.User
	if err := s.db.Where("email = ? OR id_number = ?", strings.ToLower(login), login).First(&user).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, response.NewUnauthorized("invalid login or password")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, response.NewUnauthorized("user is disabled")
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, response.NewUnauthorized("invalid login or password")
	}
	return &user, nil
}

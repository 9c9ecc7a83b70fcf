package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/logger"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// LogEntry is one record of the audit trail.
type LogEntry struct {
	Module    string
	Action    string
	Message   string
	UserID    *uint
	Role      string
	IP        string
	UserAgent string
	Extra     interface{}
}

var auditDB *gorm.DB

// InitSystemLogger enables the package-level Log* helpers. Before it is
// called they are no-ops.
func InitSystemLogger(db *gorm.DB) {
	auditDB = db
}

func LogInfo(e LogEntry)    { writeLog(auditDB, LogLevelInfo, e) }
func LogWarning(e LogEntry) { writeLog(auditDB, LogLevelWarning, e) }
func LogError(e LogEntry)   { writeLog(auditDB, LogLevelError, e) }

func writeLog(db *gorm.DB, level string, e LogEntry) {
	if db == nil {
		return
	}

	var extra string
	if e.Extra != nil {
		if b, err := json.Marshal(e.Extra); err == nil {
			extra = string(b)
		}
	}

	row := &models.SystemLog{
		Level:     level,
		Module:    e.Module,
		Action:    e.Action,
		Message:   e.Message,
		UserID:    e.UserID,
		Role:      e.Role,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Extra:     extra,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(row).Error; err != nil {
		logger.Warn().Err(err).Str("module", e.Module).Str("action", e.Action).Msg("failed to write system log")
	}
}

// SystemLogService reads and prunes the audit trail.
type SystemLogService struct {
	clock
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Level    string `form:"level" binding:"omitempty,oneof=info warning error"`
	Module   string `form:"module"`
	Action   string `form:"action"`
	Role     string `form:"role" binding:"omitempty,portal_role"`
	UserID   uint   `form:"user_id"`
	Search   string `form:"search"`
	// From and To are inclusive calendar days (YYYY-MM-DD, UTC).
	From string `form:"from"`
	To   string `form:"to"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	page, pageSize, offset := pageBounds(req.Page, req.PageSize)

	query := s.db.Model(&models.SystemLog{})
	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}
	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		query = query.Where("message LIKE ?", "%"+search+"%")
	}
	if req.From != "" {
		from, err := parseDay(req.From)
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at >= ?", from)
	}
	if req.To != "" {
		to, err := parseDay(req.To)
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at < ?", to.AddDate(0, 0, 1))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var logs []models.SystemLog
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    logs,
	}, nil
}

func parseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, response.NewBadRequest("dates must look like 2006-01-02")
	}
	return day, nil
}

func (s *SystemLogService) GetModules() ([]string, error) {
	var modules []string
	if err := s.db.Model(&models.SystemLog{}).Distinct("module").Order("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// CleanupOldLogs deletes logs older than retentionDays and returns how many
// rows went. A non-positive retention keeps everything.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.Now().UTC().AddDate(0, 0, -retentionDays)
	res := s.db.Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	return res.RowsAffected, res.Error
}

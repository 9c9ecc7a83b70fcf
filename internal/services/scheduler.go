package services

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	jobLogCleanup         = "system_log_cleanup"
	jobMeetingMaterialize = "meeting_materialize"

	logCleanupSpec = "0 3 * * *"
)

// Scheduler runs the periodic housekeeping jobs. None of them is needed for
// correctness: meeting reads materialize on their own.
type Scheduler struct {
	clock
	db         *gorm.DB
	cron       *cron.Cron
	meetings   *MeetingService
	logs       *SystemLogService
	portal     config.PortalConfig
	retention  int
	instanceID string
}

func NewScheduler(db *gorm.DB, cfg *config.Config, meetings *MeetingService) *Scheduler {
	host, _ := os.Hostname()
	return &Scheduler{
		db:         db,
		meetings:   meetings,
		logs:       NewSystemLogService(db),
		portal:     cfg.Portal,
		retention:  cfg.Log.RetentionDays,
		instanceID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
}

func (s *Scheduler) Start() error {
	loc, err := s.portal.Location()
	if err != nil {
		return err
	}
	s.cron = cron.New(cron.WithLocation(loc))

	if _, err := s.cron.AddFunc(logCleanupSpec, s.cleanupLogs); err != nil {
		return fmt.Errorf("schedule %s: %w", jobLogCleanup, err)
	}
	if s.portal.MaterializeCron != "" {
		if _, err := s.cron.AddFunc(s.portal.MaterializeCron, s.materializeMeetings); err != nil {
			return fmt.Errorf("schedule %s: %w", jobMeetingMaterialize, err)
		}
	}

	s.cron.Start()
	logger.Info().
		Str("instance", s.instanceID).
		Str("materialize_cron", s.portal.MaterializeCron).
		Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Scheduler) cleanupLogs() {
	if s.retention <= 0 {
		return
	}
	if !s.acquire(jobLogCleanup, s.Now().Format("2006-01-02"), time.Hour) {
		return
	}
	deleted, err := s.logs.CleanupOldLogs(s.retention)
	if err != nil {
		logger.Error().Err(err).Msg("system log cleanup failed")
		return
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", s.retention).Msg("old system logs cleaned up")
	}
}

func (s *Scheduler) materializeMeetings() {
	if !s.acquire(jobMeetingMaterialize, s.Now().UTC().Format("2006-01-02T15:04"), 10*time.Minute) {
		return
	}
	if _, err := s.meetings.MaterializeAll(); err != nil {
		logger.Error().Err(err).Msg("meeting materialization sweep failed")
		LogError(LogEntry{
			Module:  "Meetings",
			Action:  "Materialize",
			Message: "scheduled materialization failed: " + err.Error(),
			Extra:   map[string]string{"instance": s.instanceID},
		})
	}
}

// acquire claims the (name, key) slot for this instance. It returns false
// when another instance already holds it.
func (s *Scheduler) acquire(name, key string, ttl time.Duration) bool {
	now := s.Now()
	if err := s.db.Where("lock_name = ? AND expires_at < ?", name, now).
		Delete(&models.SchedulerLock{}).Error; err != nil {
		logger.Warn().Err(err).Str("job", name).Msg("failed to purge expired scheduler locks")
	}

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  s.instanceID,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.db.Create(&lock).Error; err != nil {
		if !isDuplicateKey(err) {
			logger.Warn().Err(err).Str("job", name).Msg("failed to acquire scheduler lock")
		}
		return false
	}
	return true
}

package services

import (
	"fmt"
	"time"

	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

// SchedulePolicy holds the rules a meeting time must satisfy: the working
// window, the mentor buffer and, optionally, a holiday calendar.
type SchedulePolicy struct {
	loc      *time.Location
	dayStart time.Duration
	dayEnd   time.Duration
	buffer   time.Duration
	country  string
	calendar *WorkCalendar
}

func NewSchedulePolicy(cfg config.PortalConfig, calendar *WorkCalendar) (*SchedulePolicy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	start, err := config.ParseClock(cfg.WorkDayStart)
	if err != nil {
		return nil, err
	}
	end, err := config.ParseClock(cfg.WorkDayEnd)
	if err != nil {
		return nil, err
	}
	p := &SchedulePolicy{
		loc:      loc,
		dayStart: start,
		dayEnd:   end,
		buffer:   cfg.MeetingBuffer(),
		country:  cfg.HolidayCountry,
	}
	if cfg.HolidayCountry != "" {
		if calendar == nil {
			calendar = NewWorkCalendar()
		}
		if !calendar.Supports(cfg.HolidayCountry) {
			return nil, fmt.Errorf("unsupported holiday country: %s", cfg.HolidayCountry)
		}
		p.calendar = calendar
	}
	return p, nil
}

// DefaultSchedulePolicy is 08:00-17:00 UTC with a 30 minute buffer.
func DefaultSchedulePolicy() *SchedulePolicy {
	p, err := NewSchedulePolicy(config.DefaultPortalConfig(), nil)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *SchedulePolicy) Buffer() time.Duration { return p.buffer }

// InWindow reports whether t starts inside [dayStart, dayEnd) local time.
func (p *SchedulePolicy) InWindow(t time.Time) bool {
	local := t.In(p.loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return offset >= p.dayStart && offset < p.dayEnd
}

// CheckSlot validates t against the working window and calendar.
func (p *SchedulePolicy) CheckSlot(t time.Time) error {
	if !p.InWindow(t) {
		return response.NewBadRequest(fmt.Sprintf("meetings must start between %s and %s (%s)",
			formatClock(p.dayStart), formatClock(p.dayEnd), p.loc))
	}
	if p.calendar != nil {
		local := t.In(p.loc)
		if !p.calendar.IsWorkday(local, p.country) {
			return response.NewBadRequest(p.calendar.describeClosedDay(local, p.country))
		}
	}
	return nil
}

// mentorConflict finds a meeting of mentorID closer than the buffer to t.
// Only meetings with one of statuses are considered when statuses is non-empty.
func (p *SchedulePolicy) mentorConflict(db *gorm.DB, mentorID uint, t time.Time, excludeID uint, statuses ...string) (*models.Meeting, error) {
	t = t.UTC()
	query := db.Model(&models.Meeting{}).
		Where("mentor_id = ?", mentorID).
		Where("proposed_date > ? AND proposed_date < ?", t.Add(-p.buffer), t.Add(p.buffer))
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var conflicts []models.Meeting
	if err := query.Order("proposed_date").Limit(1).Find(&conflicts).Error; err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return nil, nil
	}
	return &conflicts[0], nil
}

func (p *SchedulePolicy) conflictError(existing *models.Meeting) error {
	return response.NewConflict(fmt.Sprintf("the mentor has another meeting at %s; meetings must be at least %d minutes apart",
		existing.ProposedDate.In(p.loc).Format("2006-01-02 15:04"), int(p.buffer/time.Minute)))
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

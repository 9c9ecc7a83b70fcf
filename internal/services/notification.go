package services

import (
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/logger"
	"gorm.io/gorm"
)

// Notifier delivers state-change events after a mutation has committed.
// Delivery is best effort and never reports failure to the caller.
type Notifier interface {
	NotifyUsers(event Event, userIDs ...uint)
	NotifyRole(event Event, role string)
	Broadcast(event Event)
}

// NotificationService is the Notifier backed by a Dispatcher.
type NotificationService struct {
	db         *gorm.DB
	dispatcher Dispatcher
}

func NewNotificationService(db *gorm.DB, dispatcher Dispatcher) *NotificationService {
	return &NotificationService{db: db, dispatcher: dispatcher}
}

func (s *NotificationService) NotifyUsers(event Event, userIDs ...uint) {
	ids := dedupeIDs(userIDs)
	if len(ids) == 0 {
		return
	}
	s.dispatch(&NotificationTask{UserIDs: ids, Event: event})
}

// NotifyRole sends event to every active user holding role.
func (s *NotificationService) NotifyRole(event Event, role string) {
	var ids []uint
	if err := s.db.Model(&models.User{}).
		Where("role = ? AND is_active = ?", role, true).
		Pluck("id", &ids).Error; err != nil {
		logger.Warn().Err(err).Str("role", role).Str("event", event.Type).Msg("notification audience lookup failed")
		return
	}
	s.NotifyUsers(event, ids...)
}

func (s *NotificationService) Broadcast(event Event) {
	s.dispatch(&NotificationTask{Broadcast: true, Event: event})
}

func (s *NotificationService) dispatch(task *NotificationTask) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(task); err != nil {
		logger.Warn().Err(err).
			Str("event", task.Event.Type).
			Uints("user_ids", task.UserIDs).
			Msg("notification dispatch failed")
		LogWarning(LogEntry{
			Module:  "Notifications",
			Action:  "Dispatch",
			Message: "notification dispatch failed: " + err.Error(),
			Extra:   map[string]interface{}{"event": task.Event.Type, "user_ids": task.UserIDs, "broadcast": task.Broadcast},
		})
	}
}

// dedupeIDs drops zero and repeated ids, keeping order.
func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// without returns ids minus exclude.
func without(ids []uint, exclude uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// nopNotifier discards every event.
type nopNotifier struct{}

func (nopNotifier) NotifyUsers(Event, ...uint) {}
func (nopNotifier) NotifyRole(Event, string)   {}
func (nopNotifier) Broadcast(Event)            {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

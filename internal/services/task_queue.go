package services

import (
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/pkg/logger"
)

const (
	TaskTypeNotification = "notification:deliver"
)

// NotificationTask is one fan-out job: an event and its audience.
type NotificationTask struct {
	UserIDs   []uint `json:"user_ids,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
	Event     Event  `json:"event"`
}

// Dispatcher hands notification tasks to the delivery side.
type Dispatcher interface {
	Dispatch(task *NotificationTask) error
	// IsAsync returns true if tasks are delivered by a background worker
	IsAsync() bool
	Close() error
}

var (
	globalDispatcher Dispatcher
	dispatcherOnce   sync.Once
)

// InitDispatcher picks the Redis-backed dispatcher when enabled and reachable,
// and in-process delivery otherwise.
func InitDispatcher(cfg *config.Config, hub *EventHub) Dispatcher {
	dispatcherOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncDispatcher(&cfg.Redis)
			if err != nil {
				logger.Warn().Err(err).Msg("[Dispatcher] Redis unavailable, falling back to in-process delivery")
				globalDispatcher = NewSyncDispatcher(hub)
			} else {
				logger.Info().Str("addr", cfg.Redis.Addr).Msg("[Dispatcher] Async dispatcher initialized")
				globalDispatcher = queue
			}
		} else {
			logger.Info().Msg("[Dispatcher] In-process dispatcher initialized (Redis disabled)")
			globalDispatcher = NewSyncDispatcher(hub)
		}
	})
	return globalDispatcher
}

func GetDispatcher() Dispatcher {
	return globalDispatcher
}

// AsyncDispatcher enqueues notification tasks on asynq (Redis).
type AsyncDispatcher struct {
	client *asynq.Client
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewAsyncDispatcher(cfg *config.RedisConfig) (*AsyncDispatcher, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncDispatcher{client: client}, nil
}

func (q *AsyncDispatcher) Dispatch(task *NotificationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeNotification, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("notifications"),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("event", task.Event.Type).Msg("[AsyncDispatcher] enqueued")
	return nil
}

func (q *AsyncDispatcher) IsAsync() bool {
	return true
}

func (q *AsyncDispatcher) Close() error {
	return q.client.Close()
}

// SyncDispatcher delivers straight into the local hub. Hub sends never
// block, so this is safe on the request path.
type SyncDispatcher struct {
	hub *EventHub
}

func NewSyncDispatcher(hub *EventHub) *SyncDispatcher {
	return &SyncDispatcher{hub: hub}
}

func (q *SyncDispatcher) Dispatch(task *NotificationTask) error {
	if q.hub == nil {
		return nil
	}
	q.hub.Deliver(task)
	return nil
}

func (q *SyncDispatcher) IsAsync() bool {
	return false
}

func (q *SyncDispatcher) Close() error {
	return nil
}

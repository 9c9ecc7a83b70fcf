package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/pkg/logger"
)

// Worker consumes notification tasks from Redis and delivers them to the
// local event hub.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	hub     *EventHub
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewWorker(cfg *config.RedisConfig, hub *EventHub) *Worker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"notifications": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn().Err(err).Str("type", task.Type()).Msg("[Worker] notification task failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		hub:    hub,
	}
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeNotification, w.handleNotificationTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Info().Msg("[Worker] Starting notification worker")
		if err := w.server.Run(w.mux); err != nil {
			logger.Error().Err(err).Msg("[Worker] server stopped")
		}
	}()

	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Info().Msg("[Worker] Shutdown complete")
}

func (w *Worker) handleNotificationTask(ctx context.Context, t *asynq.Task) error {
	return deliverPayload(w.hub, t.Payload())
}

// deliverPayload decodes a queued task and pushes it into hub. Undeliverable
// events are dropped; a disconnected user is not an error.
func deliverPayload(hub *EventHub, payload []byte) error {
	var task NotificationTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return err
	}
	n := hub.Deliver(&task)
	logger.Debug().Str("event", task.Event.Type).Int("delivered", n).Msg("[Worker] notification delivered")
	return nil
}

package services

import (
	"sync"
)

type subscriber struct {
	userID uint
	ch     chan Event
}

// EventHub fans events out to connected event-stream clients. Clients are
// keyed by connection but addressed by user identity, so one user may hold
// several connections.
type EventHub struct {
	clients map[string]*subscriber
	mu      sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]*subscriber),
	}
}

// Subscribe registers a connection for userID and returns its event channel.
func (h *EventHub) Subscribe(clientID string, userID uint) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 100)
	h.clients[clientID] = &subscriber{userID: userID, ch: ch}
	return ch
}

func (h *EventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.clients[clientID]; ok {
		close(sub.ch)
		delete(h.clients, clientID)
	}
}

// PublishTo delivers event to every connection of userID and returns the
// number of connections that accepted it. Full buffers drop the event.
func (h *EventHub) PublishTo(userID uint, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.clients {
		if sub.userID != userID {
			continue
		}
		select {
		case sub.ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Broadcast delivers event to every connection.
func (h *EventHub) Broadcast(event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.clients {
		select {
		case sub.ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Deliver routes a dispatched notification task.
func (h *EventHub) Deliver(task *NotificationTask) int {
	if task.Broadcast {
		return h.Broadcast(task.Event)
	}
	delivered := 0
	for _, id := range task.UserIDs {
		delivered += h.PublishTo(id, task.Event)
	}
	return delivered
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var globalEventHub *EventHub
var eventHubOnce sync.Once

// GetEventHub returns the process-wide hub.
func GetEventHub() *EventHub {
	eventHubOnce.Do(func() {
		globalEventHub = NewEventHub()
	})
	return globalEventHub
}

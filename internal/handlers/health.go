package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the portal's subsystems.
type HealthHandler struct {
	db         *gorm.DB
	dispatcher services.Dispatcher
	hub        *services.EventHub
}

func NewHealthHandler(db *gorm.DB, dispatcher services.Dispatcher, hub *services.EventHub) *HealthHandler {
	return &HealthHandler{db: db, dispatcher: dispatcher, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	dispatchMode := "sync"
	if h.dispatcher != nil && h.dispatcher.IsAsync() {
		dispatchMode = "async (Redis)"
	}

	sseClients := 0
	if h.hub != nil {
		sseClients = h.hub.ClientCount()
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "projectportal",
		"components": gin.H{
			"database":      dbStatus,
			"dispatch_mode": dispatchMode,
			"sse_clients":   sseClients,
		},
	})
}

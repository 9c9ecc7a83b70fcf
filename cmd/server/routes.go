package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/handlers"
	"github.com/huangang/projectportal/internal/middleware"
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
// The returned limiter must be stopped on shutdown.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) *middleware.RateLimiter {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	r.Use(middleware.AuditLog())

	// Rate limiter for the credential endpoints
	authLimiter := middleware.NewRateLimiter(5, 10)

	healthHandler := handlers.NewHealthHandler(models.GetDB(), svc.dispatcher, svc.hub)
	r.GET("/health", healthHandler.CheckHealth)

	authHandler := handlers.NewAuthHandler(svc.auth)
	userHandler := handlers.NewUserHandler(svc.users, svc.eligibility)
	proposalHandler := handlers.NewProposalHandler(svc.proposals)
	projectHandler := handlers.NewProjectHandler(svc.projects)
	meetingHandler := handlers.NewMeetingHandler(svc.meetings)
	taskHandler := handlers.NewTaskHandler(svc.tasks)
	fileHandler := handlers.NewFileHandler(svc.files)
	requestHandler := handlers.NewRequestHandler(svc.requests)
	systemLogHandler := handlers.NewSystemLogHandler(svc.systemLogs)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		// SSE events (public route with internal token validation)
		sseHandler := handlers.NewSSEHandler(svc.hub)
		api.GET("/events", sseHandler.StreamEvents)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", authHandler.GetCurrentUser)
			protected.POST("/auth/logout", authHandler.Logout)
			protected.PUT("/auth/password", authHandler.ChangePassword)

			// Users
			protected.PUT("/users/me", userHandler.UpdateMe)
			protected.GET("/users/mentors", userHandler.ListMentors)
			protected.GET("/users/eligible-co-students", userHandler.EligibleCoStudents)
			protected.GET("/users/:id/eligibility", userHandler.Eligibility)

			// Proposals
			protected.POST("/proposals/draft", proposalHandler.SaveDraft)
			protected.POST("/proposals/:id/submit", proposalHandler.Submit)
			protected.GET("/proposals", proposalHandler.List)
			protected.GET("/proposals/:id", proposalHandler.GetByID)

			// Projects
			protected.GET("/projects", projectHandler.List)
			protected.GET("/projects/:id", projectHandler.GetByID)
			protected.POST("/projects/:id/meetings", meetingHandler.Propose)
			protected.GET("/projects/:id/meetings", meetingHandler.ListByProject)
			protected.GET("/projects/:id/tasks", taskHandler.ListByProject)

			// Meetings
			protected.GET("/meetings/:id", meetingHandler.GetByID)
			protected.POST("/meetings/:id/approve", meetingHandler.Approve)
			protected.POST("/meetings/:id/decline", meetingHandler.Decline)
			protected.POST("/meetings/:id/reschedule", meetingHandler.Reschedule)
			protected.POST("/meetings/:id/tasks", taskHandler.Create)

			// Tasks
			protected.PUT("/tasks/:id", taskHandler.Update)
			protected.POST("/tasks/:id/complete", taskHandler.Complete)
			protected.POST("/tasks/:id/reopen", taskHandler.Reopen)
			protected.DELETE("/tasks/:id", taskHandler.Delete)

			// Files
			protected.POST("/files", fileHandler.Upload)
			protected.GET("/files/:id", fileHandler.Download)

			// Mentorship requests
			protected.POST("/requests", requestHandler.Create)
			protected.GET("/requests", requestHandler.List)
			protected.POST("/requests/:id/respond", requestHandler.Respond)
		}

		// Mentor routes
		mentor := api.Group("")
		mentor.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleMentor))
		{
			mentor.PUT("/projects/:id/status", projectHandler.UpdateStatus)
		}

		// HOD routes
		hod := api.Group("")
		hod.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleHOD))
		{
			hod.POST("/proposals/:id/approve", proposalHandler.Approve)
			hod.POST("/proposals/:id/reject", proposalHandler.Reject)
			hod.GET("/system-logs", systemLogHandler.List)
			hod.GET("/system-logs/modules", systemLogHandler.GetModules)
		}
	}

	return authLimiter
}

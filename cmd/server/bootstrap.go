package main

import (
	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/handlers"
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/internal/services"
	"github.com/huangang/projectportal/internal/utils"
	"github.com/huangang/projectportal/pkg/logger"
)

// appServices holds all initialized services and background workers needed by the application.
type appServices struct {
	hub        *services.EventHub
	dispatcher services.Dispatcher
	worker     *services.Worker
	scheduler  *services.Scheduler

	auth        *services.AuthService
	users       *services.UserService
	eligibility *services.EligibilityService
	proposals   *services.ProposalService
	projects    *services.ProjectService
	meetings    *services.MeetingService
	tasks       *services.TaskService
	files       *services.FileService
	requests    *services.RequestService
	systemLogs  *services.SystemLogService
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()
	if err := models.Migrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	services.InitSystemLogger(db)

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}

	// Notifications go through Redis when enabled, otherwise straight to the hub
	hub := services.GetEventHub()
	dispatcher := services.InitDispatcher(cfg, hub)

	worker := startWorker(cfg, dispatcher, hub)
	notifier := services.NewNotificationService(db, dispatcher)

	policy, err := services.NewSchedulePolicy(cfg.Portal, services.NewWorkCalendar())
	if err != nil {
		logger.Fatalf("Invalid portal configuration: %v", err)
	}

	svc := &appServices{
		hub:         hub,
		dispatcher:  dispatcher,
		worker:      worker,
		auth:        services.NewAuthService(db, &cfg.JWT),
		users:       services.NewUserService(db),
		eligibility: services.NewEligibilityService(db),
		proposals:   services.NewProposalService(db, notifier),
		projects:    services.NewProjectService(db, notifier),
		meetings:    services.NewMeetingService(db, notifier, policy),
		tasks:       services.NewTaskService(db, notifier),
		files:       services.NewFileService(db, &cfg.Storage),
		requests:    services.NewRequestService(db, notifier),
		systemLogs:  services.NewSystemLogService(db),
	}

	if err := svc.auth.EnsureHOD(&cfg.Bootstrap); err != nil {
		logger.Warn().Err(err).Msg("Failed to create HOD account")
	}

	svc.scheduler = services.NewScheduler(db, cfg, svc.meetings)
	if err := svc.scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start scheduler")
		svc.scheduler = nil
	}

	return svc
}

// startWorker runs the queue consumer only when notifications actually go
// through Redis. A dispatcher that fell back to sync mode gets no worker.
func startWorker(cfg *config.Config, dispatcher services.Dispatcher, hub *services.EventHub) *services.Worker {
	if !cfg.Redis.Enabled || dispatcher == nil || !dispatcher.IsAsync() {
		return nil
	}
	worker := services.NewWorker(&cfg.Redis, hub)
	if worker == nil {
		return nil
	}
	if err := worker.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start notification worker")
		return nil
	}
	return worker
}

// shutdown gracefully stops all background work.
func (s *appServices) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close notification dispatcher")
		}
	}
	logger.Info().Msg("Background services stopped")
}

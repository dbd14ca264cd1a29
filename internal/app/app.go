package app

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/browser"
	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/handlers"
	"github.com/ternarybob/eligo/internal/interfaces"
	"github.com/ternarybob/eligo/internal/jobs"
	"github.com/ternarybob/eligo/internal/services/analyzer"
	"github.com/ternarybob/eligo/internal/services/events"
	"github.com/ternarybob/eligo/internal/services/session"
	badgerstore "github.com/ternarybob/eligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	EventService   interfaces.EventService
	SessionManager *session.Manager
	Sweeper        *session.Sweeper

	DB         *badgerstore.BadgerDB
	RunStorage interfaces.RunStorage

	Orchestrator *analyzer.Orchestrator
	Scheduler    *jobs.Scheduler

	// HTTP handlers
	APIHandler *handlers.APIHandler
	WSHandler  *handlers.WebSocketHandler
}

// New wires all services together from configuration.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	a.EventService = events.NewService(logger)
	a.SessionManager = session.NewManager(&config.Session, logger)
	a.Sweeper = session.NewSweeper(&config.Session, logger)

	db, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.RunStorage = badgerstore.NewRunStorage(db, logger)

	driverFactory := func(ctx context.Context, profileDir string) (interfaces.PageDriver, error) {
		return browser.NewDriver(ctx, &config.Browser, profileDir, logger)
	}

	graphClient := analyzer.NewGraphClient(context.Background(), &config.Graph, logger)
	if graphClient != nil {
		logger.Info().Msg("Graph API path enabled")
	}

	a.Orchestrator = analyzer.NewOrchestrator(
		config,
		a.SessionManager,
		driverFactory,
		graphClient,
		analyzer.NewWinnerSelector(nil),
		logger,
	)

	a.Scheduler = jobs.NewScheduler(config, a.Orchestrator, a.EventService, a.RunStorage, logger)

	a.APIHandler = handlers.NewAPIHandler(config, a.Scheduler, a.RunStorage, a.SessionManager, logger)
	a.WSHandler = handlers.NewWebSocketHandler(config, a.Scheduler, a.EventService, logger)

	if err := a.Sweeper.Start(); err != nil {
		logger.Warn().Err(err).Msg("Session sweeper failed to start")
	}

	return a, nil
}

// Close releases all resources in reverse dependency order.
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close database")
			return err
		}
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}

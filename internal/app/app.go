package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/handlers"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/pipeline"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/scheduler"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/cache"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/events"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/llm"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/registry"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/status"
	badgerstore "github.com/AlanHootman/ppt-assistant-sub000/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager *badgerstore.Manager
	EventService   interfaces.EventService
	StatusChannel  interfaces.StatusChannel
	Registry       *registry.Registry
	ModelPool      interfaces.ModelPool
	llmPool        *llm.Pool
	ArtifactCache  *cache.ArtifactCache
	Renderer       *deck.Renderer
	Engine         *pipeline.Engine

	Queue      interfaces.QueueManager
	Scheduler  *scheduler.Scheduler
	WorkerPool *scheduler.Pool
	cron       *cron.Cron

	// HTTP handlers
	APIHandler         *handlers.APIHandler
	JobHandler         *handlers.JobHandler
	ModelConfigHandler *handlers.ModelConfigHandler
	WSHandler          *handlers.JobSocketHandler
}

// New creates the application: storage, services, scheduler and handlers,
// wired in dependency order.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := a.initServices(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initScheduler(); err != nil {
		a.Close()
		return nil, err
	}
	a.initHandlers()
	a.startMaintenance()

	logger.Info().Msg("Application initialized")
	return a, nil
}

func (a *App) initServices() error {
	storageManager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	a.EventService = events.NewService(a.Logger)

	// Without a Redis address the in-memory channel serves single-process
	// runs and tests with the same ordering semantics.
	if a.Config.Redis.Addr != "" {
		channel, err := status.NewService(&a.Config.Redis, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to status channel: %w", err)
		}
		a.StatusChannel = channel
	} else {
		a.Logger.Warn().Msg("No Redis address configured, using in-memory status channel")
		a.StatusChannel = status.NewMemoryChannel()
	}

	a.Registry = registry.NewRegistry(storageManager.ModelConfigStorage(), a.EventService, a.Logger)
	if err := a.Registry.Seed(a.ctx, &a.Config.Models); err != nil {
		return fmt.Errorf("failed to seed model bindings: %w", err)
	}

	pool := llm.NewPool(a.Registry, &a.Config.Models, a.Logger)
	a.ModelPool = pool
	a.llmPool = pool

	// Binding updates invalidate the cached client; the next acquisition
	// rebuilds it from the new binding.
	if err := a.EventService.Subscribe(interfaces.EventConfigChanged, func(ctx context.Context, event interfaces.Event) error {
		kind, ok := event.Payload.(models.ModelKind)
		if !ok {
			return fmt.Errorf("config change event carried no model kind")
		}
		pool.Invalidate(kind)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to subscribe to config changes: %w", err)
	}

	artifactCache, err := cache.NewArtifactCache(a.Config.Storage.CacheDir, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact cache: %w", err)
	}
	a.ArtifactCache = artifactCache

	a.Renderer = deck.NewRenderer(&a.Config.Render, a.Logger)

	a.Engine = pipeline.NewEngine(
		a.ModelPool,
		a.ArtifactCache,
		a.Renderer,
		storageManager.JobStorage(),
		&statusReporter{status: a.StatusChannel, logger: a.Logger},
		a.Config,
		a.Logger,
	)

	return nil
}

func (a *App) initScheduler() error {
	queue, err := scheduler.NewBadgerQueue(
		a.StorageManager.Badger(),
		common.ParseDuration(a.Config.Queue.VisibilityTimeout, 5*time.Minute),
		a.Config.Queue.MaxReceive,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.Queue = queue

	a.Scheduler = scheduler.NewScheduler(
		queue,
		a.StorageManager.JobStorage(),
		a.StatusChannel,
		a.EventService,
		a.Logger,
	)

	pool, err := scheduler.NewPool(
		queue,
		a.StorageManager.JobStorage(),
		a.StorageManager.JobLogStorage(),
		a.StatusChannel,
		a.EventService,
		a.Engine,
		a.Config,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize worker pool: %w", err)
	}
	a.WorkerPool = pool

	// Provider connections do not outlive the task that opened them.
	a.WorkerPool.SetCleanupHook(a.llmPool.Reset)
	a.WorkerPool.Start()

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.JobHandler = handlers.NewJobHandler(
		a.Scheduler,
		a.StorageManager.JobStorage(),
		a.StorageManager.JobLogStorage(),
		a.StatusChannel,
		a.Logger,
	)
	a.ModelConfigHandler = handlers.NewModelConfigHandler(a.Registry, a.Logger)
	a.WSHandler = handlers.NewJobSocketHandler(a.StatusChannel, &a.Config.WebSocket, a.Logger)
}

// startMaintenance schedules the stale-job sweep and cache pruning.
func (a *App) startMaintenance() {
	a.cron = cron.New(cron.WithSeconds())

	staleAfter := common.ParseDuration(a.Config.Scheduler.StaleAfter, 2*time.Minute)
	sweepSchedule := a.Config.Scheduler.StaleSweepSchedule
	if sweepSchedule == "" {
		sweepSchedule = "0 * * * * *"
	}
	if _, err := a.cron.AddFunc(sweepSchedule, func() {
		if swept := a.Scheduler.SweepStale(a.ctx, staleAfter); swept > 0 {
			a.Logger.Info().Int("count", swept).Msg("Stale jobs failed by sweep")
		}
	}); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to schedule stale job sweep")
	}

	if a.Config.Pipeline.CacheEnabled {
		maxAge := common.ParseDuration(a.Config.Pipeline.CacheMaxAge, 168*time.Hour)
		if _, err := a.cron.AddFunc("0 0 3 * * *", func() {
			removed, err := a.ArtifactCache.Prune(int64(maxAge.Seconds()))
			if err != nil {
				a.Logger.Warn().Err(err).Msg("Cache prune failed")
				return
			}
			if removed > 0 {
				a.Logger.Info().Int("removed", removed).Msg("Pruned stage cache")
			}
		}); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to schedule cache prune")
		}
	}

	a.cron.Start()
}

// Close shuts components down in reverse dependency order.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.cron != nil {
		a.cron.Stop()
	}
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
	}
	a.cancelCtx()

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Queue close failed")
		}
	}
	if a.ModelPool != nil {
		if err := a.ModelPool.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Model pool close failed")
		}
	}
	if a.StatusChannel != nil {
		if err := a.StatusChannel.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Status channel close failed")
		}
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
			return err
		}
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}

package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/mrlokans/caresync/internal/config"
	"github.com/mrlokans/caresync/internal/connectivity"
	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/database/activity"
	"github.com/mrlokans/caresync/internal/database/queue"
	syncrepo "github.com/mrlokans/caresync/internal/database/sync"
	"github.com/mrlokans/caresync/internal/events"
	http_controllers "github.com/mrlokans/caresync/internal/http"
	"github.com/mrlokans/caresync/internal/notify"
	"github.com/mrlokans/caresync/internal/records"
	"github.com/mrlokans/caresync/internal/remote"
	"github.com/mrlokans/caresync/internal/scheduler"
	"github.com/mrlokans/caresync/internal/session"
	"github.com/mrlokans/caresync/internal/syncengine"
	"github.com/mrlokans/caresync/internal/tasks"
	"github.com/mrlokans/caresync/internal/telemetry"
	"github.com/mrlokans/caresync/internal/tokenstore"
)

// notifierBuffer is the bus subscription size for the notifier.
const notifierBuffer = 256

// App holds every long-lived component of the process.
type App struct {
	Config *config.Config

	DB       *database.Database
	Queue    *queue.Repository
	Progress *syncrepo.Repository
	Activity *activity.Repository

	Session  *session.Context
	Bus      *events.Bus
	Remote   *remote.Client
	Tasks    *tasks.Client
	Engine   *syncengine.Engine
	Monitor  *connectivity.Monitor
	Records  *records.Service
	Notifier *notify.Notifier

	Scheduler *scheduler.SyncScheduler

	shutdownTelemetry func(context.Context) error
}

// Build opens the store and wires the sync stack. Nothing is started; Serve
// runs the background components. Close releases what Build opened.
func Build(cfg *config.Config) (*App, error) {
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app := &App{
		Config:   cfg,
		DB:       db,
		Queue:    queue.NewRepository(db.DB),
		Progress: syncrepo.NewRepository(db.DB),
		Activity: activity.NewRepository(db.DB),
		Bus:      events.NewBus(),
	}

	if interrupted, err := app.Progress.MarkInterrupted(); err != nil {
		log.Printf("WARNING: failed to check for an interrupted sync pass: %v", err)
	} else if interrupted {
		log.Printf("Previous sync pass was interrupted, pending entries will be retried")
	}

	tokens, err := tokenstore.New(db.DB, tokenstore.Config{
		EncryptionKey: cfg.Token.EncryptionKey,
		Passphrase:    cfg.Token.Passphrase,
		KeyFilePath:   cfg.Token.KeyFile,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}
	app.Session = session.New().WithPersister(tokens)

	app.Remote = remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.Timeout,
	}, app.Session, app.Bus)

	app.Notifier = notify.NewNotifier(app.Activity, 0)

	taskCfg := tasks.Config{
		Workers:            cfg.Tasks.Workers,
		ReplayAttempts:     cfg.Tasks.ReplayMaxAttempts,
		ReplayInitialDelay: cfg.Tasks.ReplayInitialDelay,
		ReplayMaxDelay:     cfg.Tasks.ReplayMaxDelay,
		TaskTimeout:        cfg.Tasks.TaskTimeout,
		OfflineDelay:       cfg.Tasks.ReplayOfflineDelay,
		ReleaseAfter:       cfg.Tasks.ReleaseAfter,
		CleanupInterval:    cfg.Tasks.CleanupInterval,
		RetentionDuration:  cfg.Tasks.RetentionDuration,
	}
	app.Tasks, err = tasks.NewClient(cfg.Database.Path, taskCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize request retry queue: %w", err)
	}
	app.Tasks.Register(
		tasks.NewReplayRequestQueue(app.Remote, app.Session, app.Tasks, taskCfg),
		tasks.NewCleanupActivityQueue(app.Notifier),
	)
	app.Remote.SetReplayer(app.Tasks)

	mp, shutdown, err := telemetry.Init(telemetry.Config{
		Enabled: cfg.Telemetry.Enabled,
		Stdout:  cfg.Telemetry.Stdout,
	})
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	app.shutdownTelemetry = shutdown

	app.Engine = syncengine.NewEngine(
		syncengine.Config{MaxRetries: cfg.Sync.MaxRetries},
		db.Store(), app.Queue, app.Remote, app.Session,
	).WithProgress(app.Progress).WithPublisher(app.Bus)

	if recorder, err := telemetry.NewRecorder(mp); err != nil {
		log.Printf("WARNING: sync metrics disabled: %v", err)
	} else {
		app.Engine.WithRecorder(recorder)
	}

	app.Monitor = connectivity.NewMonitor(connectivity.Config{
		ProbePath:     cfg.Connectivity.ProbePath,
		ProbeInterval: cfg.Connectivity.ProbeInterval,
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout,
	}, app.Session, app.Remote, app.Bus)
	app.Monitor.OnOnline(app.Engine.Trigger)

	app.Records = records.NewService(db.Store(), app.Queue)
	app.Records.OnWrite(func() {
		if app.Session.Online() {
			app.Engine.Trigger()
		}
	})

	retentionDays := cfg.Activity.RetentionDays
	app.Scheduler = scheduler.NewSyncScheduler(scheduler.Config{
		Enabled:         cfg.Sync.Enabled,
		Interval:        cfg.Sync.Interval,
		CleanupSchedule: cfg.Activity.CleanupSchedule,
	}, app.Engine, app.Session).WithCleanup(func(ctx context.Context) error {
		return app.Tasks.EnqueueActivityCleanup(ctx, retentionDays)
	})

	return app, nil
}

// Router builds the HTTP API over the app's components.
func (a *App) Router(version string) *gin.Engine {
	return http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:  a.DB,
		Records:   a.Records,
		Session:   a.Session,
		Engine:    a.Engine,
		Progress:  a.Progress,
		Queue:     a.Queue,
		Replays:   a.Tasks,
		Scheduler: a.Scheduler,
		Notices:   a.Notifier,
		OnLogin:   a.Engine.Trigger,
		Version:   version,
	})
}

// Serve runs the background components and, when enabled, the HTTP API until
// ctx is cancelled, then shuts them down within the configured timeout.
func (a *App) Serve(ctx context.Context, version string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)

	notices, unsubscribe := a.Bus.Subscribe(notifierBuffer)
	defer unsubscribe()

	group.Go(func() error { return a.Notifier.Run(gctx, notices) })
	// The retry queue gets its own context: Stop must run before it is cancelled.
	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()
	group.Go(func() error {
		a.Tasks.Start(taskCtx)
		return nil
	})
	group.Go(func() error { return a.Monitor.Run(gctx) })

	if err := a.Scheduler.Start(gctx); err != nil {
		cancel()
		cancelTasks()
		_ = group.Wait()
		return err
	}

	var srv *http.Server
	if a.Config.API.Enabled {
		if a.Config.API.Debug {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
		srv = &http.Server{
			Addr:    a.Config.APIAddr(),
			Handler: a.Router(version),
		}
		group.Go(func() error {
			log.Printf("Starting server at %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		})
	}

	<-gctx.Done()

	timeout := a.Config.ShutdownTimeout()
	log.Printf("Shutting down, waiting %v before killing", timeout)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}
	a.Scheduler.Stop()
	a.Engine.Stop()
	a.Tasks.Stop(shutdownCtx)
	cancelTasks()

	return group.Wait()
}

// Close releases the stores and flushes telemetry.
func (a *App) Close() {
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout())
		defer cancel()
		if err := a.shutdownTelemetry(ctx); err != nil {
			log.Printf("Error flushing telemetry: %v", err)
		}
	}
	a.closeStores()
}

func (a *App) closeStores() {
	if a.Tasks != nil {
		if err := a.Tasks.Close(); err != nil {
			log.Printf("Error closing task client: %v", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(cfg *config.Config, version string) error {
	log.Printf("Starting CareSync v%s", version)

	app, err := Build(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	// kill (no param) sends SIGTERM, kill -2 is SIGINT
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Serve(ctx, version); err != nil {
		return err
	}
	log.Println("Server exiting")
	return nil
}

// Package server wires the lifecycle engine together: storage, services,
// the HTTP API, the gRPC health endpoint and the background scheduler.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/config"
	"github.com/dmitrijs2005/moodcycle/internal/server/httpapi"
	"github.com/dmitrijs2005/moodcycle/internal/server/notifier"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/moodcycle/internal/server/scheduler"
	"github.com/dmitrijs2005/moodcycle/internal/server/services"

	gs "github.com/dmitrijs2005/moodcycle/internal/server/grpc"
)

const (
	dbConnectRetries  = 5
	dbConnectBackoff  = 500 * time.Millisecond
	readinessInterval = 10 * time.Second
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	resets        *services.ResetService
	notifications *services.NotificationService
	tasks         *services.TaskService
}

// NewApp opens storage, applies migrations and builds the services. The
// "memory" DSN selects the in-process store.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	if c.DatabaseDSN == config.MemoryDSN {
		logger.Warn(ctx, "using in-memory storage; state is lost on exit")
		app.repomanager = repomanager.NewInMemoryRepositoryManager()
	} else {
		db, err := openDB(ctx, c.DatabaseDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		m := repomanager.NewPostgresRepositoryManager()
		if err := m.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db migration error: %w", err)
		}
		app.db = db
		app.repomanager = m
	}

	n, err := newNotifier(c, logger)
	if err != nil {
		return nil, err
	}

	app.notifications = services.NewNotificationService(app.db, app.repomanager, c, n, logger)
	app.resets = services.NewResetService(app.db, app.repomanager, c, app.notifications, logger)
	app.tasks = services.NewTaskService(app.db, app.repomanager, c, logger)
	return app, nil
}

func openDB(ctx context.Context, dsn string, logger logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(dbConnectRetries, retry.NewExponential(dbConnectBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn(ctx, "database not reachable yet", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newNotifier(c *config.Config, logger logging.Logger) (notifier.Notifier, error) {
	switch c.Notifier {
	case config.NotifierLog:
		return notifier.NewLogNotifier(logger), nil
	case config.NotifierSMTP:
		return notifier.NewMailer(notifier.SMTPConfig{
			Addr:     c.SMTPAddr,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.MailFrom,
		}), nil
	case config.NotifierWebhook:
		return notifier.NewWebhookNotifier(c.WebhookURL, &http.Client{Timeout: c.NotifyTimeout}), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", c.Notifier)
	}
}

func (app *App) readiness(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	return app.db.PingContext(ctx)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	gin.SetMode(gin.ReleaseMode)
	s := httpapi.NewServer(app.config.HTTPAddr, app.logger, app.resets, app.notifications, app.tasks, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.readiness, readinessInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startScheduler(ctx context.Context) {
	s := scheduler.New(app.resets, app.notifications, app.config.SchedulerInterval,
		app.config.SchedulerBatchSize, app.config.ResetWorkers, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}

// Run blocks until a signal arrives or ctx is cancelled, then waits for every
// component to stop.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	for _, start := range []func(){
		func() { app.startHTTPServer(ctx, cancelFunc) },
		func() { app.startGRPCServer(ctx, cancelFunc) },
		func() { app.startScheduler(ctx) },
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start()
		}()
	}
	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "closing database", "error", err)
		}
	}
	app.logger.Info(ctx, "App stopped")
}

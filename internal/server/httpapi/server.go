// Package httpapi is the operator-facing JSON API of the lifecycle engine.
// Every route except /healthz requires a bearer token signed with the
// server secret.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/services"
)

type Resetter interface {
	RunReset(ctx context.Context, userID string, now time.Time) (*services.ResetResult, error)
}

type NotifyChecker interface {
	MaybeNotify(ctx context.Context, userID string, now time.Time) (*services.NotificationResult, error)
}

type TaskManager interface {
	Enroll(ctx context.Context, userID, email string, now time.Time) (*models.UserProgress, error)
	CreateTask(ctx context.Context, userID, title string, sustainable bool, now time.Time) (*models.Task, error)
	CompleteTask(ctx context.Context, userID, taskID string, now time.Time) (*models.Task, error)
	Progress(ctx context.Context, userID string, now time.Time) (*services.ProgressView, error)
}

type Server struct {
	address string
	router  *gin.Engine
	resets  Resetter
	notify  NotifyChecker
	tasks   TaskManager
	secret  []byte
	now     func() time.Time
	logger  logging.Logger
}

func NewServer(address string, l logging.Logger, resets Resetter, notify NotifyChecker, tasks TaskManager, secretKey string) *Server {
	s := &Server{
		address: address,
		router:  gin.New(),
		resets:  resets,
		notify:  notify,
		tasks:   tasks,
		secret:  []byte(secretKey),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  l.With("module", "http_server"),
	}

	s.router.Use(gin.Recovery(), s.requestLogger())
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/", s.bearerAuth())
	{
		api.POST("/reset", s.handleReset)
		api.POST("/notify-check", s.handleNotifyCheck)
		api.POST("/users", s.handleEnroll)
		api.GET("/users/:userId/progress", s.handleProgress)
		api.POST("/users/:userId/tasks", s.handleCreateTask)
		api.POST("/users/:userId/tasks/:taskId/complete", s.handleCompleteTask)
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrNoTaskService = errors.New("task service is required")
var ErrNoEvents = errors.New("event source is required")

type Server struct {
	router *gin.Engine

	httpSrv *http.Server
}

type ServerOptions struct {
	TaskService taskService
	Events      eventSource
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
	Addr    string
}

func NewServer(opts *ServerOptions) (*Server, error) {
	if opts.TaskService == nil {
		return nil, ErrNoTaskService
	}
	if opts.Events == nil {
		return nil, ErrNoEvents
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		RecoveryMiddleware(opts.Logger),
		RequestIDMiddleware(),
		LoggingMiddleware(opts.Logger),
		MetricsMiddleware(),
	)

	h := NewHandler(opts.TaskService, opts.Events, opts.Logger)
	setupRouter(router, h)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	return &Server{
		router: router,
		httpSrv: &http.Server{
			Addr:    opts.Addr,
			Handler: router,
		}}, nil
}

func (s *Server) Run() error {
	return s.httpSrv.ListenAndServe()
}
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func setupRouter(router *gin.Engine, h *handler) {
	group := router.Group("/")
	group.GET("/tasks", h.listTasks)
	group.POST("/tasks", h.createTask)
	group.GET("/tasks/:id", h.getTask)
	group.PATCH("/tasks/:id", h.updateTask)
	group.DELETE("/tasks/:id", h.deleteTask)
	group.POST("/tasks/:id/complete", h.completeTask)

	group.GET("/view", h.getView)
	group.PUT("/view/filter", h.setFilter)
	group.PUT("/view/query", h.setQuery)

	group.POST("/pages/:scope/next", h.nextPage)
	group.POST("/pages/:scope/reset", h.resetPage)

	group.GET("/events", h.streamEvents)
	group.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

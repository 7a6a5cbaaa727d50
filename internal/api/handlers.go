package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/notify"
	"github.com/mauzec/taskindex/internal/paging"
	"github.com/mauzec/taskindex/internal/service"
	"go.uber.org/zap"
)

type taskService interface {
	CreateTask(ctx context.Context, draft core.Draft) (core.Outcome, error)
	UpdateTask(ctx context.Context, id string, patch core.Patch) (core.Outcome, error)
	CompleteTask(ctx context.Context, id string, completed bool) (core.Outcome, error)
	DeleteTask(ctx context.Context, id string) (core.Outcome, error)
	GetTask(ctx context.Context, id string) (*core.Task, error)
	Query(ctx context.Context, filter core.FilterSpec, query string) ([]*core.Task, error)

	View(ctx context.Context) (service.ViewState, error)
	SetFilter(ctx context.Context, filter core.FilterSpec) ([]*core.Task, error)
	SetSearchQuery(query string)

	LoadMore(ctx context.Context, scope core.Scope) (paging.Result, error)
	ResetScope(scope core.Scope) error
	PageState(scope core.Scope) paging.State
}

type eventSource interface {
	Subscribe() (<-chan notify.Event, func())
}

type handler struct {
	tasks  taskService
	events eventSource
	logger *zap.Logger
}

const handlerTimeout = 2 * time.Minute

func NewHandler(ts taskService, events eventSource, logger *zap.Logger) *handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &handler{tasks: ts, events: events, logger: logger}
}

// mutationContext is not bound to the request: a remote write that started
// runs to confirmation or rollback.
func mutationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

func (h *handler) createTask(c *gin.Context) {
	req := CreateTaskRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}

	ctx, canc := mutationContext()
	defer canc()

	out, err := h.tasks.CreateTask(ctx, req.Draft())
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	SetTaskID(c, out.Task.ID)
	h.logger.Info("task created",
		zap.String("reqid", GetRequestID(c)),
		zap.String("task_id", out.Task.ID),
	)
	c.JSON(http.StatusCreated, NewOutcomeResponse(out))
}

func (h *handler) getTask(c *gin.Context) {
	id := c.Param("id")
	SetTaskID(c, id)
	ctx, canc := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer canc()

	t, err := h.tasks.GetTask(ctx, id)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTaskResponse(t))
}

func (h *handler) listTasks(c *gin.Context) {
	req := FilterRequest{}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}
	ctx, canc := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer canc()

	tasks, err := h.tasks.Query(ctx, req.Spec(), req.Query)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTasksListResponse(tasks))
}

func (h *handler) updateTask(c *gin.Context) {
	id := c.Param("id")
	SetTaskID(c, id)
	req := UpdateTaskRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}

	ctx, canc := mutationContext()
	defer canc()

	out, err := h.tasks.UpdateTask(ctx, id, req.Patch())
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOutcomeResponse(out))
}

func (h *handler) completeTask(c *gin.Context) {
	id := c.Param("id")
	SetTaskID(c, id)
	req := CompleteTaskRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequestResponse(c, err)
			return
		}
	}

	ctx, canc := mutationContext()
	defer canc()

	out, err := h.tasks.CompleteTask(ctx, id, req.Value())
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOutcomeResponse(out))
}

func (h *handler) deleteTask(c *gin.Context) {
	id := c.Param("id")
	SetTaskID(c, id)

	ctx, canc := mutationContext()
	defer canc()

	out, err := h.tasks.DeleteTask(ctx, id)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOutcomeResponse(out))
}

func (h *handler) getView(c *gin.Context) {
	ctx, canc := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer canc()

	v, err := h.tasks.View(ctx)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewViewResponse(v))
}

func (h *handler) setFilter(c *gin.Context) {
	req := FilterRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}
	ctx, canc := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer canc()

	tasks, err := h.tasks.SetFilter(ctx, req.Spec())
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTasksListResponse(tasks))
}

// setQuery answers before the debounced recomputation runs; the result
// arrives on the event stream.
func (h *handler) setQuery(c *gin.Context) {
	req := SearchQueryRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}
	h.tasks.SetSearchQuery(req.Query)
	c.JSON(http.StatusAccepted, gin.H{"query": req.Query})
}

func (h *handler) nextPage(c *gin.Context) {
	scope := core.Scope(c.Param("scope"))
	ctx, canc := mutationContext()
	defer canc()

	res, err := h.tasks.LoadMore(ctx, scope)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPageResponse(scope, res, h.tasks.PageState(scope)))
}

func (h *handler) resetPage(c *gin.Context) {
	scope := core.Scope(c.Param("scope"))
	if err := h.tasks.ResetScope(scope); err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPageResponse(scope, paging.Result{Scope: scope}, h.tasks.PageState(scope)))
}

// streamEvents relays store notifications as server-sent events until the
// client leaves or the bus closes.
func (h *handler) streamEvents(c *gin.Context) {
	ch, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	h.logger.Debug("event stream opened", zap.String("reqid", GetRequestID(c)))
	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *handler) badRequestResponse(c *gin.Context, err error) {
	if c != nil && err != nil {
		c.Error(err) //nolint:errcheck
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "bad request",
		"details": err.Error(),
	})
}

func (h *handler) errorResponse(c *gin.Context, err error) {
	if c != nil && err != nil {
		c.Error(err) //nolint:errcheck
	}
	if err == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
		return
	}

	if appErr, ok := core.AsAppError(err); ok {
		s := appErr.HTTPStatus()
		p := gin.H{
			"error": appErr.PublicMessage(),
			"code":  appErr.Code,
		}
		if appErr.SafeToShow {
			switch {
			case appErr.Err != nil:
				p["details"] = appErr.Err.Error()
			case appErr.Message != "":
				p["details"] = appErr.Message
			}
		}
		if core.Retryable(err) {
			p["retry"] = true
		}
		h.logger.Warn("handler error",
			zap.String("reqid", GetRequestID(c)),
			zap.String("task_id", GetTaskID(c)),
			zap.String("error", err.Error()),
		)
		c.AbortWithStatusJSON(s, p)
		return
	}

	h.logger.Error("handler unknown error",
		zap.String("reqid", GetRequestID(c)),
		zap.String("task_id", GetTaskID(c)),
		zap.String("error", err.Error()),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
	})
}

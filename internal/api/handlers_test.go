package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/notify"
	"github.com/mauzec/taskindex/internal/paging"
	"github.com/mauzec/taskindex/internal/service"
	"github.com/stretchr/testify/require"
)

type mockTaskService struct {
	LastQuery string
	LastScope core.Scope

	CreateTaskF   func(ctx context.Context, d core.Draft) (core.Outcome, error)
	UpdateTaskF   func(ctx context.Context, id string, p core.Patch) (core.Outcome, error)
	CompleteTaskF func(ctx context.Context, id string, completed bool) (core.Outcome, error)
	DeleteTaskF   func(ctx context.Context, id string) (core.Outcome, error)
	GetTaskF      func(ctx context.Context, id string) (*core.Task, error)
	QueryF        func(ctx context.Context, f core.FilterSpec, q string) ([]*core.Task, error)
	ViewF         func(ctx context.Context) (service.ViewState, error)
	SetFilterF    func(ctx context.Context, f core.FilterSpec) ([]*core.Task, error)
	LoadMoreF     func(ctx context.Context, scope core.Scope) (paging.Result, error)
	ResetScopeF   func(scope core.Scope) error
}

func (m *mockTaskService) CreateTask(ctx context.Context, d core.Draft) (core.Outcome, error) {
	return m.CreateTaskF(ctx, d)
}
func (m *mockTaskService) UpdateTask(ctx context.Context, id string, p core.Patch) (core.Outcome, error) {
	return m.UpdateTaskF(ctx, id, p)
}
func (m *mockTaskService) CompleteTask(ctx context.Context, id string, completed bool) (core.Outcome, error) {
	return m.CompleteTaskF(ctx, id, completed)
}
func (m *mockTaskService) DeleteTask(ctx context.Context, id string) (core.Outcome, error) {
	return m.DeleteTaskF(ctx, id)
}
func (m *mockTaskService) GetTask(ctx context.Context, id string) (*core.Task, error) {
	return m.GetTaskF(ctx, id)
}
func (m *mockTaskService) Query(ctx context.Context, f core.FilterSpec, q string) ([]*core.Task, error) {
	return m.QueryF(ctx, f, q)
}
func (m *mockTaskService) View(ctx context.Context) (service.ViewState, error) {
	return m.ViewF(ctx)
}
func (m *mockTaskService) SetFilter(ctx context.Context, f core.FilterSpec) ([]*core.Task, error) {
	return m.SetFilterF(ctx, f)
}
func (m *mockTaskService) SetSearchQuery(q string) {
	m.LastQuery = q
}
func (m *mockTaskService) LoadMore(ctx context.Context, scope core.Scope) (paging.Result, error) {
	m.LastScope = scope
	return m.LoadMoreF(ctx, scope)
}
func (m *mockTaskService) ResetScope(scope core.Scope) error {
	m.LastScope = scope
	return m.ResetScopeF(scope)
}
func (m *mockTaskService) PageState(scope core.Scope) paging.State {
	return paging.State{HasMore: true}
}

var testTask = &core.Task{
	ID:       "r-1",
	Text:     "Buy milk",
	Section:  core.SectionToday,
	Priority: core.PriorityHigh,
}

func newTestRouter(svc *mockTaskService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	setupRouter(r, NewHandler(svc, notify.NewBus(1, nil), nil))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateTaskAPI(t *testing.T) {
	t.Parallel()
	svc := &mockTaskService{
		CreateTaskF: func(ctx context.Context, d core.Draft) (core.Outcome, error) {
			require.Equal(t, "Buy milk", d.Text)
			require.Equal(t, core.SectionToday, d.Section)
			require.Equal(t, core.PriorityHigh, d.Priority)
			return core.Outcome{State: core.OutcomeConfirmed, Task: testTask.CloneTask()}, nil
		},
	}
	rec := do(newTestRouter(svc), http.MethodPost, "/tasks",
		`{"text":"Buy milk","section":"today","priority":"high"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := OutcomeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "confirmed", resp.State)
	require.Equal(t, "r-1", resp.Task.ID)
	require.Equal(t, "today", resp.Task.Section)
}

func TestCreateTaskAPIErrors(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantRetry  bool
	}{
		{name: "bad json", body: `{"text":`, wantStatus: http.StatusBadRequest},
		{
			name:       "validation",
			body:       `{"text":"  "}`,
			err:        core.NewTaskValidationError("invalid task draft", nil, "test"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "remote down",
			body:       `{"text":"Buy milk"}`,
			err:        core.NewRemoteUnavailableError("cant create task", nil, "test"),
			wantStatus: http.StatusServiceUnavailable,
			wantRetry:  true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockTaskService{
				CreateTaskF: func(ctx context.Context, d core.Draft) (core.Outcome, error) {
					return core.Outcome{State: core.OutcomeRolledBack}, tc.err
				},
			}
			rec := do(newTestRouter(svc), http.MethodPost, "/tasks", tc.body)
			require.Equal(t, tc.wantStatus, rec.Code)

			body := map[string]any{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
			_, retry := body["retry"]
			require.Equal(t, tc.wantRetry, retry)
		})
	}
}

func TestGetTaskAPI(t *testing.T) {
	t.Parallel()
	svc := &mockTaskService{
		GetTaskF: func(ctx context.Context, id string) (*core.Task, error) {
			if id == testTask.ID {
				return testTask.CloneTask(), nil
			}
			return nil, core.NewTaskNotFoundError(id, "test")
		},
	}
	r := newTestRouter(svc)

	rec := do(r, http.MethodGet, "/tasks/r-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := TaskResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Buy milk", resp.Text)

	rec = do(r, http.MethodGet, "/tasks/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasksAPI(t *testing.T) {
	t.Parallel()
	svc := &mockTaskService{
		QueryF: func(ctx context.Context, f core.FilterSpec, q string) ([]*core.Task, error) {
			require.Equal(t, core.FilterSpec{Section: core.SectionToday, Priority: core.All, Completed: core.All}, f)
			require.Equal(t, "boo", q)
			return []*core.Task{testTask.CloneTask()}, nil
		},
	}
	rec := do(newTestRouter(svc), http.MethodGet, "/tasks?section=today&q=boo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := TasksListResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "r-1", resp.Tasks[0].ID)
}

func TestUpdateAndCompleteTaskAPI(t *testing.T) {
	t.Parallel()
	var gotCompleted []bool
	svc := &mockTaskService{
		UpdateTaskF: func(ctx context.Context, id string, p core.Patch) (core.Outcome, error) {
			require.Equal(t, "r-1", id)
			require.Equal(t, core.SectionWeekly, *p.Section)
			task := testTask.CloneTask()
			task.Section = *p.Section
			return core.Outcome{State: core.OutcomeConfirmed, Task: task}, nil
		},
		CompleteTaskF: func(ctx context.Context, id string, completed bool) (core.Outcome, error) {
			gotCompleted = append(gotCompleted, completed)
			return core.Outcome{State: core.OutcomeConfirmed, Task: testTask.CloneTask()}, nil
		},
	}
	r := newTestRouter(svc)

	rec := do(r, http.MethodPatch, "/tasks/r-1", `{"section":"weekly"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := OutcomeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "weekly", resp.Task.Section)

	rec = do(r, http.MethodPost, "/tasks/r-1/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(r, http.MethodPost, "/tasks/r-1/complete", `{"completed":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []bool{true, false}, gotCompleted)
}

func TestDeleteTaskAPI(t *testing.T) {
	t.Parallel()
	svc := &mockTaskService{
		DeleteTaskF: func(ctx context.Context, id string) (core.Outcome, error) {
			return core.Outcome{State: core.OutcomeConfirmed}, nil
		},
	}
	rec := do(newTestRouter(svc), http.MethodDelete, "/tasks/gone", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := OutcomeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "confirmed", resp.State)
	require.Nil(t, resp.Task)
}

func TestViewAPI(t *testing.T) {
	t.Parallel()
	svc := &mockTaskService{
		ViewF: func(ctx context.Context) (service.ViewState, error) {
			return service.ViewState{Filter: core.AllTasks, Query: "milk", Tasks: []*core.Task{testTask.CloneTask()}}, nil
		},
		SetFilterF: func(ctx context.Context, f core.FilterSpec) ([]*core.Task, error) {
			if f.Priority == "urgent" {
				return nil, core.NewTaskValidationError("unknown priority urgent", nil, "test")
			}
			return nil, nil
		},
	}
	r := newTestRouter(svc)

	rec := do(r, http.MethodGet, "/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := ViewResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "milk", resp.Query)
	require.Equal(t, 1, resp.Count)

	rec = do(r, http.MethodPut, "/view/filter", `{"completed":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(r, http.MethodPut, "/view/filter", `{"priority":"urgent"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPut, "/view/query", `{"query":"boo"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "boo", svc.LastQuery)
}

func TestPagesAPI(t *testing.T) {
	t.Parallel()
	svc := &mockTaskService{
		LoadMoreF: func(ctx context.Context, scope core.Scope) (paging.Result, error) {
			if scope == "someday" {
				return paging.Result{}, core.NewTaskValidationError("unknown scope someday", nil, "test")
			}
			return paging.Result{Scope: scope, Fetched: 3, Inserted: 2, HasMore: true}, nil
		},
		ResetScopeF: func(scope core.Scope) error {
			return nil
		},
	}
	r := newTestRouter(svc)

	rec := do(r, http.MethodPost, "/pages/today/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, core.Scope("today"), svc.LastScope)
	resp := PageResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Inserted)
	require.True(t, resp.HasMore)

	rec = do(r, http.MethodPost, "/pages/someday/next", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, "/pages/all/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, core.GlobalScope, svc.LastScope)
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	_, err := NewServer(&ServerOptions{Events: notify.NewBus(1, nil)})
	require.ErrorIs(t, err, ErrNoTaskService)
	_, err = NewServer(&ServerOptions{TaskService: &mockTaskService{}})
	require.ErrorIs(t, err, ErrNoEvents)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("taskindex_index_tasks 0\n"))
	})
	srv, err := NewServer(&ServerOptions{
		TaskService: &mockTaskService{},
		Events:      notify.NewBus(1, nil),
		Metrics:     metrics,
	})
	require.NoError(t, err)

	rec := do(srv.Router(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(srv.Router(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "taskindex_index_tasks")
}

func TestEventsStream(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	bus := notify.NewBus(4, nil)
	srv, err := NewServer(&ServerOptions{TaskService: &mockTaskService{}, Events: bus})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for bus.Subscribers() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		bus.Publish(notify.Event{
			Kind:  notify.KindTaskCreated,
			Task:  testTask.CloneTask(),
			State: core.OutcomePending,
		})
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var eventLine, dataLine string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data:") {
			dataLine = line
			break
		}
	}
	require.Equal(t, "event:task-created", eventLine)
	require.Contains(t, dataLine, `"id":"r-1"`)
	require.Contains(t, dataLine, `"state":"pending"`)
}

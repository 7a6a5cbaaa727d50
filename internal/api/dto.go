package api

import (
	"time"

	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/paging"
	"github.com/mauzec/taskindex/internal/service"
)

type CreateTaskRequest struct {
	Text     string     `json:"text"`
	Section  string     `json:"section"`
	Priority string     `json:"priority"`
	Date     *time.Time `json:"date"`
}

func (r *CreateTaskRequest) Draft() core.Draft {
	return core.Draft{
		Text:     r.Text,
		Section:  core.Section(r.Section),
		Priority: core.Priority(r.Priority),
		Date:     copyTime(r.Date),
	}
}

type UpdateTaskRequest struct {
	Text      *string    `json:"text"`
	Section   *string    `json:"section"`
	Priority  *string    `json:"priority"`
	Completed *bool      `json:"completed"`
	Date      *time.Time `json:"date"`
	ClearDate bool       `json:"clear_date"`
}

func (r *UpdateTaskRequest) Patch() core.Patch {
	p := core.Patch{
		Text:      r.Text,
		Completed: r.Completed,
		Date:      copyTime(r.Date),
		ClearDate: r.ClearDate,
	}
	if r.Section != nil {
		s := core.Section(*r.Section)
		p.Section = &s
	}
	if r.Priority != nil {
		pr := core.Priority(*r.Priority)
		p.Priority = &pr
	}
	return p
}

// CompleteTaskRequest defaults to completing when the body omits the flag.
type CompleteTaskRequest struct {
	Completed *bool `json:"completed"`
}

func (r *CompleteTaskRequest) Value() bool {
	return r.Completed == nil || *r.Completed
}

// FilterRequest is read from the query string on GET /tasks and from the
// body on PUT /view/filter.
type FilterRequest struct {
	Section   string `form:"section" json:"section"`
	Priority  string `form:"priority" json:"priority"`
	Completed string `form:"completed" json:"completed"`
	Query     string `form:"q" json:"-"`
}

func (r *FilterRequest) Spec() core.FilterSpec {
	return core.FilterSpec{
		Section:   core.Section(r.Section),
		Priority:  core.Priority(r.Priority),
		Completed: core.Completion(r.Completed),
	}.Normalize()
}

type SearchQueryRequest struct {
	Query string `json:"query"`
}

type TaskResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Section   string `json:"section"`
	Priority  string `json:"priority"`
	Completed bool   `json:"completed"`

	Date        *time.Time `json:"date,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type TasksListResponse struct {
	Tasks []*TaskResponse `json:"tasks"`
	Count int             `json:"count"`
}

type OutcomeResponse struct {
	State string        `json:"state"`
	Task  *TaskResponse `json:"task,omitempty"`
}

type ViewResponse struct {
	Filter core.FilterSpec `json:"filter"`
	Query  string          `json:"query"`
	TasksListResponse
}

type PageResponse struct {
	Scope    string `json:"scope"`
	Skipped  bool   `json:"skipped"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	HasMore  bool   `json:"has_more"`
	Loading  bool   `json:"loading"`
}

func NewTasksListResponse(tasks []*core.Task) *TasksListResponse {
	resp := &TasksListResponse{
		Tasks: make([]*TaskResponse, 0, len(tasks)),
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		resp.Tasks = append(resp.Tasks, NewTaskResponse(t))
	}
	resp.Count = len(resp.Tasks)
	return resp
}

func NewTaskResponse(task *core.Task) *TaskResponse {
	if task == nil {
		return nil
	}
	return &TaskResponse{
		ID:        task.ID,
		Text:      task.Text,
		Section:   string(task.Section),
		Priority:  string(task.Priority),
		Completed: task.Completed,

		Date:        copyTime(task.Date),
		CreatedAt:   copyTime(task.CreatedAt),
		CompletedAt: copyTime(task.CompletedAt),
	}
}

func NewOutcomeResponse(out core.Outcome) *OutcomeResponse {
	return &OutcomeResponse{
		State: string(out.State),
		Task:  NewTaskResponse(out.Task),
	}
}

func NewViewResponse(v service.ViewState) *ViewResponse {
	return &ViewResponse{
		Filter:            v.Filter,
		Query:             v.Query,
		TasksListResponse: *NewTasksListResponse(v.Tasks),
	}
}

func NewPageResponse(scope core.Scope, res paging.Result, st paging.State) *PageResponse {
	return &PageResponse{
		Scope:    string(scope),
		Skipped:  res.Skipped,
		Fetched:  res.Fetched,
		Inserted: res.Inserted,
		HasMore:  st.HasMore,
		Loading:  st.Loading,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	nt := *t
	return &nt
}

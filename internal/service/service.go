package service

import (
	"context"
	"sync"
	"time"

	"github.com/mauzec/taskindex/internal/cache"
	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/debounce"
	"github.com/mauzec/taskindex/internal/index"
	"github.com/mauzec/taskindex/internal/notify"
	"github.com/mauzec/taskindex/internal/paging"
	"github.com/mauzec/taskindex/internal/remote"
	"github.com/mauzec/taskindex/internal/search"
	"go.uber.org/zap"
)

const (
	DefaultPageSize       = 50
	DefaultSearchDebounce = 300 * time.Millisecond
	DefaultCacheSize      = 1
)

// Options tunes a TaskService. Zero values fall back to defaults.
type Options struct {
	PageSize       int
	CacheSize      int
	SearchDebounce time.Duration
	// WarmStart rebuilds the index from a full remote listing on creation.
	WarmStart bool

	Publisher notify.Publisher
	Scheduler debounce.Scheduler
	Logger    *zap.Logger
}

// ViewState is what the UI currently looks at.
type ViewState struct {
	Filter core.FilterSpec `json:"filter"`
	Query  string          `json:"query"`
	Tasks  []*core.Task    `json:"tasks"`
}

// TaskService is the only way to mutate the index. It keeps the index, the
// result cache and the remote store in step and tells subscribers about it.
type TaskService struct {
	remote remote.Remote
	pages  *paging.Coordinator

	// mu guards idx, results, deleted and the view.
	mu      sync.RWMutex
	idx     *index.Index
	engine  *search.Engine
	results *cache.ResultCache
	filter  core.FilterSpec
	query   string
	// pendingQuery is the latest search input; it becomes query once the
	// debounced refresh runs.
	pendingQuery string
	// deleted holds ids removed locally whose remote delete is in flight or
	// confirmed. Ingest never brings them back.
	deleted map[string]struct{}

	// writeMu keeps mutations in order across their remote calls.
	writeMu sync.Mutex

	pub      notify.Publisher
	sched    debounce.Scheduler
	debounce time.Duration

	idGen  IDGenerator
	now    func() time.Time
	logger *zap.Logger
}

func NewTaskService(
	ctx context.Context,
	rem remote.Remote,
	idGen IDGenerator,
	now func() time.Time,
	opts *Options,
) (*TaskService, error) {
	const op = "service.NewTaskService"
	if rem == nil {
		return nil, core.NewAppErrorBuilder(core.ErrorCodeInternal).
			Message("remote store required").
			SafeToShow(false).
			Oper(op).
			Build()
	}
	if idGen == nil {
		return nil, core.NewAppErrorBuilder(core.ErrorCodeInternal).
			Message("id gen required").
			SafeToShow(false).
			Oper(op).
			Build()
	}
	if now == nil {
		now = time.Now
	}
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	delay := opts.SearchDebounce
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}
	pub := opts.Publisher
	if pub == nil {
		pub = discard{}
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = debounce.New()
	}

	results, err := cache.New(cacheSize)
	if err != nil {
		return nil, internalError(op, "result cache", err)
	}
	idx := index.New()

	ts := &TaskService{
		remote:   rem,
		idx:      idx,
		engine:   search.NewEngine(idx),
		results:  results,
		filter:   core.AllTasks,
		deleted:  make(map[string]struct{}),
		pub:      pub,
		sched:    sched,
		debounce: delay,
		idGen:    idGen,
		now:      now,
		logger:   logger,
	}
	ts.pages, err = paging.NewCoordinator(&paging.Options{
		Fetcher:  rem,
		Sink:     ts,
		PageSize: pageSize,
		Logger:   logger.Named("paging"),
	})
	if err != nil {
		return nil, internalError(op, "pagination", err)
	}

	if opts.WarmStart {
		if err := ts.Reload(ctx); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// CreateTask indexes the draft under a placeholder id, then asks the remote
// store to create it. On success the placeholder is swapped for the remote
// record; on failure the placeholder is removed.
func (ts *TaskService) CreateTask(ctx context.Context, draft core.Draft) (core.Outcome, error) {
	const op = "service.TaskService.CreateTask"

	if err := ctx.Err(); err != nil {
		return core.Outcome{}, internalError(op, "ctx error", err)
	}
	d, err := core.ValidateDraft(draft)
	if err != nil {
		return core.Outcome{}, tryAsAppError(err, op)
	}
	placeholder, err := ts.idGen.NewID()
	if err != nil {
		return core.Outcome{}, internalError(op, "gen id error", err)
	}

	now := ts.now().UTC()
	local := core.NewTask(placeholder, &now, d)

	ts.writeMu.Lock()
	defer ts.writeMu.Unlock()

	ts.mu.Lock()
	if err := ts.idx.Insert(local); err != nil {
		ts.mu.Unlock()
		return core.Outcome{}, tryAsAppError(err, op)
	}
	ts.changedLocked()
	ts.mu.Unlock()
	ts.emit(notify.KindTaskCreated, local, core.OutcomePending, nil)

	created, err := ts.remote.CreateRecord(ctx, d)
	if err == nil && created == nil {
		err = errNoRecord
	}
	if err != nil {
		ts.mu.Lock()
		ts.idx.Remove(placeholder)
		ts.changedLocked()
		ts.mu.Unlock()

		ts.logger.Warn("remote create failed, rolled back",
			zap.String("task_id", placeholder),
			zap.Error(err),
		)
		ts.emit(notify.KindTaskCreated, local, core.OutcomeRolledBack, err)
		return core.Outcome{State: core.OutcomeRolledBack, Task: local.CloneTask()},
			remoteError(op, "cant create task", err)
	}

	ts.mu.Lock()
	ts.idx.Remove(placeholder)
	// a page fetch may have brought the record in already
	ts.idx.Remove(created.ID)
	if err := ts.idx.Insert(created); err != nil {
		ts.changedLocked()
		ts.mu.Unlock()

		ts.logger.Error("remote record created but not indexed",
			zap.String("placeholder", placeholder),
			zap.String("task_id", created.ID),
			zap.Error(err),
		)
		ts.emit(notify.KindTaskCreated, local, core.OutcomeRolledBack, err)
		return core.Outcome{State: core.OutcomeRolledBack, Task: local.CloneTask()},
			tryAsAppError(err, op)
	}
	ts.changedLocked()
	ts.mu.Unlock()

	ts.logger.Debug("task created",
		zap.String("placeholder", placeholder),
		zap.String("task_id", created.ID),
	)
	ts.emit(notify.KindTaskCreated, created, core.OutcomeConfirmed, nil)
	return core.Outcome{State: core.OutcomeConfirmed, Task: created.CloneTask()}, nil
}

// UpdateTask applies patch locally, then remotely. A rejected remote write
// restores the previous task.
func (ts *TaskService) UpdateTask(ctx context.Context, taskID string, patch core.Patch) (core.Outcome, error) {
	const op = "service.TaskService.UpdateTask"
	return ts.update(ctx, op, notify.KindTaskUpdated, taskID, patch)
}

// CompleteTask marks the task completed now, or clears its completion.
func (ts *TaskService) CompleteTask(ctx context.Context, taskID string, completed bool) (core.Outcome, error) {
	const op = "service.TaskService.CompleteTask"
	return ts.update(ctx, op, notify.KindTaskCompleted, taskID, core.Patch{Completed: &completed})
}

func (ts *TaskService) update(
	ctx context.Context,
	op string,
	kind notify.Kind,
	taskID string,
	patch core.Patch,
) (core.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return core.Outcome{}, internalError(op, "ctx error", err)
	}
	p, err := core.ValidatePatch(patch)
	if err != nil {
		return core.Outcome{}, tryAsAppError(err, op)
	}
	if p.Completed != nil {
		p.CompletedAt = nil
		if *p.Completed {
			now := ts.now().UTC()
			p.CompletedAt = &now
		}
	}

	ts.writeMu.Lock()
	defer ts.writeMu.Unlock()

	ts.mu.Lock()
	old, ok := ts.idx.Lookup(taskID)
	if !ok {
		ts.mu.Unlock()
		return core.Outcome{}, core.NewTaskNotFoundError(taskID, op)
	}
	old = old.CloneTask()
	updated := core.ApplyPatch(old, p)
	ts.replaceLocked(taskID, updated)
	ts.changedLocked()
	ts.mu.Unlock()
	ts.emit(kind, updated, core.OutcomePending, nil)

	if err := ts.remote.UpdateRecord(ctx, taskID, p); err != nil {
		ts.mu.Lock()
		ts.replaceLocked(taskID, old)
		ts.changedLocked()
		ts.mu.Unlock()

		ts.logger.Warn("remote update failed, rolled back",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		ts.emit(kind, old, core.OutcomeRolledBack, err)
		return core.Outcome{State: core.OutcomeRolledBack, Task: old.CloneTask()},
			remoteError(op, "cant update task", err)
	}

	ts.emit(kind, updated, core.OutcomeConfirmed, nil)
	return core.Outcome{State: core.OutcomeConfirmed, Task: updated.CloneTask()}, nil
}

// DeleteTask removes the task locally, then remotely. Deleting an unknown id
// is a confirmed no-op.
func (ts *TaskService) DeleteTask(ctx context.Context, taskID string) (core.Outcome, error) {
	const op = "service.TaskService.DeleteTask"

	if err := ctx.Err(); err != nil {
		return core.Outcome{}, internalError(op, "ctx error", err)
	}

	ts.writeMu.Lock()
	defer ts.writeMu.Unlock()

	ts.mu.Lock()
	removed, ok := ts.idx.Remove(taskID)
	if !ok {
		ts.mu.Unlock()
		return core.Outcome{State: core.OutcomeConfirmed}, nil
	}
	ts.deleted[taskID] = struct{}{}
	ts.changedLocked()
	ts.mu.Unlock()
	ts.emit(notify.KindTaskDeleted, removed, core.OutcomePending, nil)

	if err := ts.remote.DeleteRecord(ctx, taskID); err != nil {
		ts.mu.Lock()
		delete(ts.deleted, taskID)
		ts.replaceLocked(taskID, removed)
		ts.changedLocked()
		ts.mu.Unlock()

		ts.logger.Warn("remote delete failed, rolled back",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		ts.emit(notify.KindTaskDeleted, removed, core.OutcomeRolledBack, err)
		return core.Outcome{State: core.OutcomeRolledBack, Task: removed.CloneTask()},
			remoteError(op, "cant delete task", err)
	}

	ts.emit(notify.KindTaskDeleted, removed, core.OutcomeConfirmed, nil)
	return core.Outcome{State: core.OutcomeConfirmed, Task: removed.CloneTask()}, nil
}

// GetTask returns only one task by id.
func (ts *TaskService) GetTask(ctx context.Context, taskID string) (*core.Task, error) {
	const op = "service.TaskService.GetTask"

	if err := ctx.Err(); err != nil {
		return nil, internalError(op, "ctx error", err)
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.idx.Lookup(taskID)
	if !ok {
		return nil, core.NewTaskNotFoundError(taskID, op)
	}
	return t.CloneTask(), nil
}

// Query returns the tasks matching filter and query, ordered by creation.
// It does not touch the view.
func (ts *TaskService) Query(ctx context.Context, filter core.FilterSpec, query string) ([]*core.Task, error) {
	const op = "service.TaskService.Query"

	if err := ctx.Err(); err != nil {
		return nil, internalError(op, "ctx error", err)
	}
	if err := filter.Validate(); err != nil {
		return nil, tryAsAppError(err, op)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.queryLocked(filter, query), nil
}

// SetFilter changes the view filter and publishes the new result at once.
// Moving to another section restarts that section's pagination.
func (ts *TaskService) SetFilter(ctx context.Context, filter core.FilterSpec) ([]*core.Task, error) {
	const op = "service.TaskService.SetFilter"

	if err := ctx.Err(); err != nil {
		return nil, internalError(op, "ctx error", err)
	}
	if err := filter.Validate(); err != nil {
		return nil, tryAsAppError(err, op)
	}
	filter = filter.Normalize()

	ts.mu.Lock()
	prev := ts.filter.Section
	ts.filter = filter
	tasks := ts.queryLocked(filter, ts.query)
	ts.mu.Unlock()

	if filter.Section != prev && filter.Section != core.All {
		ts.pages.Reset(core.ScopeOf(filter.Section))
	}
	ts.pub.Publish(notify.Event{Kind: notify.KindResultChanged, Tasks: core.CloneTasks(tasks)})
	return tasks, nil
}

// SetSearchQuery changes the view query. The result is recomputed and
// published once input has been quiet for the debounce delay.
func (ts *TaskService) SetSearchQuery(query string) {
	ts.mu.Lock()
	ts.pendingQuery = query
	ts.mu.Unlock()
	ts.sched.Schedule(ts.refreshView, ts.debounce)
}

func (ts *TaskService) refreshView() {
	ts.mu.Lock()
	ts.query = ts.pendingQuery
	tasks := ts.queryLocked(ts.filter, ts.query)
	ts.mu.Unlock()
	ts.pub.Publish(notify.Event{Kind: notify.KindResultChanged, Tasks: tasks})
}

// View returns the current filter, query and their result.
func (ts *TaskService) View(ctx context.Context) (ViewState, error) {
	const op = "service.TaskService.View"

	if err := ctx.Err(); err != nil {
		return ViewState{}, internalError(op, "ctx error", err)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ViewState{
		Filter: ts.filter,
		Query:  ts.query,
		Tasks:  ts.queryLocked(ts.filter, ts.query),
	}, nil
}

// LoadMore pulls the next page of scope into the index. It is a no-op while
// the scope is already loading or exhausted.
func (ts *TaskService) LoadMore(ctx context.Context, scope core.Scope) (paging.Result, error) {
	const op = "service.TaskService.LoadMore"

	res, err := ts.pages.LoadNextPage(ctx, scope)
	if err != nil {
		if core.IsCode(err, core.ErrorCodeRemoteUnavailable) {
			ts.pub.Publish(notify.Event{
				Kind:  notify.KindLoadFailed,
				Scope: string(scope),
				Error: publicMessage(err),
			})
		}
		return res, tryAsAppError(err, op)
	}

	if !res.Skipped {
		ts.pub.Publish(notify.Event{
			Kind:   notify.KindMoreLoaded,
			Scope:  string(scope),
			Loaded: res.Inserted,
		})
	}
	if !res.HasMore {
		ts.pub.Publish(notify.Event{Kind: notify.KindNoMore, Scope: string(scope)})
	}
	return res, nil
}

// ResetScope puts scope back at its first page. Indexed tasks stay.
func (ts *TaskService) ResetScope(scope core.Scope) error {
	const op = "service.TaskService.ResetScope"
	if !scope.Valid() {
		return validationError(op, "unknown scope "+string(scope))
	}
	ts.pages.Reset(scope)
	return nil
}

// PageState returns the pagination state of scope.
func (ts *TaskService) PageState(scope core.Scope) paging.State {
	return ts.pages.State(scope)
}

// Reload rebuilds the index from a full remote listing and restarts every
// scope. The remote must implement remote.Lister.
func (ts *TaskService) Reload(ctx context.Context) error {
	const op = "service.TaskService.Reload"

	if err := ctx.Err(); err != nil {
		return internalError(op, "ctx error", err)
	}
	lister, ok := ts.remote.(remote.Lister)
	if !ok {
		return core.NewAppErrorBuilder(core.ErrorCodeInternal).
			Message("remote store cant list tasks").
			SafeToShow(true).
			Oper(op).
			Build()
	}
	tasks, err := lister.LoadAll(ctx)
	if err != nil {
		return remoteError(op, "cant list tasks", err)
	}

	ts.writeMu.Lock()
	defer ts.writeMu.Unlock()

	ts.mu.Lock()
	if len(ts.deleted) > 0 {
		kept := tasks[:0:0]
		for _, t := range tasks {
			if t == nil {
				continue
			}
			if _, gone := ts.deleted[t.ID]; !gone {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}
	ts.idx.RebuildAll(tasks)
	ts.changedLocked()
	view := ts.queryLocked(ts.filter, ts.query)
	ts.mu.Unlock()
	ts.pages.ResetAll()

	ts.logger.Info("index rebuilt", zap.Int("tasks", len(tasks)))
	ts.pub.Publish(notify.Event{Kind: notify.KindResultChanged, Tasks: view})
	return nil
}

// Ingest takes fetched records into the index, skipping known and deleted ids.
func (ts *TaskService) Ingest(records []*core.Task) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	inserted := 0
	for _, r := range records {
		if r == nil || ts.idx.Has(r.ID) {
			continue
		}
		if _, gone := ts.deleted[r.ID]; gone {
			continue
		}
		if err := ts.idx.Insert(r); err != nil {
			ts.logger.Warn("skip fetched record", zap.String("task_id", r.ID), zap.Error(err))
			continue
		}
		inserted++
	}
	ts.changedLocked()
	return inserted
}

// Recomputes counts result cache misses.
func (ts *TaskService) Recomputes() uint64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.results.Recomputes()
}

// Len is the number of indexed tasks.
func (ts *TaskService) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.idx.Len()
}

// Close drops a pending search recomputation.
func (ts *TaskService) Close() {
	ts.sched.CancelPending()
}

// queryLocked returns cloned tasks ordered by creation, then id.
func (ts *TaskService) queryLocked(filter core.FilterSpec, query string) []*core.Task {
	ids := ts.results.GetOrCompute(filter, query, func() []string {
		start := time.Now()
		defer func() {
			RecomputeSeconds.Observe(time.Since(start).Seconds())
		}()
		return ts.engine.Evaluate(filter, query)
	})
	tasks := core.CloneTasks(ts.engine.Materialize(ids))
	core.SortTasks(tasks)
	if tasks == nil {
		tasks = []*core.Task{}
	}
	return tasks
}

// replaceLocked puts t under id, whatever id held before.
func (ts *TaskService) replaceLocked(id string, t *core.Task) {
	ts.idx.Remove(id)
	if err := ts.idx.Insert(t); err != nil {
		ts.logger.Error("cant reindex task", zap.String("task_id", id), zap.Error(err))
	}
}

func (ts *TaskService) changedLocked() {
	ts.results.Invalidate()
	IndexSize.Set(float64(ts.idx.Len()))
}

func (ts *TaskService) emit(kind notify.Kind, t *core.Task, state core.OutcomeState, err error) {
	ev := notify.Event{Kind: kind, Task: t.CloneTask(), State: state}
	if err != nil {
		ev.Error = err.Error()
	}
	ts.pub.Publish(ev)
}

type discard struct{}

func (discard) Publish(notify.Event) {}

// Package paging pulls pages of tasks from the remote store into the index,
// one fetch at a time per scope.
package paging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

var PageFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskindex",
	Subsystem: "paging",
	Name:      "page_fetches",
}, []string{"scope", "result"})

var RecordsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskindex",
	Subsystem: "paging",
	Name:      "records_ingested",
}, []string{"scope"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{PageFetches, RecordsIngested}
}

// Fetcher is the page-reading part of the remote store.
type Fetcher interface {
	FetchPage(ctx context.Context, scope core.Scope, cursor string, pageSize int) (*remote.Page, error)
}

// Sink takes fetched records into the index. It must skip ids already
// indexed, invalidate cached results and return how many it inserted.
type Sink interface {
	Ingest(records []*core.Task) int
}

type scopeState struct {
	mu      sync.Mutex
	cursor  string
	hasMore bool

	loading atomic.Bool
}

func newScopeState() *scopeState {
	return &scopeState{hasMore: true}
}

// State is a snapshot of one scope's pagination.
type State struct {
	Cursor  string `json:"cursor"`
	HasMore bool   `json:"has_more"`
	Loading bool   `json:"loading"`
}

// Result describes one LoadNextPage call.
type Result struct {
	Scope core.Scope
	// Skipped is set when a fetch was already running or the scope is exhausted.
	Skipped  bool
	Fetched  int
	Inserted int
	HasMore  bool
}

type Coordinator struct {
	fetcher  Fetcher
	sink     Sink
	pageSize int

	scopes *xsync.MapOf[core.Scope, *scopeState]
	logger *zap.Logger
}

type Options struct {
	Fetcher  Fetcher
	Sink     Sink
	PageSize int
	Logger   *zap.Logger
}

func NewCoordinator(opts *Options) (*Coordinator, error) {
	if opts == nil {
		return nil, errors.New("paging: required options")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("paging: required fetcher")
	}
	if opts.Sink == nil {
		return nil, errors.New("paging: required sink")
	}
	if opts.PageSize <= 0 {
		return nil, errors.New("paging: page size should be > 0")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		fetcher:  opts.Fetcher,
		sink:     opts.Sink,
		pageSize: opts.PageSize,
		scopes:   xsync.NewMapOf[core.Scope, *scopeState](),
		logger:   logger,
	}, nil
}

func (c *Coordinator) state(scope core.Scope) *scopeState {
	st, _ := c.scopes.LoadOrCompute(scope, newScopeState)
	return st
}

// LoadNextPage fetches the next page of scope and ingests it. It is a no-op
// while another fetch of the same scope runs or once the scope is exhausted.
// On a failed fetch nothing is ingested and the cursor stays where it was.
func (c *Coordinator) LoadNextPage(ctx context.Context, scope core.Scope) (Result, error) {
	const op = "paging.Coordinator.LoadNextPage"
	res := Result{Scope: scope}
	if !scope.Valid() {
		return res, core.NewTaskValidationError("unknown scope "+string(scope), nil, op)
	}

	st := c.state(scope)
	if !st.loading.CompareAndSwap(false, true) {
		PageFetches.WithLabelValues(string(scope), "skipped").Inc()
		res.Skipped = true
		st.mu.Lock()
		res.HasMore = st.hasMore
		st.mu.Unlock()
		return res, nil
	}
	defer st.loading.Store(false)

	st.mu.Lock()
	cursor, hasMore := st.cursor, st.hasMore
	st.mu.Unlock()
	if !hasMore {
		PageFetches.WithLabelValues(string(scope), "skipped").Inc()
		res.Skipped = true
		return res, nil
	}

	page, err := c.fetcher.FetchPage(ctx, scope, cursor, c.pageSize)
	if err == nil && page == nil {
		err = errors.New("paging: remote returned no page")
	}
	if err != nil {
		PageFetches.WithLabelValues(string(scope), "failed").Inc()
		c.logger.Warn("page fetch failed",
			zap.String("scope", string(scope)),
			zap.String("cursor", cursor),
			zap.Error(err),
		)
		res.HasMore = true
		return res, core.NewRemoteUnavailableError("cant fetch page", err, op).
			WithMeta("scope", string(scope))
	}

	res.Fetched = len(page.Records)
	res.Inserted = c.sink.Ingest(page.Records)
	res.HasMore = page.HasMore

	st.mu.Lock()
	st.cursor = page.NextCursor
	st.hasMore = page.HasMore
	st.mu.Unlock()

	PageFetches.WithLabelValues(string(scope), "ok").Inc()
	RecordsIngested.WithLabelValues(string(scope)).Add(float64(res.Inserted))
	c.logger.Debug("page loaded",
		zap.String("scope", string(scope)),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Bool("has_more", res.HasMore),
	)
	return res, nil
}

// Reset puts scope back at its start. Indexed records stay. A fetch still in
// flight for the old state is ingested but no longer moves the cursor.
func (c *Coordinator) Reset(scope core.Scope) {
	c.scopes.Store(scope, newScopeState())
}

// ResetAll resets every known scope.
func (c *Coordinator) ResetAll() {
	c.scopes.Range(func(scope core.Scope, _ *scopeState) bool {
		c.Reset(scope)
		return true
	})
}

// State returns the pagination state of scope; unknown scopes are at start.
func (c *Coordinator) State(scope core.Scope) State {
	st, ok := c.scopes.Load(scope)
	if !ok {
		return State{HasMore: true}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return State{
		Cursor:  st.cursor,
		HasMore: st.hasMore,
		Loading: st.loading.Load(),
	}
}

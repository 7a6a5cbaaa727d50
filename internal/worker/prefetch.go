package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/paging"
	"go.uber.org/zap"
)

// Loader fetches the next page of a scope into the index.
type Loader interface {
	LoadMore(ctx context.Context, scope core.Scope) (paging.Result, error)
}

// PageHandler turns jobs into LoadMore calls and keeps the failures.
type PageHandler struct {
	loader Loader
	logger *zap.Logger

	mu   sync.Mutex
	errs []error
}

func NewPageHandler(loader Loader, logger *zap.Logger) *PageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageHandler{loader: loader, logger: logger}
}

func (h *PageHandler) Handle(ctx context.Context, job Job) error {
	res, err := h.loader.LoadMore(ctx, job.Scope)
	if err != nil {
		err = fmt.Errorf("scope %s: %w", job.Scope, err)
		h.mu.Lock()
		h.errs = append(h.errs, err)
		h.mu.Unlock()
		return err
	}
	h.logger.Debug("page prefetched",
		zap.String("scope", string(job.Scope)),
		zap.Int("inserted", res.Inserted),
		zap.Bool("has_more", res.HasMore),
	)
	return nil
}

// Err joins every failure seen so far.
func (h *PageHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return errors.Join(h.errs...)
}

// SectionScopes lists the scope of every section.
func SectionScopes() []core.Scope {
	sections := core.Sections()
	out := make([]core.Scope, 0, len(sections))
	for _, s := range sections {
		out = append(out, core.ScopeOf(s))
	}
	return out
}

// Prefetch loads the first page of each scope on at most workers goroutines
// and waits for all of them. Failed scopes stay retryable through LoadMore.
func Prefetch(ctx context.Context, loader Loader, scopes []core.Scope, workers int, logger *zap.Logger) error {
	if loader == nil {
		return errors.New("worker: required loader")
	}
	if len(scopes) == 0 {
		return nil
	}
	h := NewPageHandler(loader, logger)
	pool, err := NewPool(workers, h, len(scopes), logger)
	if err != nil {
		return err
	}
	if err := pool.Start(ctx); err != nil {
		return err
	}
	for _, scope := range scopes {
		if err := pool.Submit(ctx, Job{Scope: scope}); err != nil {
			pool.Stop()
			return errors.Join(h.Err(), err)
		}
	}
	pool.Stop()
	return h.Err()
}

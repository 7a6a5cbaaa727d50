package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/mauzec/taskindex/internal/core"
	"go.uber.org/zap"
)

// Job asks for the next page of one scope.
type Job struct {
	Scope core.Scope
}

type Handler interface {
	Handle(ctx context.Context, job Job) error
}

var ErrPoolClosed = errors.New("worker: pool closed")
var ErrPoolFull = errors.New("worker: queue full")

// ErrPoolNotStarted says the pool should be started before work
var ErrPoolNotStarted = errors.New("worker: pool not started")

// Pool runs page loads with bounded concurrency.
type Pool struct {
	handler Handler
	workers int
	jobs    chan Job
	logger  *zap.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	ctx     context.Context

	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPool(workers int, handler Handler, queueSize int, logger *zap.Logger) (*Pool, error) {
	if workers <= 0 {
		return nil, errors.New("worker: workers number cant be <= 0")
	}
	if handler == nil {
		return nil, errors.New("worker: required handler")
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		handler: handler,
		workers: workers,
		jobs:    make(chan Job, queueSize),
		logger:  logger,
	}, nil
}

// Start launches the workers. ctx is handed to every Handle call.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.started = true
	p.ctx = ctx
	for range p.workers {
		p.wg.Add(1)
		go p.run()
	}
	return nil
}

// Stop refuses new jobs and waits until the queued ones are handled.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pool) Submit(ctx context.Context, job Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if !p.started {
		return ErrPoolNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolFull
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := p.handler.Handle(p.ctx, job); err != nil {
			p.logger.Warn("handle job",
				zap.String("scope", string(job.Scope)),
				zap.Error(err),
			)
		}
	}
}

// Package remote defines the remote persistence collaborator the task store
// pages from and writes through to, plus a bbolt-backed implementation.
package remote

import (
	"context"

	"github.com/mauzec/taskindex/internal/core"
)

// Page is one slice of a scope's feed.
type Page struct {
	Records []*core.Task
	// NextCursor resumes the feed after Records; it is opaque to callers.
	NextCursor string
	HasMore    bool
}

// Remote is the source of truth for tasks. Implementations own their
// timeout and retry policy.
type Remote interface {
	// FetchPage returns up to pageSize records of scope after cursor.
	// An empty cursor starts from the beginning.
	FetchPage(ctx context.Context, scope core.Scope, cursor string, pageSize int) (*Page, error)
	// CreateRecord stores a new task and returns it with its remote id.
	CreateRecord(ctx context.Context, draft core.Draft) (*core.Task, error)
	UpdateRecord(ctx context.Context, id string, patch core.Patch) error
	DeleteRecord(ctx context.Context, id string) error
}

// Lister is implemented by remotes able to list everything at once.
// It is used for warm starts and reloads.
type Lister interface {
	LoadAll(ctx context.Context) ([]*core.Task, error)
}

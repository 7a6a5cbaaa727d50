package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mauzec/taskindex/internal/core"
	bolt "go.etcd.io/bbolt"
)

const boltTasksBucket = "tasks"

// BoltRemote keeps task records in a bbolt file. Keys are UUIDv7 ids, so a
// cursor walk returns records in creation order.
type BoltRemote struct {
	db  *bolt.DB
	now func() time.Time
}

type BoltOptions struct {
	// OpenTimeout bounds waiting for the file lock.
	OpenTimeout time.Duration
	Now         func() time.Time
}

func NewBoltRemote(path string, opts *BoltOptions) (*BoltRemote, error) {
	if path == "" {
		return nil, errors.New("remote: required bolt path")
	}
	if opts == nil {
		opts = &BoltOptions{}
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("remote: create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600,
		&bolt.Options{Timeout: opts.OpenTimeout},
	)
	if err != nil {
		return nil, fmt.Errorf("remote: opening bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists([]byte(boltTasksBucket))
		return berr
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("remote: cant init bucket: %w", err)
	}

	return &BoltRemote{db: db, now: now}, nil
}

func (r *BoltRemote) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *BoltRemote) FetchPage(ctx context.Context, scope core.Scope, cursor string, pageSize int) (*Page, error) {
	if r.db == nil {
		return nil, errors.New("remote: bolt not init")
	} else if pageSize <= 0 {
		return nil, errors.New("remote: page size should be > 0")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := &Page{NextCursor: cursor}
	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTasksBucket))
		if bucket == nil {
			return errors.New("remote: bucket miss")
		}
		c := bucket.Cursor()

		var k, v []byte
		if cursor == "" {
			k, v = c.First()
		} else {
			k, v = c.Seek([]byte(cursor))
			if k != nil && string(k) == cursor {
				k, v = c.Next()
			}
		}
		for ; k != nil; k, v = c.Next() {
			t := &core.Task{}
			if err := json.Unmarshal(v, t); err != nil {
				return fmt.Errorf("remote: cant unmarshal task: %w", err)
			}
			if !scope.Contains(t) {
				continue
			}
			if len(page.Records) == pageSize {
				page.HasMore = true
				return nil
			}
			page.Records = append(page.Records, t)
			page.NextCursor = string(k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (r *BoltRemote) CreateRecord(ctx context.Context, draft core.Draft) (*core.Task, error) {
	if r.db == nil {
		return nil, errors.New("remote: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("remote: gen id: %w", err)
	}
	now := r.now().UTC()
	task := core.NewTask(id.String(), &now, draft)

	p, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("remote: cant marshal task: %w", err)
	}
	if err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltTasksBucket))
		if b == nil {
			return errors.New("remote: bucket miss")
		}
		if b.Get([]byte(task.ID)) != nil {
			return fmt.Errorf("remote: task %s already here", task.ID)
		}
		return b.Put([]byte(task.ID), p)
	}); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *BoltRemote) UpdateRecord(ctx context.Context, id string, patch core.Patch) error {
	const op = "remote.BoltRemote.UpdateRecord"
	if r.db == nil {
		return errors.New("remote: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTasksBucket))
		if bucket == nil {
			return errors.New("remote: bucket miss")
		}
		value := bucket.Get([]byte(id))
		if value == nil {
			return core.NewTaskNotFoundError(id, op)
		}
		t := &core.Task{}
		if err := json.Unmarshal(value, t); err != nil {
			return fmt.Errorf("remote: cant unmarshal task: %w", err)
		}
		p, err := json.Marshal(core.ApplyPatch(t, patch))
		if err != nil {
			return fmt.Errorf("remote: cant marshal task: %w", err)
		}
		return bucket.Put([]byte(id), p)
	})
}

// DeleteRecord removes a record; deleting an unknown id succeeds.
func (r *BoltRemote) DeleteRecord(ctx context.Context, id string) error {
	if r.db == nil {
		return errors.New("remote: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTasksBucket))
		if bucket == nil {
			return errors.New("remote: bucket miss")
		}
		return bucket.Delete([]byte(id))
	})
}

func (r *BoltRemote) LoadAll(ctx context.Context) ([]*core.Task, error) {
	if r.db == nil {
		return nil, errors.New("remote: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts := make([]*core.Task, 0)
	if err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTasksBucket))
		if bucket == nil {
			return errors.New("remote: bucket miss")
		}
		return bucket.ForEach(func(_, v []byte) error {
			t := &core.Task{}
			if err := json.Unmarshal(v, t); err != nil {
				return fmt.Errorf("remote: cant unmarshal task: %w", err)
			}
			ts = append(ts, t)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	core.SortTasks(ts)
	return ts, nil
}

// GetRecord returns one record by id.
func (r *BoltRemote) GetRecord(ctx context.Context, id string) (*core.Task, error) {
	const op = "remote.BoltRemote.GetRecord"
	if r.db == nil {
		return nil, errors.New("remote: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task *core.Task
	if err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTasksBucket))
		if bucket == nil {
			return errors.New("remote: bucket miss")
		}
		value := bucket.Get([]byte(id))
		if value == nil {
			return nil
		}
		res := &core.Task{}
		if err := json.Unmarshal(value, res); err != nil {
			return fmt.Errorf("remote: cant unmarshal task: %w", err)
		}
		task = res
		return nil
	}); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, core.NewTaskNotFoundError(id, op)
	}
	return task, nil
}

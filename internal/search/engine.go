// Package search answers filter and search queries by combining the bucket
// and token indexes of an index.Index.
package search

import (
	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/index"
)

// Reader is the read side of the index the engine needs.
type Reader interface {
	Lookup(id string) (*core.Task, bool)
	IDs() index.IDSet
	Bucket(a core.Axis, key string) (index.IDSet, bool)
	TokenBucket(token string) (index.IDSet, bool)
	TokensWithPrefix(prefix string) []string
}

type Engine struct {
	r Reader
}

func NewEngine(r Reader) *Engine {
	return &Engine{r: r}
}

// Evaluate returns the ids matching filter f and query q, sorted ascending so
// the result is stable for a fixed index state. Query tokens are ANDed; each
// one matches any indexed token it prefixes. A query without tokens matches
// everything the filter lets through.
func (e *Engine) Evaluate(f core.FilterSpec, q string) []string {
	candidates, constrained := e.candidates(f)
	if constrained && candidates.Len() == 0 {
		return nil
	}

	tokens := index.Tokenize(q)
	if len(tokens) == 0 {
		if !constrained {
			return e.r.IDs().Sorted()
		}
		return candidates.Sorted()
	}

	matches := e.match(tokens)
	if matches.Len() == 0 {
		return nil
	}
	if constrained {
		matches = index.Intersect(matches, candidates)
	}
	return matches.Sorted()
}

// Search is Evaluate materialized into tasks. The tasks are owned by the
// index and must not be mutated.
func (e *Engine) Search(f core.FilterSpec, q string) []*core.Task {
	return e.Materialize(e.Evaluate(f, q))
}

// Materialize looks ids up, skipping any that are gone.
func (e *Engine) Materialize(ids []string) []*core.Task {
	res := make([]*core.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := e.r.Lookup(id); ok {
			res = append(res, t)
		}
	}
	return res
}

// candidates intersects the buckets of every pinned axis. constrained is
// false when no axis is pinned, in which case the set is nil.
func (e *Engine) candidates(f core.FilterSpec) (index.IDSet, bool) {
	var cands index.IDSet
	constrained := false
	for _, a := range core.Axes {
		v, ok := f.Pinned(a)
		if !ok {
			continue
		}
		b, ok := e.r.Bucket(a, v)
		if !ok {
			return nil, true
		}
		if !constrained {
			cands = b
			constrained = true
		} else {
			cands = index.Intersect(cands, b)
		}
		if cands.Len() == 0 {
			return nil, true
		}
	}
	return cands, constrained
}

func (e *Engine) match(tokens []string) index.IDSet {
	var matches index.IDSet
	for i, tok := range tokens {
		union := make(index.IDSet)
		for _, indexed := range e.r.TokensWithPrefix(tok) {
			if b, ok := e.r.TokenBucket(indexed); ok {
				index.UnionInto(union, b)
			}
		}
		if union.Len() == 0 {
			return nil
		}
		if i == 0 {
			matches = union
		} else {
			matches = index.Intersect(matches, union)
		}
		if matches.Len() == 0 {
			return nil
		}
	}
	return matches
}

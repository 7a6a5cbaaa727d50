// Package index keeps tasks in a primary lookup plus bucket indexes per
// filter axis and an inverted token index. It does no I/O and no locking;
// callers serialize access.
package index

import (
	"slices"
	"strings"

	"github.com/mauzec/taskindex/internal/core"
)

// Index owns the authoritative copy of every loaded task.
//
// After every operation each id in the primary lookup sits in exactly the
// bucket matching its current section, priority and completion, and in
// exactly the token buckets of its current tokens. No bucket holds an id
// missing from the primary lookup, and no bucket is empty.
type Index struct {
	tasks   map[string]*core.Task
	buckets [core.AxisCount]map[string]IDSet
	tokens  map[string]IDSet
	// taskTokens lets Remove drop token entries without retokenizing.
	taskTokens map[string][]string
	// vocab holds the keys of tokens, sorted.
	vocab []string
}

func New() *Index {
	idx := &Index{}
	idx.reset(0)
	return idx
}

func (idx *Index) reset(capacity int) {
	idx.tasks = make(map[string]*core.Task, capacity)
	for i := range idx.buckets {
		idx.buckets[i] = make(map[string]IDSet)
	}
	idx.tokens = make(map[string]IDSet)
	idx.taskTokens = make(map[string][]string, capacity)
	idx.vocab = nil
}

// RebuildAll drops the current state and indexes tasks from scratch.
// When an id repeats, the last task wins.
func (idx *Index) RebuildAll(tasks []*core.Task) {
	idx.reset(len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if _, ok := idx.tasks[t.ID]; ok {
			idx.remove(t.ID, false)
		}
		idx.insert(t, false)
	}
	idx.vocab = make([]string, 0, len(idx.tokens))
	for tok := range idx.tokens {
		idx.vocab = append(idx.vocab, tok)
	}
	slices.Sort(idx.vocab)
}

// Insert indexes a task whose id is not present yet. Updates must go through
// Remove then Insert so buckets never keep a stale axis value.
func (idx *Index) Insert(t *core.Task) error {
	const op = "index.Index.Insert"
	if t == nil || t.ID == "" {
		return core.NewTaskValidationError("task without id", nil, op)
	}
	if _, ok := idx.tasks[t.ID]; ok {
		return core.NewTaskConflictError(t.ID, op)
	}
	idx.insert(t, true)
	return nil
}

func (idx *Index) insert(t *core.Task, keepVocab bool) {
	own := t.CloneTask()
	idx.tasks[own.ID] = own

	for _, a := range core.Axes {
		key := a.Key(own)
		b, ok := idx.buckets[a][key]
		if !ok {
			b = make(IDSet)
			idx.buckets[a][key] = b
		}
		b.Add(own.ID)
	}

	toks := Tokenize(own.Text)
	for _, tok := range toks {
		b, ok := idx.tokens[tok]
		if !ok {
			b = make(IDSet)
			idx.tokens[tok] = b
			if keepVocab {
				idx.vocabAdd(tok)
			}
		}
		b.Add(own.ID)
	}
	idx.taskTokens[own.ID] = toks
}

// Remove drops the task with the given id from every index and returns it.
// Removing an absent id is a no-op.
func (idx *Index) Remove(id string) (*core.Task, bool) {
	t, ok := idx.tasks[id]
	if !ok {
		return nil, false
	}
	idx.remove(id, true)
	return t, true
}

func (idx *Index) remove(id string, keepVocab bool) {
	t := idx.tasks[id]
	delete(idx.tasks, id)

	for _, a := range core.Axes {
		key := a.Key(t)
		if b, ok := idx.buckets[a][key]; ok {
			b.Remove(id)
			if b.Len() == 0 {
				delete(idx.buckets[a], key)
			}
		}
	}

	for _, tok := range idx.taskTokens[id] {
		b, ok := idx.tokens[tok]
		if !ok {
			continue
		}
		b.Remove(id)
		if b.Len() == 0 {
			delete(idx.tokens, tok)
			if keepVocab {
				idx.vocabRemove(tok)
			}
		}
	}
	delete(idx.taskTokens, id)
}

// Lookup returns the stored task. The result is owned by the index and must
// not be mutated.
func (idx *Index) Lookup(id string) (*core.Task, bool) {
	t, ok := idx.tasks[id]
	return t, ok
}

func (idx *Index) Has(id string) bool {
	_, ok := idx.tasks[id]
	return ok
}

// Len is the number of indexed tasks.
func (idx *Index) Len() int {
	return len(idx.tasks)
}

// IDs returns a fresh set holding every indexed id.
func (idx *Index) IDs() IDSet {
	s := make(IDSet, len(idx.tasks))
	for id := range idx.tasks {
		s.Add(id)
	}
	return s
}

// Bucket returns the ids whose axis a currently equals key. The set is owned
// by the index and must not be mutated.
func (idx *Index) Bucket(a core.Axis, key string) (IDSet, bool) {
	b, ok := idx.buckets[a][key]
	return b, ok
}

// TokenBucket returns the ids whose text holds token. The set is owned by the
// index and must not be mutated.
func (idx *Index) TokenBucket(token string) (IDSet, bool) {
	b, ok := idx.tokens[token]
	return b, ok
}

// TokensWithPrefix returns every indexed token starting with prefix, sorted.
func (idx *Index) TokensWithPrefix(prefix string) []string {
	i, _ := slices.BinarySearch(idx.vocab, prefix)
	var res []string
	for ; i < len(idx.vocab) && strings.HasPrefix(idx.vocab[i], prefix); i++ {
		res = append(res, idx.vocab[i])
	}
	return res
}

// Tokens returns the token list stored for id.
func (idx *Index) Tokens(id string) []string {
	return slices.Clone(idx.taskTokens[id])
}

// VocabularySize is the number of distinct indexed tokens.
func (idx *Index) VocabularySize() int {
	return len(idx.tokens)
}

func (idx *Index) vocabAdd(tok string) {
	i, found := slices.BinarySearch(idx.vocab, tok)
	if !found {
		idx.vocab = slices.Insert(idx.vocab, i, tok)
	}
}

func (idx *Index) vocabRemove(tok string) {
	i, found := slices.BinarySearch(idx.vocab, tok)
	if found {
		idx.vocab = slices.Delete(idx.vocab, i, i+1)
	}
}

package search

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/mauzec/taskindex/internal/core"
	"github.com/mauzec/taskindex/internal/index"
	"github.com/stretchr/testify/require"
)

var (
	testPriorities  = []core.Priority{core.PriorityHigh, core.PriorityMedium, core.PriorityLow}
	testCompletions = []core.Completion{core.CompletionDone, core.CompletionPending}
	testWords       = []string{
		"buy", "milk", "book", "booking", "flight", "call", "mom", "pay",
		"taxes", "review", "budget", "bread", "boot", "gym", "dentist",
	}
)

func randomTasks(rng *rand.Rand, n int) []*core.Task {
	sections := core.Sections()
	tasks := make([]*core.Task, 0, n)
	for i := range n {
		words := make([]string, 1+rng.IntN(4))
		for j := range words {
			words[j] = testWords[rng.IntN(len(testWords))]
		}
		tasks = append(tasks, &core.Task{
			ID:        fmt.Sprintf("t%03d", i),
			Text:      strings.Join(words, " ") + "!",
			Section:   sections[rng.IntN(len(sections))],
			Priority:  testPriorities[rng.IntN(len(testPriorities))],
			Completed: rng.IntN(2) == 0,
		})
	}
	return tasks
}

func allFilterSpecs() []core.FilterSpec {
	sections := append([]core.Section{core.All}, core.Sections()...)
	priorities := append([]core.Priority{core.All}, testPriorities...)
	completions := append([]core.Completion{core.All}, testCompletions...)

	var specs []core.FilterSpec
	for _, s := range sections {
		for _, p := range priorities {
			for _, c := range completions {
				specs = append(specs, core.FilterSpec{Section: s, Priority: p, Completed: c})
			}
		}
	}
	return specs
}

func linearScan(tasks []*core.Task, f core.FilterSpec) []string {
	var ids []string
	for _, t := range tasks {
		if f.Matches(t) {
			ids = append(ids, t.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func newIndexed(t *testing.T, tasks ...*core.Task) (*index.Index, *Engine) {
	t.Helper()
	idx := index.New()
	for _, task := range tasks {
		require.NoError(t, idx.Insert(task))
	}
	return idx, NewEngine(idx)
}

func TestEvaluateMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 42))
	for round := range 5 {
		tasks := randomTasks(rng, 40+round*30)
		_, eng := newIndexed(t, tasks...)

		for _, f := range allFilterSpecs() {
			got := eng.Evaluate(f, "")
			want := linearScan(tasks, f)
			require.Equal(t, len(want), len(got), "filter %+v", f)
			if len(want) > 0 {
				require.Equal(t, want, got, "filter %+v", f)
			}
		}
	}
}

func TestSearchEveryResultMatchesAllTokens(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tasks := randomTasks(rng, 150)
	_, eng := newIndexed(t, tasks...)

	queries := []string{"boo", "buy mil", "TAX", "rev bud", "fli boo", "gym dentist call", "xyz", "bo"}
	for _, q := range queries {
		qTokens := index.Tokenize(q)
		got := eng.Search(core.AllTasks, q)

		for _, task := range got {
			taskTokens := index.Tokenize(task.Text)
			for _, qt := range qTokens {
				require.True(t, slices.ContainsFunc(taskTokens, func(tt string) bool {
					return strings.HasPrefix(tt, qt)
				}), "task %s %q does not match %q", task.ID, task.Text, qt)
			}
		}

		// nothing matching is left out
		var want []string
		for _, task := range tasks {
			taskTokens := index.Tokenize(task.Text)
			ok := true
			for _, qt := range qTokens {
				if !slices.ContainsFunc(taskTokens, func(tt string) bool { return strings.HasPrefix(tt, qt) }) {
					ok = false
					break
				}
			}
			if ok {
				want = append(want, task.ID)
			}
		}
		slices.Sort(want)
		require.Equal(t, len(want), len(got), "query %q", q)
	}
}

func TestEvaluateScenario(t *testing.T) {
	_, eng := newIndexed(t,
		&core.Task{ID: "t1", Section: core.SectionToday, Priority: core.PriorityHigh, Text: "Buy milk"},
		&core.Task{ID: "t2", Section: core.SectionUpcoming, Priority: core.PriorityLow, Text: "Book flight"},
	)

	require.Equal(t, []string{"t1"}, eng.Evaluate(core.FilterSpec{Section: core.SectionToday, Priority: core.All, Completed: core.All}, ""))
	require.Equal(t, []string{"t2"}, eng.Evaluate(core.AllTasks, "boo"))
	require.Equal(t, []string{"t1", "t2"}, eng.Evaluate(core.AllTasks, ""))
	require.Empty(t, eng.Evaluate(core.FilterSpec{Section: core.SectionToday}, "boo"))
	require.Empty(t, eng.Evaluate(core.FilterSpec{Section: core.SectionMonthly}, ""))
	require.Empty(t, eng.Evaluate(core.AllTasks, "book milk"))
}

func TestEvaluateQueryWithoutTokens(t *testing.T) {
	_, eng := newIndexed(t,
		&core.Task{ID: "t1", Section: core.SectionToday, Priority: core.PriorityHigh, Text: "Buy milk"},
		&core.Task{ID: "t2", Section: core.SectionUpcoming, Priority: core.PriorityLow, Text: "Book flight"},
	)

	for _, q := range []string{"", "   ", "?!.,", "a b", "to"} {
		require.Equal(t, []string{"t1", "t2"}, eng.Evaluate(core.AllTasks, q), "query %q", q)
		require.Equal(t, []string{"t2"}, eng.Evaluate(core.FilterSpec{Priority: core.PriorityLow}, q), "query %q", q)
	}
}

func TestEvaluateCombinesFilterAndQuery(t *testing.T) {
	_, eng := newIndexed(t,
		&core.Task{ID: "a", Section: core.SectionToday, Priority: core.PriorityHigh, Text: "Book dentist"},
		&core.Task{ID: "b", Section: core.SectionToday, Priority: core.PriorityLow, Text: "Book flight", Completed: true},
		&core.Task{ID: "c", Section: core.SectionWeekly, Priority: core.PriorityHigh, Text: "Booking review"},
	)

	require.Equal(t, []string{"a", "b", "c"}, eng.Evaluate(core.AllTasks, "book"))
	require.Equal(t, []string{"a", "c"}, eng.Evaluate(core.FilterSpec{Priority: core.PriorityHigh}, "boo"))
	require.Equal(t, []string{"b"}, eng.Evaluate(core.FilterSpec{Completed: core.CompletionDone}, "book"))
	require.Equal(t, []string{"c"}, eng.Evaluate(core.FilterSpec{Section: core.SectionWeekly, Priority: core.PriorityHigh}, "book rev"))
}

func TestEvaluateStableForFixedState(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	_, eng := newIndexed(t, randomTasks(rng, 100)...)

	first := eng.Evaluate(core.AllTasks, "b")
	for range 5 {
		require.Equal(t, first, eng.Evaluate(core.AllTasks, "b"))
	}
}

func TestMaterializeSkipsMissing(t *testing.T) {
	idx, eng := newIndexed(t, &core.Task{ID: "t1", Section: core.SectionToday, Priority: core.PriorityHigh, Text: "Buy milk"})
	ids := eng.Evaluate(core.AllTasks, "")
	_, ok := idx.Remove("t1")
	require.True(t, ok)
	require.Empty(t, eng.Materialize(ids))
}

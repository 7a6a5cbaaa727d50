package core

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Task is a single to-do item.
type Task struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Section   Section  `json:"section"`
	Priority  Priority `json:"priority"`
	Completed bool     `json:"completed"`

	Date        *time.Time `json:"date,omitempty"`
	CreatedAt   *time.Time `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (t *Task) CloneTask() *Task {
	if t == nil {
		return nil
	}
	ct := *t
	ct.Date = copyTime(t.Date)
	ct.CreatedAt = copyTime(t.CreatedAt)
	ct.CompletedAt = copyTime(t.CompletedAt)
	return &ct
}

func CloneTasks(tasks []*Task) []*Task {
	if len(tasks) == 0 {
		return nil
	}

	res := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, t.CloneTask())
	}
	return res
}

// SortTasks sorts tasks in-place by CreatedAt, then ID.
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		time1 := tasks[i].CreatedAt
		time2 := tasks[j].CreatedAt

		switch {
		case time1 == nil && time2 == nil:
			return tasks[i].ID < tasks[j].ID
		case time1 == nil:
			return false
		case time2 == nil:
			return true
		case time1.Equal(*time2):
			return tasks[i].ID < tasks[j].ID
		default:
			return time1.Before(*time2)
		}
	})
}

// Draft is a task not yet known to the remote store.
type Draft struct {
	Text     string     `json:"text" validate:"required,max=4000"`
	Section  Section    `json:"section" validate:"omitempty,oneof=today upcoming daily weekly monthly yearly undated"`
	Priority Priority   `json:"priority" validate:"omitempty,oneof=high medium low"`
	Date     *time.Time `json:"date,omitempty"`
}

// Patch holds the fields an update changes; nil means unchanged.
type Patch struct {
	Text      *string   `json:"text,omitempty" validate:"omitempty,min=1,max=4000"`
	Section   *Section  `json:"section,omitempty" validate:"omitempty,oneof=today upcoming daily weekly monthly yearly undated"`
	Priority  *Priority `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Completed *bool     `json:"completed,omitempty"`

	Date      *time.Time `json:"date,omitempty"`
	ClearDate bool       `json:"clear_date,omitempty"`
	// CompletedAt is filled by the service whenever Completed is set.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

var validate = validator.New()

// Normalize trims the text and fills the default section and priority.
func (d Draft) Normalize() Draft {
	d.Text = strings.TrimSpace(d.Text)
	if d.Section == "" {
		d.Section = SectionUndated
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	d.Date = copyTime(d.Date)
	return d
}

// ValidateDraft normalizes and checks d.
func ValidateDraft(d Draft) (Draft, error) {
	const op = "core.ValidateDraft"
	d = d.Normalize()
	if err := validate.Struct(d); err != nil {
		return Draft{}, NewTaskValidationError("invalid task draft", err, op)
	}
	return d, nil
}

// ValidatePatch trims text and checks p.
func ValidatePatch(p Patch) (Patch, error) {
	const op = "core.ValidatePatch"
	if p.Text != nil {
		trimmed := strings.TrimSpace(*p.Text)
		if trimmed == "" {
			return Patch{}, NewTaskValidationError("task text is empty", nil, op)
		}
		p.Text = &trimmed
	}
	if p.ClearDate && p.Date != nil {
		return Patch{}, NewTaskValidationError("date and clear_date both set", nil, op)
	}
	if err := validate.Struct(p); err != nil {
		return Patch{}, NewTaskValidationError("invalid task patch", err, op)
	}
	return p, nil
}

// NewTask builds a task from a validated draft.
func NewTask(id string, now *time.Time, d Draft) *Task {
	return &Task{
		ID:        id,
		Text:      d.Text,
		Section:   d.Section,
		Priority:  d.Priority,
		Date:      copyTime(d.Date),
		CreatedAt: copyTime(now),
	}
}

// ApplyPatch returns a patched copy of t; t itself is left untouched.
func ApplyPatch(t *Task, p Patch) *Task {
	nt := t.CloneTask()
	if p.Text != nil {
		nt.Text = *p.Text
	}
	if p.Section != nil {
		nt.Section = *p.Section
	}
	if p.Priority != nil {
		nt.Priority = *p.Priority
	}
	if p.Completed != nil {
		nt.Completed = *p.Completed
		if nt.Completed {
			nt.CompletedAt = copyTime(p.CompletedAt)
		} else {
			nt.CompletedAt = nil
		}
	}
	switch {
	case p.ClearDate:
		nt.Date = nil
	case p.Date != nil:
		nt.Date = copyTime(p.Date)
	}
	return nt
}

// OutcomeState tells how far an optimistic mutation got.
type OutcomeState string

const (
	// OutcomePending means applied locally, remote not answered yet.
	OutcomePending    OutcomeState = "pending"
	OutcomeConfirmed  OutcomeState = "confirmed"
	OutcomeRolledBack OutcomeState = "rolled-back"
)

// Outcome is the result of a mutation through the store.
type Outcome struct {
	State OutcomeState `json:"state"`
	Task  *Task        `json:"task,omitempty"`
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	nt := *t
	return &nt
}

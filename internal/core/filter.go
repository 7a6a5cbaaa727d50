package core

import "fmt"

// Axis is one of the closed set of filterable task attributes.
type Axis int

const (
	AxisSection Axis = iota
	AxisPriority
	AxisCompleted

	// AxisCount is the number of axes, usable as an array length.
	AxisCount = 3
)

// Axes lists every axis in evaluation order.
var Axes = [AxisCount]Axis{AxisSection, AxisPriority, AxisCompleted}

func (a Axis) String() string {
	switch a {
	case AxisSection:
		return "section"
	case AxisPriority:
		return "priority"
	case AxisCompleted:
		return "completed"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Key returns the bucket key of task t on axis a.
func (a Axis) Key(t *Task) string {
	switch a {
	case AxisSection:
		return string(t.Section)
	case AxisPriority:
		return string(t.Priority)
	case AxisCompleted:
		return string(CompletionOf(t.Completed))
	}
	panic("core: unknown axis " + a.String())
}

// FilterSpec pins each axis to one value or leaves it unconstrained.
// Both "" and "all" mean unconstrained. FilterSpec is comparable.
type FilterSpec struct {
	Section   Section    `json:"section"`
	Priority  Priority   `json:"priority"`
	Completed Completion `json:"completed"`
}

// AllTasks is the filter spec that constrains nothing.
var AllTasks = FilterSpec{Section: All, Priority: All, Completed: All}

// Normalize rewrites empty axes to "all".
func (f FilterSpec) Normalize() FilterSpec {
	if f.Section == "" {
		f.Section = All
	}
	if f.Priority == "" {
		f.Priority = All
	}
	if f.Completed == "" {
		f.Completed = All
	}
	return f
}

// Pinned reports the value axis a is pinned to, if any.
func (f FilterSpec) Pinned(a Axis) (string, bool) {
	var v string
	switch a {
	case AxisSection:
		v = string(f.Section)
	case AxisPriority:
		v = string(f.Priority)
	case AxisCompleted:
		v = string(f.Completed)
	default:
		panic("core: unknown axis " + a.String())
	}
	if v == "" || v == All {
		return "", false
	}
	return v, true
}

// Matches applies the filter to one task directly, without any index.
func (f FilterSpec) Matches(t *Task) bool {
	for _, a := range Axes {
		if v, ok := f.Pinned(a); ok && a.Key(t) != v {
			return false
		}
	}
	return true
}

// Validate rejects values outside each axis' enum.
func (f FilterSpec) Validate() error {
	const op = "core.FilterSpec.Validate"
	f = f.Normalize()
	if f.Section != All && !f.Section.Valid() {
		return NewTaskValidationError("unknown section "+string(f.Section), nil, op)
	}
	if f.Priority != All && !f.Priority.Valid() {
		return NewTaskValidationError("unknown priority "+string(f.Priority), nil, op)
	}
	if f.Completed != All && !f.Completed.Valid() {
		return NewTaskValidationError("unknown completion "+string(f.Completed), nil, op)
	}
	return nil
}

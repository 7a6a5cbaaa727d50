package core

// Section is the time-horizon bucket of a Task.
type Section string

// Priority of a Task.
type Priority string

// Completion is the completion axis value of a Task or a filter on it.
type Completion string

const (
	SectionToday    Section = "today"
	SectionUpcoming Section = "upcoming"
	SectionDaily    Section = "daily"
	SectionWeekly   Section = "weekly"
	SectionMonthly  Section = "monthly"
	SectionYearly   Section = "yearly"
	SectionUndated  Section = "undated"

	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"

	CompletionDone    Completion = "completed"
	CompletionPending Completion = "pending"
)

// All is the unconstrained value for every filter axis.
const All = "all"

var sections = []Section{
	SectionToday, SectionUpcoming, SectionDaily, SectionWeekly,
	SectionMonthly, SectionYearly, SectionUndated,
}

// Sections returns every known section in display order.
func Sections() []Section {
	return append([]Section(nil), sections...)
}

func (s Section) Valid() bool {
	for _, known := range sections {
		if s == known {
			return true
		}
	}
	return false
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func (c Completion) Valid() bool {
	return c == CompletionDone || c == CompletionPending
}

// CompletionOf maps the completed flag to its axis value.
func CompletionOf(completed bool) Completion {
	if completed {
		return CompletionDone
	}
	return CompletionPending
}

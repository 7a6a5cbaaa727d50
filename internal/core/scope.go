package core

// Scope is a pagination context: the global feed or one section.
type Scope string

// GlobalScope is the unfiltered feed.
const GlobalScope Scope = All

// ScopeOf is the scope paging through section s only.
func ScopeOf(s Section) Scope {
	return Scope(s)
}

func (s Scope) Valid() bool {
	return s == GlobalScope || Section(s).Valid()
}

// Section returns the section this scope is restricted to, if any.
func (s Scope) Section() (Section, bool) {
	if s == GlobalScope {
		return "", false
	}
	return Section(s), true
}

// Contains reports whether t belongs to the scope.
func (s Scope) Contains(t *Task) bool {
	sec, ok := s.Section()
	return !ok || t.Section == sec
}

package ledger

import "sort"

// Table buckets run ids by state.
type Table map[State][]string

// NewTable returns a table with an empty bucket for every state.
func NewTable() Table {
	t := make(Table, len(AllStates))
	for _, s := range AllStates {
		t[s] = []string{}
	}
	return t
}

// Add records id under state.
func (t Table) Add(state State, id string) {
	t[state] = append(t[state], id)
}

// Sort orders every bucket.
func (t Table) Sort() {
	for _, ids := range t {
		sort.Strings(ids)
	}
}

// Count returns the number of ids under state.
func (t Table) Count(state State) int {
	return len(t[state])
}

// Total returns the number of ids across all states.
func (t Table) Total() int {
	n := 0
	for _, ids := range t {
		n += len(ids)
	}
	return n
}

// Restrict returns a copy of t keeping only ids present in keep.
func (t Table) Restrict(keep []string) Table {
	allowed := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		allowed[id] = struct{}{}
	}

	out := NewTable()
	for state, ids := range t {
		for _, id := range ids {
			if _, ok := allowed[id]; ok {
				out.Add(state, id)
			}
		}
	}
	out.Sort()
	return out
}

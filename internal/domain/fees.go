package domain

import "time"

// FeeName identifies a fee line. A cart never holds two lines with the same name.
type FeeName string

// HandlingFeeName is the reserved name of the conditional handling fee.
const HandlingFeeName FeeName = "Handling Fee"

// FeeLine is a named adjustment to the cart total, in minor units of Currency.
type FeeLine struct {
	ID       string
	Name     FeeName
	Amount   int64
	Currency string
	AddedAt  time.Time
}

// FeeSet is an insertion-ordered collection of fee lines keyed by name.
// The zero value is an empty set ready for use.
type FeeSet struct {
	order []FeeName
	lines map[FeeName]FeeLine
}

// NewFeeSet builds a set from persisted lines. Lines sharing a name collapse
// into one entry that keeps the first position and the last value.
func NewFeeSet(lines ...FeeLine) FeeSet {
	var set FeeSet
	for _, line := range lines {
		set.Put(line)
	}
	return set
}

// Put stores the line, replacing any existing line with the same name in place.
func (s *FeeSet) Put(line FeeLine) {
	if s.lines == nil {
		s.lines = make(map[FeeName]FeeLine)
	}
	if _, exists := s.lines[line.Name]; !exists {
		s.order = append(s.order, line.Name)
	}
	s.lines[line.Name] = line
}

// Remove deletes the named line and reports whether one was present.
func (s *FeeSet) Remove(name FeeName) bool {
	if _, ok := s.lines[name]; !ok {
		return false
	}
	delete(s.lines, name)
	for i, existing := range s.order {
		if existing == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the named line.
func (s FeeSet) Get(name FeeName) (FeeLine, bool) {
	line, ok := s.lines[name]
	return line, ok
}

// Len returns the number of lines.
func (s FeeSet) Len() int {
	return len(s.order)
}

// Lines returns a copy of the lines in insertion order.
func (s FeeSet) Lines() []FeeLine {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]FeeLine, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.lines[name])
	}
	return out
}

// Clone returns an independent copy of the set.
func (s FeeSet) Clone() FeeSet {
	return NewFeeSet(s.Lines()...)
}

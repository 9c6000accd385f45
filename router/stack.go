package router

// Stack stores the paths of rendered navigations for back navigation
type Stack struct {
	entries []string
}

// NewStack creates a new empty navigation stack.
func NewStack() *Stack {
	return &Stack{
		entries: make([]string, 0),
	}
}

// Push adds a path to the top of the stack
func (s *Stack) Push(path string) {
	s.entries = append(s.entries, path)
}

// Pop removes and returns the top path. Returns false if the stack is empty.
func (s *Stack) Pop() (string, bool) {
	if len(s.entries) == 0 {
		return "", false
	}
	path := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return path, true
}

// Peek returns the top path without removing it
func (s *Stack) Peek() (string, bool) {
	if len(s.entries) == 0 {
		return "", false
	}
	return s.entries[len(s.entries)-1], true
}

func (s *Stack) Len() int {
	return len(s.entries)
}

// Entries returns a copy, oldest first
func (s *Stack) Entries() []string {
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

package core

// ServiceNameSet is an insertion-ordered set of service names. Iteration order
// is first-seen order and is the order refresh signals are emitted in.
type ServiceNameSet struct {
	names []string
	seen  map[string]struct{}
}

func NewServiceNameSet(names ...string) *ServiceNameSet {
	set := &ServiceNameSet{seen: make(map[string]struct{}, len(names))}
	for _, name := range names {
		set.Add(name)
	}
	return set
}

// Add appends name unless it is already present. It reports whether the set
// changed.
func (s *ServiceNameSet) Add(name string) bool {
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, exists := s.seen[name]; exists {
		return false
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
	return true
}

func (s *ServiceNameSet) AddAll(other *ServiceNameSet) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		s.Add(name)
	}
}

func (s *ServiceNameSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, exists := s.seen[name]
	return exists
}

func (s *ServiceNameSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Values returns a copy of the names in insertion order. It never returns nil.
func (s *ServiceNameSet) Values() []string {
	if s == nil || len(s.names) == 0 {
		return []string{}
	}
	return append([]string(nil), s.names...)
}

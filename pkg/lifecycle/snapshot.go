package lifecycle

// Snapshot is a point-in-time view of a component subtree. Each node is
// read under its own lock; the tree as a whole is not a consistent cut.
type Snapshot struct {
	FQN          string            `json:"fqn"`
	Name         string            `json:"name"`
	Status       Status            `json:"status"`
	ErrorReason  string            `json:"error_reason,omitempty"`
	Asynchronous bool              `json:"asynchronous"`
	InFlight     *InFlight         `json:"in_flight,omitempty"`
	Active       *ActiveSnapshot   `json:"active,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	Children     []Snapshot        `json:"children,omitempty"`
}

// ActiveSnapshot is the supervision state of an [ActiveComponent].
type ActiveSnapshot struct {
	RestartCount int  `json:"restart_count"`
	Budget       int  `json:"budget"`
	Exhausted    bool `json:"exhausted"`
	WorkerAlive  bool `json:"worker_alive"`
	Key          bool `json:"key"`
}

// Snapshot captures the subtree rooted at c.
func (c *Component) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		Status:      c.status,
		ErrorReason: c.errorReason,
	}
	c.mu.Unlock()

	s.FQN = c.FQN()
	s.Name = c.Name()
	s.Asynchronous = c.asynchronous
	if info, ok := c.InFlight(); ok {
		s.InFlight = &info
	}

	if a := c.active; a != nil {
		a.mu.Lock()
		s.Active = &ActiveSnapshot{
			RestartCount: a.restartCount,
			Budget:       a.policy.Budget,
			Exhausted:    a.exhausted,
			Key:          a.policy.Key,
		}
		a.mu.Unlock()
		s.Active.WorkerAlive = a.WorkerAlive()
	}

	if props := c.Properties(); len(props) > 0 {
		s.Properties = make(map[string]string, len(props))
		for _, p := range props {
			s.Properties[p.Name()] = p.String()
		}
	}
	for _, ch := range c.Children() {
		s.Children = append(s.Children, ch.Snapshot())
	}
	return s
}

// Walk calls fn for s and every descendant in pre-order.
func (s Snapshot) Walk(fn func(Snapshot)) {
	fn(s)
	for _, ch := range s.Children {
		ch.Walk(fn)
	}
}

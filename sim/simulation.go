package sim

// A Simulation provides the service requires to define a simulation.
type Simulation struct {
	components    []Component
	compNameIndex map[string]int
}

// NewSimulation creates a new simulation.
func NewSimulation() *Simulation {
	return &Simulation{
		compNameIndex: make(map[string]int),
	}
}

// RegisterComponent registers a component with the simulation. The registry
// is built while the simulation is assembled and is frozen once the engine
// starts running; lookups after that point need no locking.
func (s *Simulation) RegisterComponent(c Component) {
	compName := c.Name()
	NameMustBeValid(compName)
	if _, found := s.compNameIndex[compName]; found {
		panic("component " + compName + " already registered")
	}

	s.components = append(s.components, c)
	s.compNameIndex[compName] = len(s.components) - 1
}

// GetComponentByName returns the component with the given name.
func (s *Simulation) GetComponentByName(name string) Component {
	return s.components[s.compNameIndex[name]]
}

// Components returns all registered components in registration order.
func (s *Simulation) Components() []Component {
	return s.components
}

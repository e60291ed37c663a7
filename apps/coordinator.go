package apps

import (
	"sync/atomic"

	"github.com/vnetsim/vnetsim/machine"
)

// Coordinator ties a group of terminating applications together: the
// simulation shuts down cleanly only once every registered application
// reports completion. A single capture uses a coordinator of one.
type Coordinator struct {
	remaining atomic.Int32
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Register adds one application to the group. Called while machines are
// being built.
func (c *Coordinator) Register() {
	c.remaining.Add(1)
}

// Done marks one application complete. The last completion triggers a
// clean shutdown.
func (c *Coordinator) Done(shutdown *machine.Shutdown) {
	if c.remaining.Add(-1) == 0 && shutdown != nil {
		shutdown.Trigger(0)
	}
}

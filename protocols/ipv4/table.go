package ipv4

import (
	"sort"

	"github.com/vnetsim/vnetsim/fabric"
	"github.com/vnetsim/vnetsim/vnerr"
)

// Route is the link-layer answer of a table lookup: the PCI slot to send
// through and the destination framing on that network. A route with
// Broadcast set frames to every tap on the network and lets receivers
// filter by IP address.
type Route struct {
	Slot      int
	MAC       fabric.MAC
	Broadcast bool
}

// Table is a per-machine routing table mapping destination prefixes to
// routes by longest prefix match. It is populated while the machine is
// built and frozen once the simulation starts, so lookups need no locking.
type Table struct {
	entries []tableEntry
}

type tableEntry struct {
	prefix Prefix
	route  Route
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{}
}

// Add installs a route for the given prefix. Longer prefixes win lookups
// regardless of insertion order.
func (t *Table) Add(prefix Prefix, route Route) *Table {
	t.entries = append(t.entries, tableEntry{prefix: prefix, route: route})

	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].prefix.Len > t.entries[j].prefix.Len
	})

	return t
}

// Lookup resolves a destination address to a route, preferring the longest
// matching prefix. An unresolved destination fails with vnerr.NoRoute.
func (t *Table) Lookup(dst Address) (Route, error) {
	for _, e := range t.entries {
		if e.prefix.Contains(dst) {
			return e.route, nil
		}
	}

	return Route{}, vnerr.NoRoute
}

// Package scenario loads a YAML scenario file and assembles the machines
// and networks it describes. It is a convenience layer in front of the
// builder contract the external network description language consumes: the
// same network, machine, protocol, and application vocabulary, in a format
// the command line can run directly.
package scenario

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkSpec describes one network and its address pool.
type NetworkSpec struct {
	ID         string   `yaml:"id"`
	MTU        uint32   `yaml:"mtu"`
	Latency    string   `yaml:"latency"`
	Throughput float64  `yaml:"throughput"`
	Loss       float64  `yaml:"loss"`
	Corruption float64  `yaml:"corruption"`
	IPs        []string `yaml:"ips"`
}

// AppSpec describes one application on a machine. Which fields matter
// depends on the application name.
type AppSpec struct {
	Name         string `yaml:"name"`
	Transport    string `yaml:"transport"`
	Message      string `yaml:"message"`
	To           string `yaml:"to"`
	Port         string `yaml:"port"`
	IP           string `yaml:"ip"`
	MessageCount int    `yaml:"message_count"`
	Rounds       int    `yaml:"rounds"`
	Initiator    bool   `yaml:"initiator"`
}

// MachineSpec describes one machine template, expanded Count times.
type MachineSpec struct {
	Name         string    `yaml:"name"`
	Count        int       `yaml:"count"`
	Networks     []string  `yaml:"networks"`
	Protocols    []string  `yaml:"protocols"`
	Applications []AppSpec `yaml:"applications"`
}

// Spec is a whole scenario.
type Spec struct {
	Engine   string        `yaml:"engine"`
	Networks []NetworkSpec `yaml:"networks"`
	Machines []MachineSpec `yaml:"machines"`
}

// Load reads and parses a scenario file.
func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}

	return Parse(data)
}

// Parse parses scenario YAML.
func Parse(data []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Spec{}, fmt.Errorf("parsing scenario: %w", err)
	}

	if err := s.validate(); err != nil {
		return Spec{}, err
	}

	return s, nil
}

func (s Spec) validate() error {
	if len(s.Networks) == 0 {
		return fmt.Errorf("scenario has no networks")
	}

	ids := map[string]bool{}
	for _, n := range s.Networks {
		if n.ID == "" {
			return fmt.Errorf("network without id")
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate network id %q", n.ID)
		}
		ids[n.ID] = true

		if n.MTU == 0 {
			return fmt.Errorf("network %s: mtu must be positive", n.ID)
		}
		if n.Loss < 0 || n.Loss > 1 || n.Corruption < 0 || n.Corruption > 1 {
			return fmt.Errorf("network %s: probabilities must be in [0,1]", n.ID)
		}
		if len(n.IPs) == 0 {
			return fmt.Errorf("network %s: empty address pool", n.ID)
		}
	}

	for _, m := range s.Machines {
		if m.Name == "" {
			return fmt.Errorf("machine without name")
		}
		for _, id := range m.Networks {
			if !ids[id] {
				return fmt.Errorf("machine %s: unknown network %q", m.Name, id)
			}
		}
	}

	return nil
}

// latency parses the network's latency field; an empty field is zero.
func (n NetworkSpec) latency() (time.Duration, error) {
	if n.Latency == "" {
		return 0, nil
	}

	return time.ParseDuration(n.Latency)
}

// ParsePort accepts decimal or 0x-prefixed hexadecimal port values.
func ParsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad port %q: %w", s, err)
	}

	return uint16(v), nil
}

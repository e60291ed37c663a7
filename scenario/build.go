package scenario

import (
	"fmt"

	"github.com/vnetsim/vnetsim/apps"
	"github.com/vnetsim/vnetsim/fabric"
	"github.com/vnetsim/vnetsim/machine"
	"github.com/vnetsim/vnetsim/message"
	"github.com/vnetsim/vnetsim/protocols/ipv4"
	"github.com/vnetsim/vnetsim/protocols/pci"
	"github.com/vnetsim/vnetsim/protocols/tcp"
	"github.com/vnetsim/vnetsim/protocols/udp"
	"github.com/vnetsim/vnetsim/sim"
)

// Built is an assembled scenario, ready to hand to internet.Run.
type Built struct {
	Engine      sim.Engine
	Networks    []*fabric.Network
	Machines    []*machine.Machine
	Coordinator *apps.Coordinator
	Captures    []*apps.Capture
}

// ipPool hands out host addresses from a network's CIDR pools in order.
type ipPool struct {
	prefixes []ipv4.Prefix
	prefix   int
	next     uint32
}

func newIPPool(cidrs []string) (*ipPool, error) {
	p := &ipPool{next: 1}
	for _, cidr := range cidrs {
		prefix, err := ipv4.ParsePrefix(cidr)
		if err != nil {
			return nil, err
		}
		p.prefixes = append(p.prefixes, prefix)
	}

	return p, nil
}

func (p *ipPool) take() (ipv4.Address, error) {
	for p.prefix < len(p.prefixes) {
		prefix := p.prefixes[p.prefix]
		hostBits := 32 - prefix.Len

		if hostBits == 0 {
			if p.next == 1 {
				p.next++
				return prefix.Addr, nil
			}
		} else if p.next < uint32(1)<<hostBits-1 {
			addr := prefix.Addr + ipv4.Address(p.next)
			p.next++
			return addr, nil
		}

		p.prefix++
		p.next = 1
	}

	return 0, fmt.Errorf("address pool exhausted")
}

// attachment is one machine instance's presence on one network.
type attachment struct {
	network *fabric.Network
	netID   string
	tap     *fabric.Tap
	addr    ipv4.Address
}

type instance struct {
	name        string
	spec        MachineSpec
	attachments []attachment
}

func (i *instance) primary() ipv4.Address {
	return i.attachments[0].addr
}

// Build assembles the scenario: networks with their address pools,
// machine instances with taps, routing tables, protocol stacks, and
// applications, all driven by one engine.
//
//nolint:gocyclo,funlen // Assembly is one linear pass; splitting it would
// scatter the name-resolution state.
func (s Spec) Build() (*Built, error) {
	var engine sim.Engine
	switch s.Engine {
	case "", "serial":
		engine = sim.NewSerialEngine()
	case "parallel":
		engine = sim.NewParallelEngine()
	default:
		return nil, fmt.Errorf("unknown engine %q", s.Engine)
	}

	built := &Built{Engine: engine, Coordinator: apps.NewCoordinator()}

	networks := map[string]*fabric.Network{}
	pools := map[string]*ipPool{}
	prefixes := map[string][]ipv4.Prefix{}

	for _, ns := range s.Networks {
		latency, err := ns.latency()
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", ns.ID, err)
		}

		n := fabric.NewNetwork(ns.ID, engine, fabric.Config{
			MTU:                      ns.MTU,
			Latency:                  sim.VTimeInSec(latency.Seconds()),
			ThroughputBytesPerSecond: ns.Throughput,
			LossProbability:          ns.Loss,
			CorruptionProbability:    ns.Corruption,
		})

		pool, err := newIPPool(ns.IPs)
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", ns.ID, err)
		}

		networks[ns.ID] = n
		pools[ns.ID] = pool
		prefixes[ns.ID] = pool.prefixes
		built.Networks = append(built.Networks, n)
	}

	// First pass: create instances, attach taps, assign addresses.
	var instances []*instance
	byName := map[string]*instance{}
	byNetwork := map[string][]*instance{}

	for _, ms := range s.Machines {
		count := ms.Count
		if count == 0 {
			count = 1
		}

		for c := 0; c < count; c++ {
			name := ms.Name
			if count > 1 {
				name = fmt.Sprintf("%s-%d", ms.Name, c)
			}

			inst := &instance{name: name, spec: ms}
			for _, netID := range ms.Networks {
				addr, err := pools[netID].take()
				if err != nil {
					return nil, fmt.Errorf("machine %s: %w", name, err)
				}

				inst.attachments = append(inst.attachments, attachment{
					network: networks[netID],
					netID:   netID,
					tap:     networks[netID].Attach(),
					addr:    addr,
				})
				byNetwork[netID] = append(byNetwork[netID], inst)
			}

			instances = append(instances, inst)
			byName[name] = inst
			if count > 1 && c == 0 {
				byName[ms.Name] = inst // bare name resolves to the first clone
			}
		}
	}

	resolve := func(to string) (ipv4.Address, error) {
		if peer, ok := byName[to]; ok {
			return peer.primary(), nil
		}
		return ipv4.ParseAddress(to)
	}

	// Second pass: routing tables, protocol stacks, applications.
	for _, inst := range instances {
		table := ipv4.NewTable()

		for slot, att := range inst.attachments {
			for _, prefix := range prefixes[att.netID] {
				table.Add(prefix, ipv4.Route{Slot: slot, Broadcast: true})
			}

			for _, peer := range byNetwork[att.netID] {
				if peer == inst {
					continue
				}
				for _, peerAtt := range peer.attachments {
					if peerAtt.netID != att.netID {
						continue
					}
					table.Add(
						ipv4.Prefix{Addr: peerAtt.addr, Len: 32},
						ipv4.Route{Slot: slot, MAC: peerAtt.tap.MAC()},
					)
				}
			}
		}

		table.Add(
			ipv4.Prefix{Addr: ipv4.Broadcast, Len: 32},
			ipv4.Route{Slot: 0, Broadcast: true},
		)

		taps := make([]*fabric.Tap, 0, len(inst.attachments))
		for _, att := range inst.attachments {
			taps = append(taps, att.tap)
		}

		builder := machine.MakeBuilder().
			WithEngine(engine).
			WithProtocol(pci.New(taps...)).
			WithProtocol(ipv4.New(table))

		for _, protoName := range inst.spec.Protocols {
			switch protoName {
			case "IPv4":
				// Always present.
			case "UDP":
				builder = builder.WithProtocol(udp.New())
			case "TCP":
				builder = builder.WithProtocol(tcp.New(tcp.Config{}))
			default:
				return nil, fmt.Errorf("machine %s: unknown protocol %q",
					inst.name, protoName)
			}
		}

		for _, as := range inst.spec.Applications {
			app, err := s.buildApp(as, inst, resolve, built)
			if err != nil {
				return nil, fmt.Errorf("machine %s: %w", inst.name, err)
			}
			builder = builder.WithProtocol(app)
		}

		built.Machines = append(built.Machines, builder.Build(inst.name))
	}

	return built, nil
}

func (s Spec) buildApp(
	as AppSpec,
	inst *instance,
	resolve func(string) (ipv4.Address, error),
	built *Built,
) (machine.Protocol, error) {
	transport := apps.TransportUDP
	if as.Transport == "tcp" {
		transport = apps.TransportTCP
	}

	switch as.Name {
	case "send_message":
		remoteAddr, err := resolve(as.To)
		if err != nil {
			return nil, err
		}
		port, err := ParsePort(as.Port)
		if err != nil {
			return nil, err
		}

		return apps.NewSendMessage(
			as.Name,
			transport,
			ipv4.Endpoint{Addr: remoteAddr, Port: port},
			message.New([]byte(as.Message)),
		).WithLocalEndpoint(ipv4.Endpoint{
			Addr: inst.primary(),
			Port: apps.EphemeralPort(),
		}), nil

	case "capture":
		addr := inst.primary()
		if as.IP != "" {
			var err error
			addr, err = ipv4.ParseAddress(as.IP)
			if err != nil {
				return nil, err
			}
		}
		port, err := ParsePort(as.Port)
		if err != nil {
			return nil, err
		}

		capture := apps.NewCapture(
			as.Name,
			transport,
			ipv4.Endpoint{Addr: addr, Port: port},
			as.MessageCount,
			built.Coordinator,
		)
		built.Captures = append(built.Captures, capture)

		return capture, nil

	case "ping_pong":
		remoteAddr, err := resolve(as.To)
		if err != nil {
			return nil, err
		}
		port, err := ParsePort(as.Port)
		if err != nil {
			return nil, err
		}

		return apps.NewPingPong(
			as.Name,
			as.Initiator,
			ipv4.Endpoint{Addr: inst.primary(), Port: port},
			ipv4.Endpoint{Addr: remoteAddr, Port: port},
			uint32(as.Rounds),
			built.Coordinator,
		), nil

	default:
		return nil, fmt.Errorf("unknown application %q", as.Name)
	}
}

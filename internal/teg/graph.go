// Package teg builds the time-expanded graph of a weekly flight network and
// routes orders over it while tracking per-departure capacity.
package teg

import (
	"fmt"

	"morapack/internal/network"
)

// Horizon is the number of hourly nodes per airport.
const Horizon = network.HorizonHours

type EdgeKind uint8

const (
	Wait EdgeKind = iota
	FlightLeg
)

func (k EdgeKind) String() string {
	if k == Wait {
		return "wait"
	}
	return "flight"
}

// FlightInstance is one concrete departure of a flight template.
// Remaining capacity only changes through Graph.ReservePath and Graph.Restore.
type FlightInstance struct {
	ID        int
	Flight    network.Flight
	Departure int
	Arrival   int
	remaining int
}

func (fi *FlightInstance) Remaining() int { return fi.remaining }

// Used is the number of units reserved on this departure.
func (fi *FlightInstance) Used() int { return fi.Flight.Seats - fi.remaining }

// Node is an (airport, hour) pair.
type Node struct {
	Airport string
	Hour    int
	index   int
	edges   []*Edge
}

func (n *Node) String() string { return fmt.Sprintf("%s@%d", n.Airport, n.Hour) }

// Edge connects two nodes. Flight edges reference exactly one instance; wait
// edges have a nil Instance.
type Edge struct {
	Kind     EdgeKind
	From     *Node
	To       *Node
	Instance *FlightInstance
}

// Graph is the weekly time-expanded graph. Its structure is fixed at
// construction; only instance capacities change afterwards.
type Graph struct {
	airports  []network.Airport
	index     map[string]int
	nodes     []Node
	instances []*FlightInstance
}

// New builds the graph for n. Departures whose arrival falls at or after the
// end of the week are dropped.
func New(n network.Network) (*Graph, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("teg: build: %w", err)
	}
	g := &Graph{
		airports: append([]network.Airport(nil), n.Airports...),
		index:    make(map[string]int, len(n.Airports)),
		nodes:    make([]Node, len(n.Airports)*Horizon),
	}
	for ai, a := range n.Airports {
		g.index[a.Code] = ai
		for h := 0; h < Horizon; h++ {
			i := ai*Horizon + h
			g.nodes[i] = Node{Airport: a.Code, Hour: h, index: i}
		}
	}
	// wait edges go first so adjacency order is wait, then flights by instance id
	for ai := range n.Airports {
		for h := 0; h < Horizon-1; h++ {
			u := &g.nodes[ai*Horizon+h]
			v := &g.nodes[ai*Horizon+h+1]
			u.edges = append(u.edges, &Edge{Kind: Wait, From: u, To: v})
		}
	}
	for _, f := range n.Flights {
		g.addWeekly(f)
	}
	return g, nil
}

func (g *Graph) addWeekly(f network.Flight) {
	stride := f.Stride()
	oi, di := g.index[f.Origin], g.index[f.Destination]
	for day := 0; day < 7; day++ {
		for slot := 0; slot < f.PerDay; slot++ {
			dep := day*24 + slot*stride
			arr := dep + f.DurationHours
			if arr >= Horizon {
				continue
			}
			fi := &FlightInstance{ID: len(g.instances), Flight: f, Departure: dep, Arrival: arr, remaining: f.Seats}
			g.instances = append(g.instances, fi)
			u := &g.nodes[oi*Horizon+dep]
			v := &g.nodes[di*Horizon+arr]
			u.edges = append(u.edges, &Edge{Kind: FlightLeg, From: u, To: v, Instance: fi})
		}
	}
}

// Node returns the node for airport code at hour, or nil when either is out of range.
func (g *Graph) Node(code string, hour int) *Node {
	ai, ok := g.index[code]
	if !ok || hour < 0 || hour >= Horizon {
		return nil
	}
	return &g.nodes[ai*Horizon+hour]
}

// Edges returns the outgoing edges of n: the wait edge (if any) followed by
// flight edges in instance id order.
func (g *Graph) Edges(n *Node) []*Edge { return n.edges }

// Instances is the catalog of materialized departures, ordered by id.
func (g *Graph) Instances() []*FlightInstance { return g.instances }

func (g *Graph) Airports() []network.Airport { return g.airports }

// HasAirport reports whether code is part of the graph.
func (g *Graph) HasAirport(code string) bool {
	_, ok := g.index[code]
	return ok
}

func (g *Graph) NodeCount() int { return len(g.nodes) }

// ReservePath re-checks every flight edge of path for at least units of
// remaining capacity and, only if all pass, books units on each. It is all
// or nothing: on false no instance has changed.
func (g *Graph) ReservePath(path []*Edge, units int) bool {
	for _, e := range path {
		if e.Kind == FlightLeg && e.Instance.remaining < units {
			return false
		}
	}
	for _, e := range path {
		if e.Kind == FlightLeg {
			e.Instance.remaining -= units
		}
	}
	return true
}

// Snapshot is a copy of every instance's remaining capacity.
type Snapshot struct {
	remaining []int
}

// Snapshot captures the current capacities.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{remaining: make([]int, len(g.instances))}
	for i, fi := range g.instances {
		s.remaining[i] = fi.remaining
	}
	return s
}

// Restore puts capacities back to a snapshot taken from this graph.
func (g *Graph) Restore(s Snapshot) {
	if len(s.remaining) != len(g.instances) {
		panic(fmt.Sprintf("teg: snapshot of %d instances restored into graph of %d", len(s.remaining), len(g.instances)))
	}
	for i, fi := range g.instances {
		fi.remaining = s.remaining[i]
	}
}

// Reset returns every instance to full capacity.
func (g *Graph) Reset() {
	for _, fi := range g.instances {
		fi.remaining = fi.Flight.Seats
	}
}

// Load reports how much of one departure is in use.
type Load struct {
	InstanceID  int    `json:"instanceId"`
	FlightID    string `json:"flightId,omitempty"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Departure   int    `json:"departure"`
	Arrival     int    `json:"arrival"`
	Seats       int    `json:"seats"`
	Used        int    `json:"used"`
}

// Loads lists departures with at least one reserved unit.
func (g *Graph) Loads() []Load {
	var out []Load
	for _, fi := range g.instances {
		if fi.Used() == 0 {
			continue
		}
		out = append(out, Load{
			InstanceID:  fi.ID,
			FlightID:    fi.Flight.ID,
			Origin:      fi.Flight.Origin,
			Destination: fi.Flight.Destination,
			Departure:   fi.Departure,
			Arrival:     fi.Arrival,
			Seats:       fi.Flight.Seats,
			Used:        fi.Used(),
		})
	}
	return out
}

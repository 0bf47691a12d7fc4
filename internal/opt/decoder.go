package opt

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"morapack/internal/network"
	"morapack/internal/teg"
)

// ErrUnknownAirport is returned when an order references an airport missing from the graph.
var ErrUnknownAirport = errors.New("unknown airport")

// DeliveryWeight is the fitness credited per delivered order.
const DeliveryWeight = 1000.0

// Decoder turns a priority vector into a Solution by routing orders one at a
// time, highest priority first, against a shared graph.
//
// Every Decode starts from full capacity on every departure and leaves the
// graph holding the decoded plan's reservations.
type Decoder struct {
	g        *teg.Graph
	router   *teg.Router
	orders   []network.PackageOrder
	starts   []*teg.Node
	pristine teg.Snapshot
	idx      []int
}

// NewDecoder prepares a decoder for orders over g. It resets g to full
// capacity, discarding reservations left by earlier runs.
func NewDecoder(g *teg.Graph, orders []network.PackageOrder) (*Decoder, error) {
	g.Reset()
	d := &Decoder{
		g:        g,
		router:   teg.NewRouter(g),
		orders:   orders,
		starts:   make([]*teg.Node, len(orders)),
		pristine: g.Snapshot(),
		idx:      make([]int, len(orders)),
	}
	for i, o := range orders {
		if !g.HasAirport(o.Origin) {
			return nil, fmt.Errorf("decoder: order %s origin %q: %w", o.ID, o.Origin, ErrUnknownAirport)
		}
		if !g.HasAirport(o.Destination) {
			return nil, fmt.Errorf("decoder: order %s destination %q: %w", o.ID, o.Destination, ErrUnknownAirport)
		}
		if o.Units() < 1 {
			return nil, fmt.Errorf("decoder: order %s size %d: %w", o.ID, o.Size, ErrInvalidConfig)
		}
		d.starts[i] = g.Node(o.Origin, 0)
	}
	return d, nil
}

func (d *Decoder) Orders() []network.PackageOrder { return d.orders }

// Decode routes all orders in descending priority, ties broken by index.
// It panics if len(priorities) differs from the number of orders.
func (d *Decoder) Decode(priorities []float64) Solution {
	if len(priorities) != len(d.orders) {
		panic(fmt.Sprintf("opt: priority vector has %d entries, want %d", len(priorities), len(d.orders)))
	}
	d.g.Restore(d.pristine)

	for i := range d.idx {
		d.idx[i] = i
	}
	slices.SortStableFunc(d.idx, func(a, b int) int {
		return cmp.Compare(priorities[b], priorities[a])
	})

	sol := Solution{
		Deliveries: make([]Delivery, 0, len(d.orders)),
		Backlog:    []network.PackageOrder{},
	}
	for _, i := range d.idx {
		o := d.orders[i]
		units := o.Units()
		p, ok := d.router.FindPath(d.starts[i], o.Destination, o.Deadline, units)
		if !ok || !d.g.ReservePath(p.Edges, units) {
			sol.Backlog = append(sol.Backlog, o)
			continue
		}
		sol.Deliveries = append(sol.Deliveries, Delivery{Order: o, Arrival: p.Arrival, Legs: legsOf(p)})
	}

	delivered := len(sol.Deliveries)
	penalty := 0.0
	sol.Fitness = float64(delivered)*DeliveryWeight - penalty
	sol.PercentDelivered = 100 * float64(delivered) / float64(max(1, len(d.orders)))
	return sol
}

func legsOf(p teg.Path) []Leg {
	var legs []Leg
	for _, e := range p.Flights() {
		fi := e.Instance
		legs = append(legs, Leg{
			FlightID:    fi.Flight.ID,
			Origin:      fi.Flight.Origin,
			Destination: fi.Flight.Destination,
			Departure:   fi.Departure,
			Arrival:     fi.Arrival,
		})
	}
	return legs
}

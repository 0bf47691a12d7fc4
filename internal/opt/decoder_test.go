package opt

import (
	"errors"
	"testing"

	"morapack/internal/network"
	"morapack/internal/teg"
)

func singleSeat(t *testing.T) *teg.Graph {
	t.Helper()
	g, err := teg.New(network.Network{
		Airports: []network.Airport{{Code: "A"}, {Code: "B"}},
		Flights:  []network.Flight{{ID: "A-B", Origin: "A", Destination: "B", DurationHours: 12, Seats: 1, PerDay: 1}},
	})
	if err != nil {
		t.Fatalf("teg.New: %v", err)
	}
	return g
}

func twoOrders() []network.PackageOrder {
	return []network.PackageOrder{
		{ID: "o1", Origin: "A", Destination: "B", Deadline: 20, Size: 1},
		{ID: "o2", Origin: "A", Destination: "B", Deadline: 20, Size: 1},
	}
}

func TestDecodeSingleSeatDeliversOne(t *testing.T) {
	g := singleSeat(t)
	dec, err := NewDecoder(g, twoOrders())
	if err != nil {
		t.Fatal(err)
	}
	for _, prio := range [][]float64{{0.9, 0.1}, {0.1, 0.9}, {0.5, 0.5}, {0, 1}} {
		sol := dec.Decode(prio)
		if sol.Delivered() != 1 || len(sol.Backlog) != 1 {
			t.Fatalf("prio %v: delivered=%d backlog=%d", prio, sol.Delivered(), len(sol.Backlog))
		}
		if sol.Deliveries[0].Arrival != 12 {
			t.Fatalf("arrival: got %d want 12", sol.Deliveries[0].Arrival)
		}
		if sol.Fitness != DeliveryWeight || sol.PercentDelivered != 50 {
			t.Fatalf("fitness=%v percent=%v", sol.Fitness, sol.PercentDelivered)
		}
	}
}

func TestDecodePriorityOrderControlsWinner(t *testing.T) {
	dec, err := NewDecoder(singleSeat(t), twoOrders())
	if err != nil {
		t.Fatal(err)
	}
	if got := dec.Decode([]float64{0.2, 0.8}).Deliveries[0].Order.ID; got != "o2" {
		t.Fatalf("higher priority o2 should win, got %s", got)
	}
	// ties fall back to index order
	if got := dec.Decode([]float64{0.5, 0.5}).Deliveries[0].Order.ID; got != "o1" {
		t.Fatalf("tie should go to o1, got %s", got)
	}
}

func TestDecodeRestoresCapacityBetweenCalls(t *testing.T) {
	g := singleSeat(t)
	dec, err := NewDecoder(g, twoOrders())
	if err != nil {
		t.Fatal(err)
	}
	first := dec.Decode([]float64{0.3, 0.7})
	for i := 0; i < 5; i++ {
		again := dec.Decode([]float64{0.3, 0.7})
		if again.Fitness != first.Fitness || again.Deliveries[0].Order.ID != first.Deliveries[0].Order.ID {
			t.Fatalf("decode %d differs from first: %+v vs %+v", i, again, first)
		}
	}
	for _, fi := range g.Instances() {
		if fi.Remaining() < 0 || fi.Remaining() > fi.Flight.Seats {
			t.Fatalf("instance %d capacity out of range: %d", fi.ID, fi.Remaining())
		}
	}
}

func TestDecodeEdgeOrders(t *testing.T) {
	orders := []network.PackageOrder{
		{ID: "zero", Origin: "A", Destination: "B", Deadline: 0},
		{ID: "local", Origin: "A", Destination: "A", Deadline: 0},
	}
	dec, err := NewDecoder(singleSeat(t), orders)
	if err != nil {
		t.Fatal(err)
	}
	sol := dec.Decode([]float64{0.5, 0.5})
	if sol.Delivered() != 1 || sol.Deliveries[0].Order.ID != "local" || sol.Deliveries[0].Arrival != 0 || len(sol.Deliveries[0].Legs) != 0 {
		t.Fatalf("same-airport order should deliver at hour 0 with no legs: %+v", sol.Deliveries)
	}
	if len(sol.Backlog) != 1 || sol.Backlog[0].ID != "zero" {
		t.Fatalf("deadline-0 order must be backlogged: %+v", sol.Backlog)
	}
	if sol.Total() != len(orders) {
		t.Fatalf("delivered+backlog=%d want %d", sol.Total(), len(orders))
	}
}

func TestDecodeEmptyOrders(t *testing.T) {
	dec, err := NewDecoder(singleSeat(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	sol := dec.Decode(nil)
	if sol.Fitness != 0 || sol.PercentDelivered != 0 || sol.Total() != 0 {
		t.Fatalf("empty decode: %+v", sol)
	}
}

func TestDecodeRecordsLegs(t *testing.T) {
	dec, err := NewDecoder(singleSeat(t), twoOrders()[:1])
	if err != nil {
		t.Fatal(err)
	}
	d := dec.Decode([]float64{1}).Deliveries[0]
	if len(d.Legs) != 1 || d.Legs[0].FlightID != "A-B" || d.Legs[0].Departure != 0 || d.Legs[0].Arrival != 12 {
		t.Fatalf("legs: %+v", d.Legs)
	}
}

func TestNewDecoderRejectsUnknownAirport(t *testing.T) {
	orders := []network.PackageOrder{{ID: "x", Origin: "A", Destination: "Q", Deadline: 10}}
	if _, err := NewDecoder(singleSeat(t), orders); !errors.Is(err, ErrUnknownAirport) {
		t.Fatalf("expected ErrUnknownAirport, got %v", err)
	}
	orders = []network.PackageOrder{{ID: "y", Origin: "A", Destination: "B", Deadline: 10, Size: -2}}
	if _, err := NewDecoder(singleSeat(t), orders); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDecodePanicsOnLengthMismatch(t *testing.T) {
	dec, err := NewDecoder(singleSeat(t), twoOrders())
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	dec.Decode([]float64{1})
}

func TestDecodeReservesOrderUnits(t *testing.T) {
	g, err := teg.New(network.Network{
		Airports: []network.Airport{{Code: "A"}, {Code: "B"}},
		Flights:  []network.Flight{{ID: "A-B", Origin: "A", Destination: "B", DurationHours: 12, Seats: 2, PerDay: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	orders := []network.PackageOrder{
		{ID: "big", Origin: "A", Destination: "B", Deadline: 20, Size: 2},
		{ID: "small", Origin: "A", Destination: "B", Deadline: 20, Size: 1},
	}
	dec, err := NewDecoder(g, orders)
	if err != nil {
		t.Fatal(err)
	}
	sol := dec.Decode([]float64{0.9, 0.1})
	if sol.Delivered() != 1 || sol.Deliveries[0].Order.ID != "big" || sol.Backlog[0].ID != "small" {
		t.Fatalf("size-2 order should fill the departure: %+v", sol)
	}
	if fi := g.Instances()[0]; fi.Remaining() != 0 {
		t.Fatalf("two units reserved, remaining=%d", fi.Remaining())
	}
	// one seat left after the small order is not enough for the big one
	sol = dec.Decode([]float64{0.1, 0.9})
	if sol.Delivered() != 1 || sol.Deliveries[0].Order.ID != "small" || sol.Backlog[0].ID != "big" {
		t.Fatalf("big order must not fit in one remaining seat: %+v", sol)
	}
	if fi := g.Instances()[0]; fi.Remaining() != 1 {
		t.Fatalf("one unit reserved, remaining=%d", fi.Remaining())
	}
}

func TestNewDecoderStartsFromFullCapacity(t *testing.T) {
	g := singleSeat(t)
	// leftover reservation from an earlier plan
	first, err := NewDecoder(g, twoOrders()[:1])
	if err != nil {
		t.Fatal(err)
	}
	first.Decode([]float64{1})
	if g.Instances()[0].Remaining() != 0 {
		t.Fatal("setup: seat should be taken")
	}
	dec, err := NewDecoder(g, twoOrders()[:1])
	if err != nil {
		t.Fatal(err)
	}
	if got := dec.Decode([]float64{1}).Delivered(); got != 1 {
		t.Fatalf("decoder must ignore earlier reservations, delivered=%d", got)
	}
}

// Package scenario provides the weekly demo network, a seeded order
// generator and YAML fixtures for custom networks.
package scenario

import (
	"fmt"
	"math/rand"

	"morapack/internal/network"
)

const (
	// DeadlineSameContinent applies when origin and destination share a continent.
	DeadlineSameContinent = 48
	// DeadlineCrossContinent applies otherwise.
	DeadlineCrossContinent = 72
)

// DemoName identifies the built-in network in reports and stores.
const DemoName = "demo"

// DemoNetwork is three hubs per continent: 12h regional legs flown two or
// three times a day and 24h intercontinental legs flown daily.
func DemoNetwork() network.Network {
	return network.Network{
		Airports: []network.Airport{
			{Code: "LIM", City: "Lima", Continent: network.Americas, Capacity: 900},
			{Code: "MIA", City: "Miami", Continent: network.Americas, Capacity: 800},
			{Code: "MEX", City: "Ciudad de México", Continent: network.Americas, Capacity: 900},
			{Code: "BRU", City: "Bruselas", Continent: network.Europe, Capacity: 1000},
			{Code: "MAD", City: "Madrid", Continent: network.Europe, Capacity: 900},
			{Code: "FRA", City: "Frankfurt", Continent: network.Europe, Capacity: 1000},
			{Code: "GYD", City: "Baku", Continent: network.Asia, Capacity: 800},
			{Code: "DOH", City: "Doha", Continent: network.Asia, Capacity: 900},
			{Code: "DXB", City: "Dubai", Continent: network.Asia, Capacity: 900},
		},
		Flights: []network.Flight{
			leg("LIM", "MIA", 12, 260, 2),
			leg("MIA", "MEX", 12, 280, 2),
			leg("BRU", "MAD", 12, 250, 3),
			leg("MAD", "FRA", 12, 230, 2),
			leg("GYD", "DOH", 12, 250, 2),
			leg("DOH", "DXB", 12, 260, 2),
			leg("LIM", "BRU", 24, 350, 1),
			leg("BRU", "GYD", 24, 380, 1),
			leg("MEX", "MAD", 24, 320, 1),
			leg("FRA", "DOH", 24, 360, 1),
		},
	}
}

func leg(from, to string, hours, seats, perDay int) network.Flight {
	return network.Flight{
		ID:            from + "-" + to,
		Origin:        from,
		Destination:   to,
		DurationHours: hours,
		Seats:         seats,
		PerDay:        perDay,
	}
}

// GenerateOrders draws n single-unit orders between distinct random airports
// of net. The same seed always yields the same orders.
func GenerateOrders(net network.Network, n int, seed int64) ([]network.PackageOrder, error) {
	if n < 0 {
		return nil, fmt.Errorf("scenario: order count %d must be >= 0", n)
	}
	if n > 0 && len(net.Airports) < 2 {
		return nil, fmt.Errorf("scenario: need at least 2 airports, have %d", len(net.Airports))
	}
	rng := rand.New(rand.NewSource(seed))
	aps := net.Airports
	orders := make([]network.PackageOrder, 0, n)
	for i := 0; i < n; i++ {
		o := aps[rng.Intn(len(aps))]
		d := aps[rng.Intn(len(aps))]
		for d.Code == o.Code {
			d = aps[rng.Intn(len(aps))]
		}
		deadline := DeadlineCrossContinent
		if o.Continent == d.Continent {
			deadline = DeadlineSameContinent
		}
		orders = append(orders, network.PackageOrder{
			ID:          fmt.Sprintf("ORD-%d", i),
			Origin:      o.Code,
			Destination: d.Code,
			Deadline:    deadline,
			Size:        1,
		})
	}
	return orders, nil
}

package opt

import "morapack/internal/network"

// Leg is one flight taken by a delivered order.
type Leg struct {
	FlightID    string `json:"flightId,omitempty"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Departure   int    `json:"departure"`
	Arrival     int    `json:"arrival"`
}

// Delivery records an order that reached its destination in time.
type Delivery struct {
	Order   network.PackageOrder `json:"order"`
	Arrival int                  `json:"arrival"`
	Legs    []Leg                `json:"legs,omitempty"`
}

// Solution is the outcome of decoding one priority vector.
type Solution struct {
	Deliveries       []Delivery             `json:"deliveries"`
	Backlog          []network.PackageOrder `json:"backlog"`
	Fitness          float64                `json:"fitness"`
	PercentDelivered float64                `json:"percentDelivered"`
}

func (s Solution) Delivered() int { return len(s.Deliveries) }

func (s Solution) Total() int { return len(s.Deliveries) + len(s.Backlog) }

// Package network holds the static description of a weekly cargo network:
// airports, recurring flight templates and the package orders routed over them.
package network

import (
	"errors"
	"fmt"
	"strings"
)

// HorizonHours is the length of the planning week in whole hours.
const HorizonHours = 168

// ErrInvalidNetwork is returned for malformed airports, flights or orders.
var ErrInvalidNetwork = errors.New("invalid network")

type Continent string

const (
	Americas Continent = "AMERICAS"
	Europe   Continent = "EUROPE"
	Asia     Continent = "ASIA"
)

// Airport is one location in the network. Capacity is the nominal
// warehouse size and is informational only.
type Airport struct {
	Code      string    `json:"code" yaml:"code"`
	City      string    `json:"city,omitempty" yaml:"city,omitempty"`
	Continent Continent `json:"continent" yaml:"continent"`
	Capacity  int       `json:"capacity" yaml:"capacity"`
}

func (a Airport) String() string {
	return fmt.Sprintf("%s (%s, %s)", a.Code, a.City, a.Continent)
}

// Flight is a recurring route template. It departs PerDay times a day,
// evenly spaced, and each departure offers Seats capacity units.
type Flight struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	Origin        string `json:"origin" yaml:"origin"`
	Destination   string `json:"destination" yaml:"destination"`
	DurationHours int    `json:"durationHours" yaml:"durationHours"`
	Seats         int    `json:"seats" yaml:"seats"`
	PerDay        int    `json:"perDay" yaml:"perDay"`
}

// Stride is the number of hours between consecutive departures of a day.
func (f Flight) Stride() int {
	if f.PerDay < 1 {
		return 24
	}
	return 24 / f.PerDay
}

// PackageOrder asks for Size units to travel from Origin to Destination,
// arriving no later than Deadline hours after the start of the week.
type PackageOrder struct {
	ID          string `json:"id" yaml:"id"`
	Origin      string `json:"origin" yaml:"origin"`
	Destination string `json:"destination" yaml:"destination"`
	Deadline    int    `json:"deadline" yaml:"deadline"`
	Size        int    `json:"size,omitempty" yaml:"size,omitempty"`
}

// Units returns the capacity consumed by the order. A zero size means one unit.
func (o PackageOrder) Units() int {
	if o.Size == 0 {
		return 1
	}
	return o.Size
}

// Network is the set of airports and flight templates a graph is built from.
type Network struct {
	Airports []Airport `json:"airports" yaml:"airports"`
	Flights  []Flight  `json:"flights" yaml:"flights"`
}

// Airport looks up an airport by code.
func (n Network) Airport(code string) (Airport, bool) {
	for _, a := range n.Airports {
		if a.Code == code {
			return a, true
		}
	}
	return Airport{}, false
}

// Validate checks airports and flights. Flights whose departures would land
// after the horizon are not an error; the graph filters those instances.
func (n Network) Validate() error {
	if len(n.Airports) == 0 {
		return fmt.Errorf("%w: no airports", ErrInvalidNetwork)
	}
	seen := make(map[string]struct{}, len(n.Airports))
	for i, a := range n.Airports {
		if strings.TrimSpace(a.Code) == "" {
			return fmt.Errorf("%w: airport %d has empty code", ErrInvalidNetwork, i)
		}
		if _, dup := seen[a.Code]; dup {
			return fmt.Errorf("%w: duplicate airport %s", ErrInvalidNetwork, a.Code)
		}
		if a.Capacity < 0 {
			return fmt.Errorf("%w: airport %s capacity must be >= 0", ErrInvalidNetwork, a.Code)
		}
		seen[a.Code] = struct{}{}
	}
	for i, f := range n.Flights {
		name := f.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if _, ok := seen[f.Origin]; !ok {
			return fmt.Errorf("%w: flight %s unknown origin %q", ErrInvalidNetwork, name, f.Origin)
		}
		if _, ok := seen[f.Destination]; !ok {
			return fmt.Errorf("%w: flight %s unknown destination %q", ErrInvalidNetwork, name, f.Destination)
		}
		if f.Origin == f.Destination {
			return fmt.Errorf("%w: flight %s origin equals destination", ErrInvalidNetwork, name)
		}
		if f.DurationHours < 1 {
			return fmt.Errorf("%w: flight %s durationHours must be >= 1", ErrInvalidNetwork, name)
		}
		if f.Seats < 1 {
			return fmt.Errorf("%w: flight %s seats must be >= 1", ErrInvalidNetwork, name)
		}
		if f.PerDay < 1 || f.PerDay > 24 {
			return fmt.Errorf("%w: flight %s perDay must be in [1,24]", ErrInvalidNetwork, name)
		}
	}
	return nil
}

// ValidateOrders checks that every order references known airports and has
// a usable size and deadline.
func (n Network) ValidateOrders(orders []PackageOrder) error {
	known := make(map[string]struct{}, len(n.Airports))
	for _, a := range n.Airports {
		known[a.Code] = struct{}{}
	}
	for i, o := range orders {
		name := o.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if _, ok := known[o.Origin]; !ok {
			return fmt.Errorf("%w: order %s unknown origin %q", ErrInvalidNetwork, name, o.Origin)
		}
		if _, ok := known[o.Destination]; !ok {
			return fmt.Errorf("%w: order %s unknown destination %q", ErrInvalidNetwork, name, o.Destination)
		}
		if o.Size < 0 {
			return fmt.Errorf("%w: order %s size must be >= 1", ErrInvalidNetwork, name)
		}
		if o.Deadline < 0 || o.Deadline >= HorizonHours {
			return fmt.Errorf("%w: order %s deadline must be in [0,%d]", ErrInvalidNetwork, name, HorizonHours-1)
		}
	}
	return nil
}

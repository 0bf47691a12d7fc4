package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"morapack/internal/network"
)

// Fixture is a network plus an optional order list, as stored in YAML.
type Fixture struct {
	Name    string                 `yaml:"name"`
	Network network.Network        `yaml:"network"`
	Orders  []network.PackageOrder `yaml:"orders,omitempty"`
}

// Parse decodes and validates a YAML fixture.
func Parse(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("scenario: parse: %w", err)
	}
	if err := f.Network.Validate(); err != nil {
		return Fixture{}, fmt.Errorf("scenario: %s: %w", f.Name, err)
	}
	if err := f.Network.ValidateOrders(f.Orders); err != nil {
		return Fixture{}, fmt.Errorf("scenario: %s: %w", f.Name, err)
	}
	return f, nil
}

// LoadFile reads a fixture from path.
func LoadFile(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal renders a fixture as YAML.
func Marshal(f Fixture) ([]byte, error) {
	return yaml.Marshal(f)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/aditiharini/drone-simulator/packet"
	"github.com/goccy/go-yaml"
)

const DefaultQueueLength = 1024

var ErrInvalidConfig = errors.New("invalid config")

type GeneralConfig struct {
	// QueueLength caps the telemetry event link; events past it are lost.
	// Packet and command links are unbounded.
	QueueLength int `yaml:"queueLength"`
	// Seed for the drop policies. Zero seeds from the clock.
	Seed            int64  `yaml:"seed"`
	FloodPacketSent bool   `yaml:"floodPacketSent"`
	LogLevel        string `yaml:"logLevel"`
}

// Ids are plain ints in the file so that neighbor lists decode as sequences
// rather than byte strings. Validate checks they fit a NodeId.
type DroneConfig struct {
	Id        int     `yaml:"id"`
	DropRate  float64 `yaml:"pdr"`
	Neighbors []int   `yaml:"neighbors"`
}

// EndpointConfig describes a client or server. Endpoints are not run by the
// simulator; scenarios send and receive through them.
type EndpointConfig struct {
	Id        int    `yaml:"id"`
	Kind      string `yaml:"kind"`
	Neighbors []int  `yaml:"neighbors"`
}

type TopologyConfig struct {
	Drones    []DroneConfig    `yaml:"drones"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Topology TopologyConfig `yaml:"topology"`
}

func Load(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML (or JSON) and validates the result.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if c.General.QueueLength == 0 {
		c.General.QueueLength = DefaultQueueLength
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (e EndpointConfig) NodeKind() (packet.NodeKind, error) {
	switch e.Kind {
	case "", "client":
		return packet.Client, nil
	case "server":
		return packet.Server, nil
	default:
		return 0, fmt.Errorf("%w: endpoint %d has unknown kind %q", ErrInvalidConfig, e.Id, e.Kind)
	}
}

func (c Config) Validate() error {
	if c.General.QueueLength < 0 {
		return fmt.Errorf("%w: negative queue length %d", ErrInvalidConfig, c.General.QueueLength)
	}
	known := make(map[int]bool)
	for _, d := range c.Topology.Drones {
		if err := checkId(d.Id); err != nil {
			return err
		}
		if known[d.Id] {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidConfig, d.Id)
		}
		if d.DropRate < 0 || d.DropRate > 1 {
			return fmt.Errorf("%w: drone %d has drop rate %v outside [0, 1]", ErrInvalidConfig, d.Id, d.DropRate)
		}
		known[d.Id] = true
	}
	for _, e := range c.Topology.Endpoints {
		if err := checkId(e.Id); err != nil {
			return err
		}
		if known[e.Id] {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidConfig, e.Id)
		}
		if _, err := e.NodeKind(); err != nil {
			return err
		}
		known[e.Id] = true
	}
	check := func(id int, neighbors []int) error {
		for _, n := range neighbors {
			if n == id {
				return fmt.Errorf("%w: node %d lists itself as neighbor", ErrInvalidConfig, id)
			}
			if !known[n] {
				return fmt.Errorf("%w: node %d has unknown neighbor %d", ErrInvalidConfig, id, n)
			}
		}
		return nil
	}
	for _, d := range c.Topology.Drones {
		if err := check(d.Id, d.Neighbors); err != nil {
			return err
		}
	}
	for _, e := range c.Topology.Endpoints {
		if err := check(e.Id, e.Neighbors); err != nil {
			return err
		}
	}
	return nil
}

func checkId(id int) error {
	if id < 0 || id > 255 {
		return fmt.Errorf("%w: node id %d does not fit in a byte", ErrInvalidConfig, id)
	}
	return nil
}

type Edge [2]packet.NodeId

// Edges returns every undirected connection once, smaller id first, sorted.
// A connection listed by either side counts.
func (t TopologyConfig) Edges() []Edge {
	seen := make(map[Edge]bool)
	add := func(a, b int) {
		if a > b {
			a, b = b, a
		}
		seen[Edge{packet.NodeId(a), packet.NodeId(b)}] = true
	}
	for _, d := range t.Drones {
		for _, n := range d.Neighbors {
			add(d.Id, n)
		}
	}
	for _, e := range t.Endpoints {
		for _, n := range e.Neighbors {
			add(e.Id, n)
		}
	}
	edges := make([]Edge, 0, len(seen))
	for e := range seen {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// Package network wires drones and endpoints together from a topology and
// drives them from the outside: it plays the role of the clients and
// servers at the edge of the network and of the harness that issues
// commands to the drones.
package network

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	config "github.com/aditiharini/drone-simulator/config/simulator"
	"github.com/aditiharini/drone-simulator/controller"
	"github.com/aditiharini/drone-simulator/drone"
	"github.com/aditiharini/drone-simulator/link"
	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrNotDrone    = errors.New("node is not a drone")
	ErrNotEndpoint = errors.New("node is not an endpoint")
	ErrNotNeighbor = errors.New("not a neighbor")
	ErrLinkClosed  = errors.New("link closed")
	ErrTimeout     = errors.New("timed out")
)

type droneNode struct {
	drone    *drone.Drone
	commands *controller.CommandLink
	done     chan struct{}
	crashed  bool
}

type endpointNode struct {
	kind      packet.NodeKind
	neighbors map[packet.NodeId]bool
}

type Network struct {
	events     *controller.EventLink
	controller *controller.Controller

	mutex     sync.Mutex
	inboxes   map[packet.NodeId]*controller.PacketLink
	drones    map[packet.NodeId]*droneNode
	endpoints map[packet.NodeId]*endpointNode
	adjacent  map[packet.NodeId]map[packet.NodeId]bool
	started   bool
	stopped   bool

	wg             sync.WaitGroup
	controllerDone chan struct{}
}

// New builds every node of c without starting any of them. Drones get one
// inbox each and a neighbor table pointing at the inboxes of the nodes they
// are connected to. Endpoints only get an inbox.
func New(c config.Config) (*Network, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	// Packet and command links are unbounded: a drone must never wait on a
	// neighbor. Only telemetry is capped.
	n := &Network{
		events:         link.New[controller.Event](c.General.QueueLength),
		inboxes:        make(map[packet.NodeId]*controller.PacketLink),
		drones:         make(map[packet.NodeId]*droneNode),
		endpoints:      make(map[packet.NodeId]*endpointNode),
		adjacent:       make(map[packet.NodeId]map[packet.NodeId]bool),
		controllerDone: make(chan struct{}),
	}
	n.controller = controller.New(n.events)

	for _, d := range c.Topology.Drones {
		id := packet.NodeId(d.Id)
		n.inboxes[id] = link.New[packet.Packet](0)
		n.adjacent[id] = make(map[packet.NodeId]bool)
	}
	for _, e := range c.Topology.Endpoints {
		id := packet.NodeId(e.Id)
		kind, err := e.NodeKind()
		if err != nil {
			return nil, err
		}
		n.inboxes[id] = link.New[packet.Packet](0)
		n.adjacent[id] = make(map[packet.NodeId]bool)
		n.endpoints[id] = &endpointNode{kind: kind, neighbors: make(map[packet.NodeId]bool)}
	}
	for _, edge := range c.Topology.Edges() {
		n.connect(edge[0], edge[1])
	}
	for id, inbox := range n.inboxes {
		n.controller.Register(id, inbox)
	}

	for _, d := range c.Topology.Drones {
		id := packet.NodeId(d.Id)
		neighbors := make(map[packet.NodeId]*controller.PacketLink)
		for other := range n.adjacent[id] {
			neighbors[other] = n.inboxes[other]
		}
		var policy drone.DropPolicy
		if c.General.Seed != 0 {
			policy = drone.NewRandomDropPolicy(c.General.Seed + int64(id))
		}
		commands := link.New[controller.Command](0)
		n.drones[id] = &droneNode{
			drone: drone.New(drone.Options{
				Id:              id,
				DropRate:        d.DropRate,
				Commands:        commands,
				Packets:         n.inboxes[id],
				Events:          n.events,
				Neighbors:       neighbors,
				DropPolicy:      policy,
				FloodPacketSent: c.General.FloodPacketSent,
			}),
			commands: commands,
			done:     make(chan struct{}),
		}
	}
	return n, nil
}

// connect records an undirected edge and keeps endpoint neighbor sets in
// sync. Drones learn about edges through their options or AddSender.
func (n *Network) connect(a, b packet.NodeId) {
	n.adjacent[a][b] = true
	n.adjacent[b][a] = true
	if e, ok := n.endpoints[a]; ok {
		e.neighbors[b] = true
	}
	if e, ok := n.endpoints[b]; ok {
		e.neighbors[a] = true
	}
}

func (n *Network) disconnect(a, b packet.NodeId) {
	delete(n.adjacent[a], b)
	delete(n.adjacent[b], a)
	if e, ok := n.endpoints[a]; ok {
		delete(e.neighbors, b)
	}
	if e, ok := n.endpoints[b]; ok {
		delete(e.neighbors, a)
	}
}

// Controller gives access to the telemetry consumer. Capture and callbacks
// must be installed before Start.
func (n *Network) Controller() *controller.Controller {
	return n.controller
}

// Start runs the controller and every drone on its own goroutine.
func (n *Network) Start() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.started {
		return
	}
	n.started = true

	log.WithFields(log.Fields{
		"event":     "start_network",
		"drones":    len(n.drones),
		"endpoints": len(n.endpoints),
	}).Info()

	go func() {
		n.controller.Run()
		close(n.controllerDone)
	}()
	for _, d := range n.drones {
		n.wg.Add(1)
		go func(d *droneNode) {
			defer n.wg.Done()
			d.drone.Run()
			close(d.done)
		}(d)
	}
}

func (n *Network) Drones() []packet.NodeId {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return sortedIds(n.drones)
}

func (n *Network) Endpoints() []packet.NodeId {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return sortedIds(n.endpoints)
}

func sortedIds[V any](m map[packet.NodeId]V) []packet.NodeId {
	ids := make([]packet.NodeId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Neighbors returns the current neighbors of id in ascending order.
func (n *Network) Neighbors(id packet.NodeId) ([]packet.NodeId, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	adjacent, ok := n.adjacent[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return sortedIds(adjacent), nil
}

func (n *Network) endpoint(id packet.NodeId) (*endpointNode, error) {
	if e, ok := n.endpoints[id]; ok {
		return e, nil
	}
	if _, ok := n.drones[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrNotEndpoint, id)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
}

func (n *Network) droneNode(id packet.NodeId) (*droneNode, error) {
	if d, ok := n.drones[id]; ok {
		return d, nil
	}
	if _, ok := n.endpoints[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrNotDrone, id)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
}

// SendAsClient injects p from endpoint from. The packet goes to the node at
// the current hop of its header, which must be a neighbor of from.
func (n *Network) SendAsClient(from packet.NodeId, p packet.Packet) error {
	to, ok := p.Header.CurrentHop()
	if !ok {
		return fmt.Errorf("send from %d: header %s has no current hop", from, p.Header)
	}
	return n.SendTo(from, to, p)
}

// SendTo injects p from endpoint from directly into the inbox of neighbor
// to, whatever its header says. Flood requests are started this way.
func (n *Network) SendTo(from, to packet.NodeId, p packet.Packet) error {
	n.mutex.Lock()
	e, err := n.endpoint(from)
	if err != nil {
		n.mutex.Unlock()
		return err
	}
	if !e.neighbors[to] {
		n.mutex.Unlock()
		return fmt.Errorf("%w: %d is not connected to %d", ErrNotNeighbor, to, from)
	}
	inbox := n.inboxes[to]
	n.mutex.Unlock()

	if !inbox.Send(p) {
		return fmt.Errorf("send from %d to %d: %w", from, to, ErrLinkClosed)
	}
	log.WithFields(log.Fields{
		"event":   "client_sent",
		"node":    from,
		"next":    to,
		"kind":    p.Kind().String(),
		"session": p.SessionId,
	}).Debug()
	return nil
}

// Flood starts a flood from endpoint from by sending a request, with from
// as the first entry of its path trace, to every neighbor.
func (n *Network) Flood(from packet.NodeId, floodId, session uint64) error {
	n.mutex.Lock()
	e, err := n.endpoint(from)
	if err != nil {
		n.mutex.Unlock()
		return err
	}
	kind := e.kind
	neighbors := sortedIds(e.neighbors)
	n.mutex.Unlock()

	req := packet.FloodRequest{FloodId: floodId, InitiatorId: from}.IncrementPath(from, kind)
	for _, to := range neighbors {
		if err := n.SendTo(from, to, packet.NewFloodRequest(packet.RoutingHeader{}, session, req)); err != nil {
			return err
		}
	}
	return nil
}

// RecvAsClient waits up to timeout for the next packet delivered to
// endpoint id.
func (n *Network) RecvAsClient(id packet.NodeId, timeout time.Duration) (packet.Packet, error) {
	n.mutex.Lock()
	_, err := n.endpoint(id)
	inbox := n.inboxes[id]
	n.mutex.Unlock()
	if err != nil {
		return packet.Packet{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	if p, ok := inbox.NextBefore(timer.C); ok {
		return p, nil
	}
	if inbox.Closed() {
		return packet.Packet{}, fmt.Errorf("receive at %d: %w", id, ErrLinkClosed)
	}
	return packet.Packet{}, fmt.Errorf("receive at %d: %w after %v", id, ErrTimeout, timeout)
}

// command sends cmd to a live drone. Commands to crashed drones are
// rejected instead of piling up in a link nobody reads.
func (n *Network) command(id packet.NodeId, cmd controller.Command) error {
	d, err := n.droneNode(id)
	if err != nil {
		return err
	}
	if d.crashed {
		return fmt.Errorf("command to %d: %w", id, ErrLinkClosed)
	}
	if !d.commands.Send(cmd) {
		return fmt.Errorf("command to %d: %w", id, ErrLinkClosed)
	}
	return nil
}

func (n *Network) SetDropRate(id packet.NodeId, rate float64) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.command(id, controller.SetPacketDropRate{Rate: rate})
}

// AddConnections links each pair in both directions. Drones are told
// through AddSender; endpoints just start accepting the new neighbor.
func (n *Network) AddConnections(edges []config.Edge) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	for _, edge := range edges {
		a, b := edge[0], edge[1]
		if _, ok := n.inboxes[a]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownNode, a)
		}
		if _, ok := n.inboxes[b]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownNode, b)
		}
		if a == b {
			return fmt.Errorf("connect %d to itself: %w", a, ErrNotNeighbor)
		}
		for _, dir := range [][2]packet.NodeId{{a, b}, {b, a}} {
			if _, ok := n.drones[dir[0]]; ok {
				if err := n.command(dir[0], controller.AddSender{Id: dir[1], Sender: n.inboxes[dir[1]]}); err != nil {
					return err
				}
			}
		}
		n.connect(a, b)
	}
	return nil
}

// Disconnect removes the edge between a and b on both sides.
func (n *Network) Disconnect(a, b packet.NodeId) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if !n.adjacent[a][b] {
		return fmt.Errorf("%w: %d is not connected to %d", ErrNotNeighbor, b, a)
	}
	for _, dir := range [][2]packet.NodeId{{a, b}, {b, a}} {
		if d, ok := n.drones[dir[0]]; ok && !d.crashed {
			if err := n.command(dir[0], controller.RemoveSender{Id: dir[1]}); err != nil {
				return err
			}
		}
	}
	n.disconnect(a, b)
	return nil
}

// Crash tells drone id to crash, removes it from the neighbor table of
// every node connected to it and then closes its inbox so that its drain
// can finish. It does not wait for the drone to terminate.
func (n *Network) Crash(id packet.NodeId) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	d, err := n.droneNode(id)
	if err != nil {
		return err
	}
	if err := n.command(id, controller.Crash{}); err != nil {
		return err
	}
	d.crashed = true

	for _, other := range sortedIds(n.adjacent[id]) {
		if o, ok := n.drones[other]; ok && !o.crashed {
			if err := n.command(other, controller.RemoveSender{Id: id}); err != nil {
				return err
			}
		}
		n.disconnect(id, other)
	}
	n.inboxes[id].Close()

	log.WithFields(log.Fields{
		"event": "drone_crash_requested",
		"node":  id,
	}).Info()
	return nil
}

// WaitTerminated blocks until drone id has finished draining.
func (n *Network) WaitTerminated(id packet.NodeId, timeout time.Duration) error {
	n.mutex.Lock()
	d, err := n.droneNode(id)
	n.mutex.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-d.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("wait for %d: %w after %v", id, ErrTimeout, timeout)
	}
}

func (n *Network) Phase(id packet.NodeId) (drone.Phase, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	d, err := n.droneNode(id)
	if err != nil {
		return 0, err
	}
	return d.drone.Phase(), nil
}

func (n *Network) Stats() map[packet.NodeId]controller.NodeStats {
	return n.controller.Stats()
}

// Stop crashes every drone still running, disconnects every inbox and
// waits for the drones and then the controller to finish.
func (n *Network) Stop() {
	n.mutex.Lock()
	if n.stopped {
		n.mutex.Unlock()
		return
	}
	n.stopped = true
	started := n.started
	for _, d := range n.drones {
		if !d.crashed {
			d.commands.Send(controller.Crash{})
			d.crashed = true
		}
		d.commands.Close()
	}
	for _, inbox := range n.inboxes {
		inbox.Close()
	}
	n.mutex.Unlock()

	if started {
		n.wg.Wait()
	}
	n.events.Close()
	if started {
		<-n.controllerDone
	}
	log.WithFields(log.Fields{
		"event": "stop_network",
	}).Info()
}

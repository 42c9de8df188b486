// Package drone implements a forwarding-only node of a source routed
// network. A drone is a single goroutine that owns all of its state: it
// reads control commands and data packets from two links, forwards packets
// along their hop list, answers failures with NACKs and takes part in flood
// based topology discovery.
package drone

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aditiharini/drone-simulator/controller"
	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

type Phase int32

const (
	Active Phase = iota
	Draining
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

type Options struct {
	Id       packet.NodeId
	DropRate float64
	Commands *controller.CommandLink
	Packets  *controller.PacketLink
	Events   *controller.EventLink
	// Neighbors is copied; later changes go through AddSender and
	// RemoveSender commands.
	Neighbors map[packet.NodeId]*controller.PacketLink
	// DropPolicy defaults to a time seeded RandomDropPolicy.
	DropPolicy DropPolicy
	// FloodPacketSent makes every broadcast copy of a flood request emit a
	// PacketSent event.
	FloodPacketSent bool
}

type floodKey struct {
	floodId   uint64
	initiator packet.NodeId
}

type Drone struct {
	id              packet.NodeId
	dropRate        float64
	commands        *controller.CommandLink
	packets         *controller.PacketLink
	events          *controller.EventLink
	neighbors       map[packet.NodeId]*controller.PacketLink
	floods          map[floodKey]struct{}
	policy          DropPolicy
	floodPacketSent bool
	phase           atomic.Int32
	logger          *log.Entry
}

func New(opts Options) *Drone {
	neighbors := make(map[packet.NodeId]*controller.PacketLink, len(opts.Neighbors))
	for id, l := range opts.Neighbors {
		neighbors[id] = l
	}
	policy := opts.DropPolicy
	if policy == nil {
		policy = NewRandomDropPolicy(time.Now().UnixNano())
	}
	return &Drone{
		id:              opts.Id,
		dropRate:        opts.DropRate,
		commands:        opts.Commands,
		packets:         opts.Packets,
		events:          opts.Events,
		neighbors:       neighbors,
		floods:          make(map[floodKey]struct{}),
		policy:          policy,
		floodPacketSent: opts.FloodPacketSent,
		logger:          log.WithField("node", opts.Id),
	}
}

func (d *Drone) Id() packet.NodeId {
	return d.id
}

// Phase can be read from any goroutine.
func (d *Drone) Phase() Phase {
	return Phase(d.phase.Load())
}

func (d *Drone) setPhase(p Phase) {
	d.phase.Store(int32(p))
	d.logger.WithFields(log.Fields{
		"event": "drone_" + p.String(),
	}).Debug()
}

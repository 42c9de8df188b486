package controller

import (
	"sync"

	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

type NodeStats struct {
	Sent      int
	Dropped   int
	Shortcuts int
}

// Controller consumes drone telemetry. It keeps per node counters, writes
// events to an optional capture and delivers shortcut packets to their
// destination.
type Controller struct {
	events  *EventLink
	capture *Capture
	onEvent func(Event)

	mutex   sync.Mutex
	inboxes map[packet.NodeId]*PacketLink
	stats   map[packet.NodeId]NodeStats
}

func New(events *EventLink) *Controller {
	return &Controller{
		events:  events,
		inboxes: make(map[packet.NodeId]*PacketLink),
		stats:   make(map[packet.NodeId]NodeStats),
	}
}

// Register makes inbox the delivery target for shortcuts addressed to id.
func (c *Controller) Register(id packet.NodeId, inbox *PacketLink) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.inboxes[id] = inbox
}

func (c *Controller) SetCapture(capture *Capture) {
	c.capture = capture
}

// SetOnEvent installs a callback run for every event after it is recorded.
// It must be set before Run.
func (c *Controller) SetOnEvent(callback func(Event)) {
	c.onEvent = callback
}

// Run processes events until the telemetry link is closed and drained.
func (c *Controller) Run() {
	for {
		e, ok := c.events.Next()
		if !ok {
			return
		}
		c.handle(e)
	}
}

func (c *Controller) handle(e Event) {
	log.WithFields(log.Fields{
		"event":  e.Type.String(),
		"node":   e.Node,
		"kind":   e.Packet.Kind().String(),
		"header": e.Packet.Header.String(),
	}).Debug()

	c.mutex.Lock()
	stats := c.stats[e.Node]
	switch e.Type {
	case PacketSent:
		stats.Sent++
	case PacketDropped:
		stats.Dropped++
	case ControllerShortcut:
		stats.Shortcuts++
	}
	c.stats[e.Node] = stats
	c.mutex.Unlock()

	if c.capture != nil {
		if err := c.capture.Write(e); err != nil {
			log.WithFields(log.Fields{
				"event": "capture_failed",
				"node":  e.Node,
			}).WithError(err).Warn()
		}
	}

	if e.Type == ControllerShortcut {
		c.deliverShortcut(e)
	}

	if c.onEvent != nil {
		c.onEvent(e)
	}
}

// deliverShortcut hands the packet straight to its final hop.
func (c *Controller) deliverShortcut(e Event) {
	dst, ok := e.Packet.Header.Destination()
	if !ok {
		return
	}
	c.mutex.Lock()
	inbox, ok := c.inboxes[dst]
	c.mutex.Unlock()
	if !ok {
		log.WithFields(log.Fields{
			"event": "shortcut_undeliverable",
			"node":  e.Node,
			"dst":   dst,
		}).Warn()
		return
	}
	delivered := inbox.Send(e.Packet)
	log.WithFields(log.Fields{
		"event":     "shortcut_delivered",
		"node":      e.Node,
		"dst":       dst,
		"delivered": delivered,
	}).Debug()
}

func (c *Controller) Stats() map[packet.NodeId]NodeStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make(map[packet.NodeId]NodeStats, len(c.stats))
	for id, s := range c.stats {
		out[id] = s
	}
	return out
}

package drone

import (
	"github.com/aditiharini/drone-simulator/controller"
	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

// emit reports to the controller without ever blocking. A full or closed
// event link loses the event.
func (d *Drone) emit(t controller.EventType, p packet.Packet) {
	if d.events == nil {
		return
	}
	if !d.events.Send(controller.Event{Type: t, Node: d.id, Packet: p}) {
		d.logger.WithFields(log.Fields{
			"event":     "telemetry_lost",
			"telemetry": t.String(),
		}).Debug()
	}
}

func (d *Drone) notifyDropped(p packet.Packet) {
	d.emit(controller.PacketDropped, p)
}

func (d *Drone) useShortcut(p packet.Packet) {
	d.logger.WithFields(log.Fields{
		"event":   "shortcut_used",
		"kind":    p.Kind().String(),
		"session": p.SessionId,
	}).Debug()
	d.emit(controller.ControllerShortcut, p)
}

// sendToNext sends p to the neighbor at its current hop. Unknown neighbors
// and closed links are ignored.
func (d *Drone) sendToNext(p packet.Packet) {
	next, ok := p.Header.CurrentHop()
	if !ok {
		return
	}
	out := d.neighbors[next]
	if out == nil {
		return
	}
	if !out.Send(p) {
		d.logger.WithFields(log.Fields{
			"event": "neighbor_gone",
			"next":  next,
		}).Debug()
		return
	}
	d.logger.WithFields(log.Fields{
		"event":   "packet_forwarded",
		"kind":    p.Kind().String(),
		"session": p.SessionId,
		"next":    next,
	}).Debug()
	d.emit(controller.PacketSent, p)
}

// floodExcept broadcasts a copy of p to every neighbor except previous.
func (d *Drone) floodExcept(previous packet.NodeId, p packet.Packet) {
	for id, out := range d.neighbors {
		if id == previous || out == nil {
			continue
		}
		c := p.Clone()
		if out.Send(c) && d.floodPacketSent {
			d.emit(controller.PacketSent, c)
		}
	}
}

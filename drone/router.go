package drone

import (
	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

// respondNormal handles fragments, acks, nacks and flood responses.
func (d *Drone) respondNormal(p packet.Packet, crashing bool) {
	if out, ok := d.routeNormal(p, crashing); ok {
		d.sendToNext(out)
	}
}

// routeNormal returns the packet to send next, either p advanced by one hop
// or a NACK travelling back towards the sender. The checks run in a fixed
// order and the first match wins.
func (d *Drone) routeNormal(p packet.Packet, crashing bool) (packet.Packet, bool) {
	p = p.Clone()
	droppable := p.Droppable()
	header := &p.Header

	if current, ok := header.CurrentHop(); !ok || current != d.id {
		if ok && droppable {
			// the NACK has to start from us, not from the intended hop
			header.Hops[header.HopIndex] = d.id
		}
		return d.createNack(p, packet.NackUnexpectedRecipient(d.id), droppable, true)
	}

	if crashing && droppable {
		return d.createNack(p, packet.NackErrorInRouting(d.id), droppable, false)
	}

	// drones are never a destination, but erroring on control packets
	// here would bounce them back and forth
	if header.IsLastHop() {
		return d.createNack(p, packet.NackDestinationIsDrone(), droppable, false)
	}

	next, _ := header.NextHop()
	if _, ok := d.neighbors[next]; !ok {
		return d.createNack(p, packet.NackErrorInRouting(next), droppable, true)
	}

	if droppable && d.policy.Drop(d.dropRate) {
		d.notifyDropped(p)
		return d.createNack(p, packet.NackDropped(), droppable, false)
	}

	header.IncreaseHopIndex()
	return p, true
}

// createNack builds the NACK for a failed droppable packet. Non droppable
// packets get no NACK; when shortcuttable they are handed to the controller
// instead, since their originator is waiting for them.
func (d *Drone) createNack(p packet.Packet, kind packet.NackKind, droppable bool, shortcuttable bool) (packet.Packet, bool) {
	if !droppable {
		if shortcuttable {
			if _, ok := p.Header.NextHop(); ok {
				p.Header.IncreaseHopIndex()
			}
			d.useShortcut(p)
		} else {
			d.logger.WithFields(log.Fields{
				"event":   "packet_discarded",
				"kind":    p.Kind().String(),
				"session": p.SessionId,
				"reason":  kind.String(),
			}).Debug()
		}
		return packet.Packet{}, false
	}

	route, ok := p.Header.SubRoute(p.Header.HopIndex)
	if !ok {
		d.logger.WithFields(log.Fields{
			"event":   "nack_unroutable",
			"session": p.SessionId,
			"header":  p.Header.String(),
		}).Warn()
		return packet.Packet{}, false
	}
	route.Reverse()
	route.HopIndex = 1

	d.logger.WithFields(log.Fields{
		"event":    "nack_created",
		"session":  p.SessionId,
		"fragment": p.FragmentIndex(),
		"reason":   kind.String(),
	}).Debug()
	return packet.NewNack(route, p.SessionId, packet.Nack{
		FragmentIndex: p.FragmentIndex(),
		Reason:        kind,
	}), true
}

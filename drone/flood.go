package drone

import (
	"fmt"

	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

// handleFloodRequest either forwards a flood request to every neighbor but
// the one it came from, or terminates it with a flood response. Termination
// happens when the (flood id, initiator) pair was already seen or when there
// is nobody new to forward to. The seen set is never cleared.
func (d *Drone) handleFloodRequest(p packet.Packet) {
	req := p.Payload.(packet.FloodRequest)
	seen := d.recordFlood(req.FloodId, req.InitiatorId)

	if seen || len(d.neighbors) <= 1 {
		d.terminateFlood(p.SessionId, req, seen)
	} else {
		d.forwardFlood(p.SessionId, req)
	}
}

// recordFlood inserts the pair and reports whether it was already present.
func (d *Drone) recordFlood(floodId uint64, initiator packet.NodeId) bool {
	key := floodKey{floodId: floodId, initiator: initiator}
	_, seen := d.floods[key]
	d.floods[key] = struct{}{}
	return seen
}

func (d *Drone) terminateFlood(session uint64, req packet.FloodRequest, seen bool) {
	req = req.IncrementPath(d.id, packet.Drone)

	hops := make([]packet.NodeId, 0, len(req.PathTrace)+1)
	for i := len(req.PathTrace) - 1; i >= 0; i-- {
		hops = append(hops, req.PathTrace[i].Id)
	}
	// the initiator may have started with an empty trace
	if hops[len(hops)-1] != req.InitiatorId {
		hops = append(hops, req.InitiatorId)
	}

	d.logger.WithFields(log.Fields{
		"event":     "flood_terminated",
		"flood":     req.FloodId,
		"initiator": req.InitiatorId,
		"seen":      seen,
		"route":     fmt.Sprint(hops),
	}).Debug()
	d.sendToNext(packet.NewFloodResponse(packet.WithSecondHop(hops), session, req.Response()))
}

func (d *Drone) forwardFlood(session uint64, req packet.FloodRequest) {
	previous := req.InitiatorId
	if n := len(req.PathTrace); n > 0 {
		previous = req.PathTrace[n-1].Id
	}
	req = req.IncrementPath(d.id, packet.Drone)

	d.logger.WithFields(log.Fields{
		"event":     "flood_forwarded",
		"flood":     req.FloodId,
		"initiator": req.InitiatorId,
		"previous":  previous,
	}).Debug()
	d.floodExcept(previous, packet.NewFloodRequest(packet.RoutingHeader{}, session, req))
}

package drone

import (
	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

// Run processes commands and packets until the drone has crashed and its
// packet link has been closed and drained. Commands always win over packets
// when both are ready.
//
// A closed link stops being waited on. If both links close without a Crash
// there is nothing left to process and Run returns.
func (d *Drone) Run() {
	d.logger.WithField("event", "drone_started").Debug()

	commandsOpen, packetsOpen := true, true
	crashed := false
	for !crashed && (commandsOpen || packetsOpen) {
		if commandsOpen {
			if cmd, ok := d.commands.TryRecv(); ok {
				crashed = d.handleCommand(cmd)
				continue
			}
		}
		if packetsOpen {
			if p, ok := d.packets.TryRecv(); ok {
				d.handlePacket(p, false)
				continue
			}
		}

		var commandsReady, commandsDone <-chan struct{}
		if commandsOpen {
			commandsReady, commandsDone = d.commands.Ready(), d.commands.Done()
		}
		var packetsReady, packetsDone <-chan struct{}
		if packetsOpen {
			packetsReady, packetsDone = d.packets.Ready(), d.packets.Done()
		}

		// Both queues are empty here. Whatever wakes us up, the next pass
		// looks at commands first.
		select {
		case <-commandsReady:
		case <-packetsReady:
		case <-commandsDone:
			commandsOpen = d.commands.Len() > 0
		case <-packetsDone:
			packetsOpen = d.packets.Len() > 0
		}
	}

	if crashed {
		d.setPhase(Draining)
		for {
			p, ok := d.packets.Next()
			if !ok {
				break
			}
			d.handlePacket(p, true)
		}
	}
	d.setPhase(Terminated)
}

// handlePacket dispatches on the payload kind. Flood requests are ignored
// while crashing so that a half shut down drone stays out of discovery.
func (d *Drone) handlePacket(p packet.Packet, crashing bool) {
	switch p.Payload.(type) {
	case packet.FloodRequest:
		if crashing {
			d.logger.WithFields(log.Fields{
				"event":   "flood_ignored",
				"session": p.SessionId,
			}).Debug()
			return
		}
		d.handleFloodRequest(p)
	default:
		d.respondNormal(p, crashing)
	}
}

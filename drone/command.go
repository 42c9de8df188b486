package drone

import (
	"github.com/aditiharini/drone-simulator/controller"
	log "github.com/sirupsen/logrus"
)

// handleCommand applies cmd and reports whether the drone must crash.
func (d *Drone) handleCommand(cmd controller.Command) bool {
	switch c := cmd.(type) {
	case controller.Crash:
		d.logger.WithField("event", "crash_received").Info()
		return true
	case controller.SetPacketDropRate:
		d.logger.WithFields(log.Fields{
			"event": "drop_rate_set",
			"old":   d.dropRate,
			"new":   c.Rate,
		}).Debug()
		d.dropRate = c.Rate
	case controller.RemoveSender:
		delete(d.neighbors, c.Id)
		d.logger.WithFields(log.Fields{
			"event":    "sender_removed",
			"neighbor": c.Id,
		}).Debug()
	case controller.AddSender:
		d.neighbors[c.Id] = c.Sender
		d.logger.WithFields(log.Fields{
			"event":    "sender_added",
			"neighbor": c.Id,
		}).Debug()
	}
	return false
}

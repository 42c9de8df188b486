package scenario

import (
	"fmt"
	"time"

	config "github.com/aditiharini/drone-simulator/config/simulator"
	"github.com/aditiharini/drone-simulator/network"
	"github.com/aditiharini/drone-simulator/packet"
	log "github.com/sirupsen/logrus"
)

// Result keeps every packet collected by expect steps, per endpoint.
type Result struct {
	Received map[packet.NodeId][]packet.Packet
}

// Run executes steps in order on a started network and stops at the first
// step that fails.
func Run(n *network.Network, steps []Step) (Result, error) {
	result := Result{Received: make(map[packet.NodeId][]packet.Packet)}
	for _, s := range steps {
		log.WithFields(log.Fields{
			"event": "scenario_step",
			"line":  s.Line,
			"op":    string(s.Op),
		}).Debug()
		if err := runStep(n, s, &result); err != nil {
			return result, fmt.Errorf("line %d (op=%s): %w", s.Line, s.Op, err)
		}
	}
	return result, nil
}

func runStep(n *network.Network, s Step, result *Result) error {
	switch s.Op {
	case OpSend:
		return n.SendAsClient(s.From, s.Packet())
	case OpFlood:
		return n.Flood(s.From, s.FloodId, s.Session)
	case OpPdr:
		return n.SetDropRate(s.Node, s.Rate)
	case OpConnect:
		return n.AddConnections([]config.Edge{s.Edge()})
	case OpDisconnect:
		return n.Disconnect(s.A, s.B)
	case OpCrash:
		return n.Crash(s.Node)
	case OpWait:
		time.Sleep(s.For)
		return nil
	case OpExpect:
		return expect(n, s, result)
	default:
		return fmt.Errorf("%w: unknown op %q", ErrSyntax, s.Op)
	}
}

func expect(n *network.Network, s Step, result *Result) error {
	for i := 0; i < s.Count; i++ {
		p, err := n.RecvAsClient(s.Node, s.Timeout)
		if err != nil {
			return fmt.Errorf("%w: packet %d of %d at %d: %v", ErrExpectation, i+1, s.Count, s.Node, err)
		}
		result.Received[s.Node] = append(result.Received[s.Node], p)
		log.WithFields(log.Fields{
			"event":  "scenario_received",
			"node":   s.Node,
			"packet": p.String(),
		}).Info()
		if !s.Matches(p) {
			return fmt.Errorf("%w: got %s at %d, want kind %q nack %q", ErrExpectation, p, s.Node, s.Kind, s.Nack)
		}
	}
	return nil
}

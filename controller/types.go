package controller

import (
	"fmt"

	"github.com/aditiharini/drone-simulator/link"
	"github.com/aditiharini/drone-simulator/packet"
)

type PacketLink = link.Link[packet.Packet]

// Command is sent by the controller to a drone. Drones never reject one.
type Command interface {
	isCommand()
}

// AddSender inserts or overwrites the outbound link to a neighbor.
type AddSender struct {
	Id     packet.NodeId
	Sender *PacketLink
}

type RemoveSender struct {
	Id packet.NodeId
}

// SetPacketDropRate overwrites the drop rate. The value is not validated.
type SetPacketDropRate struct {
	Rate float64
}

type Crash struct{}

func (AddSender) isCommand()         {}
func (RemoveSender) isCommand()      {}
func (SetPacketDropRate) isCommand() {}
func (Crash) isCommand()             {}

type EventType uint8

const (
	PacketSent EventType = iota + 1
	PacketDropped
	ControllerShortcut
)

func (t EventType) String() string {
	switch t {
	case PacketSent:
		return "packet_sent"
	case PacketDropped:
		return "packet_dropped"
	case ControllerShortcut:
		return "controller_shortcut"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// Event is telemetry reported by a drone. Node is the reporting drone.
type Event struct {
	Type   EventType
	Node   packet.NodeId
	Packet packet.Packet
}

type EventLink = link.Link[Event]
type CommandLink = link.Link[Command]

package drone

import (
	"testing"
	"time"

	"github.com/aditiharini/drone-simulator/controller"
	"github.com/aditiharini/drone-simulator/link"
	"github.com/aditiharini/drone-simulator/packet"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

const testTimeout = time.Second

type testDrone struct {
	*Drone
	commands *controller.CommandLink
	packets  *controller.PacketLink
	events   *controller.EventLink
	outs     map[packet.NodeId]*controller.PacketLink
}

func newTestDrone(id packet.NodeId, rate float64, policy DropPolicy, neighbors ...packet.NodeId) *testDrone {
	td := &testDrone{
		commands: link.New[controller.Command](0),
		packets:  link.New[packet.Packet](0),
		events:   link.New[controller.Event](64),
		outs:     make(map[packet.NodeId]*controller.PacketLink),
	}
	for _, n := range neighbors {
		td.outs[n] = link.New[packet.Packet](0)
	}
	td.Drone = New(Options{
		Id:         id,
		DropRate:   rate,
		Commands:   td.commands,
		Packets:    td.packets,
		Events:     td.events,
		Neighbors:  td.outs,
		DropPolicy: policy,
	})
	return td
}

func (td *testDrone) start() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		td.Run()
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("drone did not terminate")
	}
}

func recvPacket(t *testing.T, l *controller.PacketLink) packet.Packet {
	t.Helper()
	p, ok := l.NextBefore(time.After(testTimeout))
	if !ok {
		t.Fatal("no packet received")
	}
	return p
}

func recvEvent(t *testing.T, l *controller.EventLink) controller.Event {
	t.Helper()
	e, ok := l.NextBefore(time.After(testTimeout))
	if !ok {
		t.Fatal("no event received")
	}
	return e
}

func requireEmpty(t *testing.T, l interface{ Len() int }) {
	t.Helper()
	require.Zero(t, l.Len())
}

func assertPacket(t *testing.T, want, got packet.Packet) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("packet mismatch (-want +got):\n%s", diff)
	}
}

func fragment(hopIndex int, hops ...packet.NodeId) packet.Packet {
	return packet.NewFragment(packet.RoutingHeader{HopIndex: hopIndex, Hops: hops}, 42, packet.Fragment{
		Index: 3,
		Total: 10,
		Data:  []byte("payload"),
	})
}

func ack(hopIndex int, hops ...packet.NodeId) packet.Packet {
	return packet.NewAck(packet.RoutingHeader{HopIndex: hopIndex, Hops: hops}, 42, packet.Ack{FragmentIndex: 3})
}

func nack(kind packet.NackKind, hops ...packet.NodeId) packet.Packet {
	return packet.NewNack(packet.WithSecondHop(hops), 42, packet.Nack{FragmentIndex: 3, Reason: kind})
}

package scenario

import (
	"strings"
	"testing"
	"time"

	config "github.com/aditiharini/drone-simulator/config/simulator"
	"github.com/aditiharini/drone-simulator/network"
	"github.com/aditiharini/drone-simulator/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const script = `
# drop everything at 2, then look at what comes back
op=pdr node=2 rate=1
op=send route=0,1,2,3 session=9 index=2 total=4 data="hello world"
op=expect node=0 nack=Dropped timeout=500ms

op=pdr node=2 rate=0
op=send route=0,1,2,3 session=9 index=3 total=4
op=expect node=3 kind=fragment
`

func TestParse(t *testing.T) {
	steps, err := Parse(strings.NewReader(script))
	require.NoError(t, err)
	require.Len(t, steps, 6)

	assert.Equal(t, Step{Line: 3, Op: OpPdr, Node: 2, Rate: 1}, steps[0])

	send := steps[1]
	assert.Equal(t, OpSend, send.Op)
	assert.Equal(t, packet.NodeId(0), send.From)
	assert.Equal(t, []packet.NodeId{0, 1, 2, 3}, send.Route)
	assert.Equal(t, uint64(9), send.Session)
	assert.Equal(t, []byte("hello world"), send.Data)

	p := send.Packet()
	assert.Equal(t, 1, p.Header.HopIndex)
	assert.Equal(t, packet.Fragment{Index: 2, Total: 4, Data: []byte("hello world")}, p.Payload)

	expect := steps[2]
	assert.Equal(t, 500*time.Millisecond, expect.Timeout)
	assert.Equal(t, 1, expect.Count)
	assert.Equal(t, "nack", expect.Kind)

	assert.Equal(t, DefaultTimeout, steps[5].Timeout)
	assert.Equal(t, 9, steps[5].Line)
}

func TestParseLineDefaults(t *testing.T) {
	s, err := ParseLine([]byte("op=send route=4,5"))
	require.NoError(t, err)
	assert.Equal(t, packet.NodeId(4), s.From)
	assert.Equal(t, uint64(1), s.Total)

	s, err = ParseLine([]byte("op=connect a=1 b=2"))
	require.NoError(t, err)
	assert.Equal(t, config.Edge{1, 2}, s.Edge())

	s, err = ParseLine([]byte("op=wait for=20ms"))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, s.For)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"missing op":     "node=1",
		"unknown op":     "op=teleport node=1",
		"unknown key":    "op=crash node=1 color=red",
		"duplicate key":  "op=crash node=1 node=2",
		"bad id":         "op=crash node=300",
		"missing key":    "op=pdr node=1",
		"bad rate":       "op=pdr node=1 rate=2",
		"short route":    "op=send route=1",
		"wrong origin":   "op=send from=2 route=1,2",
		"bad index":      "op=send route=1,2 index=1 total=1",
		"bad duration":   "op=wait for=soon",
		"negative count": "op=expect node=1 count=-1",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLine([]byte(line))
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestParseReportsLine(t *testing.T) {
	_, err := Parse(strings.NewReader("op=crash node=1\n\nop=fly\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestMatches(t *testing.T) {
	nack := packet.NewNack(packet.WithSecondHop([]packet.NodeId{1, 0}), 1, packet.Nack{Reason: packet.NackErrorInRouting(2)})

	assert.True(t, Step{}.Matches(nack))
	assert.True(t, Step{Kind: "nack"}.Matches(nack))
	assert.True(t, Step{Nack: "ErrorInRouting(2)"}.Matches(nack))
	assert.False(t, Step{Nack: "Dropped"}.Matches(nack))
	assert.False(t, Step{Kind: "ack"}.Matches(nack))
}

func lineNetwork(t *testing.T) *network.Network {
	t.Helper()
	c, err := config.Parse([]byte(`
general: {queueLength: 64, seed: 3}
topology:
  drones:
    - {id: 1, neighbors: [0, 2]}
    - {id: 2, neighbors: [3]}
  endpoints:
    - {id: 0}
    - {id: 3, kind: server}
`))
	require.NoError(t, err)
	n, err := network.New(c)
	require.NoError(t, err)
	n.Start()
	return n
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := lineNetwork(t)
	defer n.Stop()

	steps, err := Parse(strings.NewReader(script))
	require.NoError(t, err)

	result, err := Run(n, steps)
	require.NoError(t, err)
	require.Len(t, result.Received[0], 1)
	require.Len(t, result.Received[3], 1)
	assert.Equal(t, []byte(nil), result.Received[3][0].Payload.(packet.Fragment).Data)
}

func TestRunCrashAndFlood(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := lineNetwork(t)
	defer n.Stop()

	steps, err := Parse(strings.NewReader(`
op=flood from=0 flood=1 session=5
op=expect node=3 kind=flood_request
op=crash node=2
op=wait for=10ms
op=send route=0,1,2,3
op=expect node=0 nack=ErrorInRouting(2)
`))
	require.NoError(t, err)

	_, err = Run(n, steps)
	require.NoError(t, err)
}

func TestRunFailedExpectation(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := lineNetwork(t)
	defer n.Stop()

	steps, err := Parse(strings.NewReader(`
op=send route=0,1,2,3
op=expect node=3 kind=ack
`))
	require.NoError(t, err)

	_, err = Run(n, steps)
	assert.ErrorIs(t, err, ErrExpectation)
	assert.Contains(t, err.Error(), "line 3")

	_, err = Run(n, []Step{{Line: 1, Op: OpExpect, Node: 0, Count: 1, Timeout: 10 * time.Millisecond}})
	assert.ErrorIs(t, err, ErrExpectation)
}

func TestRunHarnessError(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := lineNetwork(t)
	defer n.Stop()

	_, err := Run(n, []Step{{Line: 1, Op: OpPdr, Node: 0, Rate: 1}})
	assert.ErrorIs(t, err, network.ErrNotDrone)
}

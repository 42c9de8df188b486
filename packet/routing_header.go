package packet

import "fmt"

// RoutingHeader is the explicit hop list chosen by the sender. HopIndex
// points at the hop currently holding the packet.
type RoutingHeader struct {
	HopIndex int
	Hops     []NodeId
}

// WithFirstHop builds a header positioned at the first hop, which is the
// sender itself.
func WithFirstHop(hops []NodeId) RoutingHeader {
	return RoutingHeader{HopIndex: 0, Hops: hops}
}

// WithSecondHop builds a header positioned at the first hop after the sender.
func WithSecondHop(hops []NodeId) RoutingHeader {
	return RoutingHeader{HopIndex: 1, Hops: hops}
}

func (h RoutingHeader) CurrentHop() (NodeId, bool) {
	if h.HopIndex < 0 || h.HopIndex >= len(h.Hops) {
		return 0, false
	}
	return h.Hops[h.HopIndex], true
}

func (h RoutingHeader) NextHop() (NodeId, bool) {
	if h.HopIndex < 0 || h.HopIndex+1 >= len(h.Hops) {
		return 0, false
	}
	return h.Hops[h.HopIndex+1], true
}

func (h RoutingHeader) PreviousHop() (NodeId, bool) {
	if h.HopIndex < 1 || h.HopIndex > len(h.Hops) {
		return 0, false
	}
	return h.Hops[h.HopIndex-1], true
}

func (h RoutingHeader) Destination() (NodeId, bool) {
	if len(h.Hops) == 0 {
		return 0, false
	}
	return h.Hops[len(h.Hops)-1], true
}

func (h RoutingHeader) IsLastHop() bool {
	return h.HopIndex == len(h.Hops)-1
}

func (h *RoutingHeader) IncreaseHopIndex() {
	h.HopIndex++
}

// SubRoute returns a copy of the hops up to and including index end, with
// the hop index reset to zero. It reports false when end is out of range.
func (h RoutingHeader) SubRoute(end int) (RoutingHeader, bool) {
	if end < 0 || end >= len(h.Hops) {
		return RoutingHeader{}, false
	}
	hops := make([]NodeId, end+1)
	copy(hops, h.Hops[:end+1])
	return RoutingHeader{Hops: hops}, true
}

// Reverse reverses the hop list in place. The hop index is left untouched.
func (h *RoutingHeader) Reverse() {
	for i, j := 0, len(h.Hops)-1; i < j; i, j = i+1, j-1 {
		h.Hops[i], h.Hops[j] = h.Hops[j], h.Hops[i]
	}
}

func (h RoutingHeader) Clone() RoutingHeader {
	h.Hops = append([]NodeId(nil), h.Hops...)
	return h
}

func (h RoutingHeader) String() string {
	return fmt.Sprintf("[hop %d of %v]", h.HopIndex, h.Hops)
}

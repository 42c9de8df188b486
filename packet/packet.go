package packet

import (
	"fmt"
	"strings"
)

type NodeId = uint8

type NodeKind uint8

const (
	Client NodeKind = iota
	Drone
	Server
)

func (k NodeKind) String() string {
	switch k {
	case Client:
		return "client"
	case Drone:
		return "drone"
	case Server:
		return "server"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NoFragmentIndex is carried by NACKs that answer a packet without fragment
// identity.
const NoFragmentIndex = ^uint64(0)

type Packet struct {
	Header    RoutingHeader
	SessionId uint64
	Payload   Payload
}

type PayloadKind uint8

const (
	KindFragment PayloadKind = iota + 1
	KindAck
	KindNack
	KindFloodRequest
	KindFloodResponse
)

func (k PayloadKind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	case KindFloodRequest:
		return "flood_request"
	case KindFloodResponse:
		return "flood_response"
	default:
		return fmt.Sprintf("payload(%d)", uint8(k))
	}
}

// Payload is implemented by Fragment, Ack, Nack, FloodRequest and
// FloodResponse. Switch on the concrete type to handle each kind.
type Payload interface {
	Kind() PayloadKind
	clone() Payload
}

type Fragment struct {
	Index uint64
	Total uint64
	Data  []byte
}

type Ack struct {
	FragmentIndex uint64
}

type Nack struct {
	FragmentIndex uint64
	Reason        NackKind
}

type TraceEntry struct {
	Id   NodeId
	Kind NodeKind
}

type FloodRequest struct {
	FloodId     uint64
	InitiatorId NodeId
	PathTrace   []TraceEntry
}

type FloodResponse struct {
	FloodId   uint64
	PathTrace []TraceEntry
}

func (Fragment) Kind() PayloadKind      { return KindFragment }
func (Ack) Kind() PayloadKind           { return KindAck }
func (Nack) Kind() PayloadKind          { return KindNack }
func (FloodRequest) Kind() PayloadKind  { return KindFloodRequest }
func (FloodResponse) Kind() PayloadKind { return KindFloodResponse }

func (f Fragment) clone() Payload {
	f.Data = append([]byte(nil), f.Data...)
	return f
}

func (a Ack) clone() Payload  { return a }
func (n Nack) clone() Payload { return n }

func (r FloodRequest) clone() Payload {
	r.PathTrace = append([]TraceEntry(nil), r.PathTrace...)
	return r
}

func (r FloodResponse) clone() Payload {
	r.PathTrace = append([]TraceEntry(nil), r.PathTrace...)
	return r
}

// IncrementPath returns a copy of the request with (id, kind) appended to
// its path trace. The receiver's trace is never aliased.
func (r FloodRequest) IncrementPath(id NodeId, kind NodeKind) FloodRequest {
	trace := make([]TraceEntry, len(r.PathTrace), len(r.PathTrace)+1)
	copy(trace, r.PathTrace)
	r.PathTrace = append(trace, TraceEntry{Id: id, Kind: kind})
	return r
}

func (r FloodRequest) Response() FloodResponse {
	return FloodResponse{
		FloodId:   r.FloodId,
		PathTrace: append([]TraceEntry(nil), r.PathTrace...),
	}
}

type NackType uint8

const (
	Dropped NackType = iota
	DestinationIsDrone
	ErrorInRouting
	UnexpectedRecipient
)

// NackKind explains a forwarding failure. Node is only meaningful for
// ErrorInRouting and UnexpectedRecipient.
type NackKind struct {
	Type NackType
	Node NodeId
}

func NackDropped() NackKind {
	return NackKind{Type: Dropped}
}

func NackDestinationIsDrone() NackKind {
	return NackKind{Type: DestinationIsDrone}
}

func NackErrorInRouting(n NodeId) NackKind {
	return NackKind{Type: ErrorInRouting, Node: n}
}

func NackUnexpectedRecipient(n NodeId) NackKind {
	return NackKind{Type: UnexpectedRecipient, Node: n}
}

func (k NackKind) String() string {
	switch k.Type {
	case Dropped:
		return "Dropped"
	case DestinationIsDrone:
		return "DestinationIsDrone"
	case ErrorInRouting:
		return fmt.Sprintf("ErrorInRouting(%d)", k.Node)
	case UnexpectedRecipient:
		return fmt.Sprintf("UnexpectedRecipient(%d)", k.Node)
	default:
		return fmt.Sprintf("NackType(%d)", uint8(k.Type))
	}
}

func NewFragment(header RoutingHeader, session uint64, f Fragment) Packet {
	return Packet{Header: header, SessionId: session, Payload: f}
}

func NewAck(header RoutingHeader, session uint64, a Ack) Packet {
	return Packet{Header: header, SessionId: session, Payload: a}
}

func NewNack(header RoutingHeader, session uint64, n Nack) Packet {
	return Packet{Header: header, SessionId: session, Payload: n}
}

func NewFloodRequest(header RoutingHeader, session uint64, r FloodRequest) Packet {
	return Packet{Header: header, SessionId: session, Payload: r}
}

func NewFloodResponse(header RoutingHeader, session uint64, r FloodResponse) Packet {
	return Packet{Header: header, SessionId: session, Payload: r}
}

// Droppable reports whether the drop rate applies. Only fragments can be
// dropped; everything else is control plane traffic.
func (p Packet) Droppable() bool {
	_, ok := p.Payload.(Fragment)
	return ok
}

func (p Packet) FragmentIndex() uint64 {
	if f, ok := p.Payload.(Fragment); ok {
		return f.Index
	}
	return NoFragmentIndex
}

func (p Packet) Kind() PayloadKind {
	if p.Payload == nil {
		return 0
	}
	return p.Payload.Kind()
}

// Clone deep copies the packet so that the copy can be handed to another
// node without sharing slices.
func (p Packet) Clone() Packet {
	p.Header = p.Header.Clone()
	if p.Payload != nil {
		p.Payload = p.Payload.clone()
	}
	return p
}

func (p Packet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{session: %d, header: %s", p.Kind(), p.SessionId, p.Header)
	switch v := p.Payload.(type) {
	case Fragment:
		fmt.Fprintf(&b, ", index: %d/%d, len: %d", v.Index, v.Total, len(v.Data))
	case Ack:
		fmt.Fprintf(&b, ", index: %d", v.FragmentIndex)
	case Nack:
		fmt.Fprintf(&b, ", index: %d, kind: %s", v.FragmentIndex, v.Reason)
	case FloodRequest:
		fmt.Fprintf(&b, ", flood: %d, initiator: %d, trace: %v", v.FloodId, v.InitiatorId, v.PathTrace)
	case FloodResponse:
		fmt.Fprintf(&b, ", flood: %d, trace: %v", v.FloodId, v.PathTrace)
	}
	b.WriteString("}")
	return b.String()
}

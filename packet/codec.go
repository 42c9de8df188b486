package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	ErrTruncated      = errors.New("packet truncated")
	ErrUnknownPayload = errors.New("unknown payload kind")
)

// LayerTypeDrone identifies the simulator's own packet format inside
// gopacket. Captures written by the controller use it as their only layer.
var LayerTypeDrone = gopacket.RegisterLayerType(4100, gopacket.LayerTypeMetadata{
	Name:    "Drone",
	Decoder: gopacket.DecodeFunc(decodeDrone),
})

// Layer wraps a Packet so that it can be serialized and decoded with
// gopacket.
//
// Wire layout, big endian:
//
//	kind(1) session(8) hopIndex(2) hopCount(2) hops(hopCount) payload
type Layer struct {
	layers.BaseLayer
	Packet Packet
}

func (l *Layer) LayerType() gopacket.LayerType {
	return LayerTypeDrone
}

func (l *Layer) CanDecode() gopacket.LayerClass {
	return LayerTypeDrone
}

func (l *Layer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (l *Layer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	p := l.Packet
	if p.Payload == nil {
		return ErrUnknownPayload
	}
	if len(p.Header.Hops) > 0xffff || p.Header.HopIndex < 0 || p.Header.HopIndex > 0xffff {
		return fmt.Errorf("routing header out of range: %s", p.Header)
	}
	switch v := p.Payload.(type) {
	case FloodRequest:
		if len(v.PathTrace) > 0xffff {
			return fmt.Errorf("path trace of %d entries out of range", len(v.PathTrace))
		}
	case FloodResponse:
		if len(v.PathTrace) > 0xffff {
			return fmt.Errorf("path trace of %d entries out of range", len(v.PathTrace))
		}
	}
	size := 1 + 8 + 2 + 2 + len(p.Header.Hops) + payloadLen(p.Payload)
	bytes, err := b.PrependBytes(size)
	if err != nil {
		return err
	}
	w := writer{buf: bytes}
	w.u8(uint8(p.Payload.Kind()))
	w.u64(p.SessionId)
	w.u16(uint16(p.Header.HopIndex))
	w.u16(uint16(len(p.Header.Hops)))
	w.bytes(p.Header.Hops)

	switch v := p.Payload.(type) {
	case Fragment:
		w.u64(v.Index)
		w.u64(v.Total)
		w.u32(uint32(len(v.Data)))
		w.bytes(v.Data)
	case Ack:
		w.u64(v.FragmentIndex)
	case Nack:
		w.u64(v.FragmentIndex)
		w.u8(uint8(v.Reason.Type))
		w.u8(v.Reason.Node)
	case FloodRequest:
		w.u64(v.FloodId)
		w.u8(v.InitiatorId)
		w.trace(v.PathTrace)
	case FloodResponse:
		w.u64(v.FloodId)
		w.trace(v.PathTrace)
	default:
		return ErrUnknownPayload
	}
	return nil
}

func payloadLen(p Payload) int {
	switch v := p.(type) {
	case Fragment:
		return 8 + 8 + 4 + len(v.Data)
	case Ack:
		return 8
	case Nack:
		return 8 + 1 + 1
	case FloodRequest:
		return 8 + 1 + 2 + 2*len(v.PathTrace)
	case FloodResponse:
		return 8 + 2 + 2*len(v.PathTrace)
	}
	return 0
}

func (l *Layer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	r := reader{buf: data}
	kind := PayloadKind(r.u8())
	session := r.u64()
	hopIndex := int(r.u16())
	hops := r.bytes(int(r.u16()))

	var payload Payload
	switch kind {
	case KindFragment:
		f := Fragment{Index: r.u64(), Total: r.u64()}
		f.Data = r.bytes(int(r.u32()))
		payload = f
	case KindAck:
		payload = Ack{FragmentIndex: r.u64()}
	case KindNack:
		n := Nack{FragmentIndex: r.u64()}
		n.Reason.Type = NackType(r.u8())
		n.Reason.Node = r.u8()
		payload = n
	case KindFloodRequest:
		req := FloodRequest{FloodId: r.u64(), InitiatorId: r.u8()}
		req.PathTrace = r.trace()
		payload = req
	case KindFloodResponse:
		res := FloodResponse{FloodId: r.u64()}
		res.PathTrace = r.trace()
		payload = res
	default:
		if r.err != nil {
			return r.err
		}
		return fmt.Errorf("%w: %d", ErrUnknownPayload, kind)
	}
	if r.err != nil {
		return r.err
	}

	l.Packet = Packet{
		Header:    RoutingHeader{HopIndex: hopIndex, Hops: hops},
		SessionId: session,
		Payload:   payload,
	}
	l.Contents = data[:r.off]
	l.Payload = data[r.off:]
	return nil
}

func decodeDrone(data []byte, p gopacket.PacketBuilder) error {
	l := &Layer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}

func Marshal(p Packet) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, &Layer{Packet: p}); err != nil {
		return nil, fmt.Errorf("serialize %s: %w", p.Kind(), err)
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (Packet, error) {
	decoded := gopacket.NewPacket(data, LayerTypeDrone, gopacket.Default)
	if errLayer := decoded.ErrorLayer(); errLayer != nil {
		return Packet{}, errLayer.Error()
	}
	l, ok := decoded.Layer(LayerTypeDrone).(*Layer)
	if !ok {
		return Packet{}, ErrTruncated
	}
	return l.Packet, nil
}

type writer struct {
	buf []byte
	off int
}

func (w *writer) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *writer) u16(v uint16) {
	binary.BigEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) u32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *writer) u64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *writer) bytes(v []byte) {
	w.off += copy(w.buf[w.off:], v)
}

func (w *writer) trace(t []TraceEntry) {
	w.u16(uint16(len(t)))
	for _, e := range t {
		w.u8(e.Id)
		w.u8(uint8(e.Kind))
	}
}

// reader records the first short read in err and returns zero values from
// then on, so decoding can check once at the end.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *reader) trace() []TraceEntry {
	n := int(r.u16())
	if r.err != nil || n == 0 {
		return nil
	}
	trace := make([]TraceEntry, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		trace = append(trace, TraceEntry{Id: r.u8(), Kind: NodeKind(r.u8())})
	}
	return trace
}

package controller

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aditiharini/drone-simulator/packet"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CaptureLinkType is DLT_USER0. Each record is the event type, the reporting
// node and the packet in its wire format.
const CaptureLinkType = layers.LinkType(147)

const captureSnapLen = 65536

type Capture struct {
	mutex  sync.Mutex
	writer *pcapgo.Writer
	now    func() time.Time
}

func NewCapture(w io.Writer) (*Capture, error) {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(captureSnapLen, CaptureLinkType); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Capture{writer: writer, now: time.Now}, nil
}

func (c *Capture) Write(e Event) error {
	data, err := packet.Marshal(e.Packet)
	if err != nil {
		return err
	}
	record := append([]byte{uint8(e.Type), e.Node}, data...)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     c.now(),
		CaptureLength: len(record),
		Length:        len(record),
	}, record)
}

type Record struct {
	Time  time.Time
	Event Event
}

// ReadCapture decodes every record of a capture written by Capture.
func ReadCapture(r io.Reader) ([]Record, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	if reader.LinkType() != CaptureLinkType {
		return nil, fmt.Errorf("unexpected link type %v", reader.LinkType())
	}

	var records []Record
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return records, nil
		} else if err != nil {
			return records, fmt.Errorf("read record %d: %w", len(records), err)
		}
		if len(data) < 2 {
			return records, fmt.Errorf("record %d: %w", len(records), packet.ErrTruncated)
		}
		p, err := packet.Unmarshal(data[2:])
		if err != nil {
			return records, fmt.Errorf("record %d: %w", len(records), err)
		}
		records = append(records, Record{
			Time: ci.Timestamp,
			Event: Event{
				Type:   EventType(data[0]),
				Node:   data[1],
				Packet: p,
			},
		})
	}
}

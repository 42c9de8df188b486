// Package scenario reads and runs scripts that drive a network from its
// endpoints. A script has one logfmt record per line:
//
//	op=send route=0,1,2,3 session=1 index=0 total=1 data=hello
//	op=pdr node=2 rate=1
//	op=expect node=0 kind=nack nack=Dropped timeout=1s
//
// Blank lines and lines starting with # are ignored.
package scenario

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kr/logfmt"

	config "github.com/aditiharini/drone-simulator/config/simulator"
	"github.com/aditiharini/drone-simulator/packet"
)

const DefaultTimeout = time.Second

var (
	ErrSyntax      = errors.New("scenario syntax error")
	ErrExpectation = errors.New("expectation failed")
)

type Op string

const (
	OpSend       Op = "send"
	OpFlood      Op = "flood"
	OpPdr        Op = "pdr"
	OpConnect    Op = "connect"
	OpDisconnect Op = "disconnect"
	OpCrash      Op = "crash"
	OpWait       Op = "wait"
	OpExpect     Op = "expect"
)

// Step is one parsed line. Only the fields used by Op are set.
type Step struct {
	Line int
	Op   Op

	// send
	From  packet.NodeId
	Route []packet.NodeId
	Index uint64
	Total uint64
	Data  []byte

	// send and flood
	Session uint64
	FloodId uint64

	// pdr, crash and expect
	Node packet.NodeId
	Rate float64

	// connect and disconnect
	A, B packet.NodeId

	// wait
	For time.Duration

	// expect
	Count   int
	Kind    string
	Nack    string
	Timeout time.Duration
}

// stepHandler collects the fields of one record. It remembers which keys
// were present so that required ones can be checked once the line is done.
type stepHandler struct {
	step Step
	seen map[string]bool
}

func (h *stepHandler) HandleLogfmt(key, val []byte) error {
	k, v := string(key), string(val)
	if h.seen[k] {
		return fmt.Errorf("duplicate key %q", k)
	}
	h.seen[k] = true

	var err error
	s := &h.step
	switch k {
	case "op":
		s.Op = Op(v)
	case "from":
		s.From, err = parseId(v)
	case "route":
		s.Route, err = parseRoute(v)
	case "index":
		s.Index, err = strconv.ParseUint(v, 10, 64)
	case "total":
		s.Total, err = strconv.ParseUint(v, 10, 64)
	case "data":
		s.Data = []byte(v)
	case "session":
		s.Session, err = strconv.ParseUint(v, 10, 64)
	case "flood":
		s.FloodId, err = strconv.ParseUint(v, 10, 64)
	case "node":
		s.Node, err = parseId(v)
	case "rate":
		s.Rate, err = strconv.ParseFloat(v, 64)
	case "a":
		s.A, err = parseId(v)
	case "b":
		s.B, err = parseId(v)
	case "for":
		s.For, err = time.ParseDuration(v)
	case "count":
		s.Count, err = strconv.Atoi(v)
	case "kind":
		s.Kind = v
	case "nack":
		s.Nack = v
	case "timeout":
		s.Timeout, err = time.ParseDuration(v)
	default:
		return fmt.Errorf("unknown key %q", k)
	}
	if err != nil {
		return fmt.Errorf("bad %s: %w", k, err)
	}
	return nil
}

func parseId(v string) (packet.NodeId, error) {
	id, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, err
	}
	return packet.NodeId(id), nil
}

func parseRoute(v string) ([]packet.NodeId, error) {
	parts := strings.Split(v, ",")
	route := make([]packet.NodeId, 0, len(parts))
	for _, part := range parts {
		id, err := parseId(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		route = append(route, id)
	}
	return route, nil
}

// Parse reads a whole script.
func Parse(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		step, err := ParseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		step.Line = line
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return steps, nil
}

func ParseLine(text []byte) (Step, error) {
	h := &stepHandler{seen: make(map[string]bool)}
	if err := logfmt.Unmarshal(text, h); err != nil {
		return Step{}, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if err := h.check(); err != nil {
		return Step{}, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return h.step, nil
}

// check validates required keys and fills in defaults.
func (h *stepHandler) check() error {
	s := &h.step
	require := func(keys ...string) error {
		for _, k := range keys {
			if !h.seen[k] {
				return fmt.Errorf("op=%s needs %s", s.Op, k)
			}
		}
		return nil
	}

	switch s.Op {
	case OpSend:
		if err := require("route"); err != nil {
			return err
		}
		if len(s.Route) < 2 {
			return fmt.Errorf("route %v is too short", s.Route)
		}
		if !h.seen["from"] {
			s.From = s.Route[0]
		} else if s.From != s.Route[0] {
			return fmt.Errorf("route %v does not start at %d", s.Route, s.From)
		}
		if !h.seen["total"] {
			s.Total = 1
		}
		if s.Index >= s.Total {
			return fmt.Errorf("fragment index %d is not below total %d", s.Index, s.Total)
		}
	case OpFlood:
		return require("from")
	case OpPdr:
		if err := require("node", "rate"); err != nil {
			return err
		}
		if s.Rate < 0 || s.Rate > 1 {
			return fmt.Errorf("rate %v outside [0, 1]", s.Rate)
		}
	case OpConnect, OpDisconnect:
		return require("a", "b")
	case OpCrash:
		return require("node")
	case OpWait:
		return require("for")
	case OpExpect:
		if err := require("node"); err != nil {
			return err
		}
		if !h.seen["count"] {
			s.Count = 1
		}
		if s.Count < 0 {
			return fmt.Errorf("negative count %d", s.Count)
		}
		if !h.seen["timeout"] {
			s.Timeout = DefaultTimeout
		}
		if s.Nack != "" && s.Kind == "" {
			s.Kind = packet.KindNack.String()
		}
	case "":
		return errors.New("missing op")
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}

func (s Step) Edge() config.Edge {
	return config.Edge{s.A, s.B}
}

// Packet builds the fragment a send step injects.
func (s Step) Packet() packet.Packet {
	route := append([]packet.NodeId(nil), s.Route...)
	return packet.NewFragment(packet.WithSecondHop(route), s.Session, packet.Fragment{
		Index: s.Index,
		Total: s.Total,
		Data:  append([]byte(nil), s.Data...),
	})
}

// Matches reports whether p satisfies the kind and nack filters of an
// expect step.
func (s Step) Matches(p packet.Packet) bool {
	if s.Kind != "" && p.Kind().String() != s.Kind {
		return false
	}
	if s.Nack != "" {
		n, ok := p.Payload.(packet.Nack)
		if !ok || n.Reason.String() != s.Nack {
			return false
		}
	}
	return true
}

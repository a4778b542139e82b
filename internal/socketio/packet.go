package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// Socket.IO v5 packet types.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
	sioBinaryEvent  = '5'
	sioBinaryAck    = '6'
)

var errEmptyPacket = errors.New("empty packet")

// packet is a decoded Socket.IO packet.
type packet struct {
	Type      byte
	Namespace string
	ID        *int
	Data      json.RawMessage
}

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// Event is an inbound Socket.IO event.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Arg returns the i-th argument, or nil when absent.
func (e Event) Arg(i int) json.RawMessage {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

func decodePacket(s string) (packet, error) {
	if s == "" {
		return packet{}, errEmptyPacket
	}

	p := packet{Type: s[0], Namespace: "/"}
	rest := s[1:]

	// Binary packets carry an attachment count: "51-...".
	if p.Type == sioBinaryEvent || p.Type == sioBinaryAck {
		if idx := strings.IndexByte(rest, '-'); idx >= 0 {
			rest = rest[idx+1:]
		}
	}

	if strings.HasPrefix(rest, "/") {
		idx := strings.IndexByte(rest, ',')
		if idx < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:idx]
			rest = rest[idx+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return packet{}, fmt.Errorf("invalid ack id: %w", err)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

func encodePacket(p packet) string {
	var b strings.Builder
	b.WriteByte(eioMessage)
	b.WriteByte(p.Type)
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}
	b.Write(p.Data)
	return b.String()
}

func decodeEvent(data json.RawMessage) (Event, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if len(parts) == 0 {
		return Event{}, errors.New("decoding event: missing name")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return Event{}, fmt.Errorf("decoding event name: %w", err)
	}
	return Event{Name: name, Args: parts[1:]}, nil
}

func encodeEvent(name string, args ...any) (json.RawMessage, error) {
	parts := make([]any, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)
	data, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", name, err)
	}
	return data, nil
}

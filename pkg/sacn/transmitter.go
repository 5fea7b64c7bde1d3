package sacn

import (
	"fmt"
	"net"
)

// Transmitter sends sACN data packets for a fixed set of universes to
// their multicast groups, tracking a per-universe sequence counter.
type Transmitter struct {
	conn       *net.UDPConn
	cid        [16]byte
	sourceName string
	priority   byte
	sequences  map[uint16]byte
}

// NewTransmitter opens a UDP socket for outbound sACN traffic.
func NewTransmitter(cid [16]byte, sourceName string) (*Transmitter, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("sacn: listen failed: %w", err)
	}
	return &Transmitter{
		conn:       conn,
		cid:        cid,
		sourceName: sourceName,
		priority:   100,
		sequences:  make(map[uint16]byte),
	}, nil
}

// SetPriority sets the priority byte used for every subsequently sent packet.
func (t *Transmitter) SetPriority(p byte) { t.priority = p }

// Close releases the underlying socket.
func (t *Transmitter) Close() error { return t.conn.Close() }

// MulticastAddr returns the E1.31-defined multicast group for a universe.
func MulticastAddr(universe uint16) *net.UDPAddr {
	hi := byte(universe >> 8)
	lo := byte(universe & 0xFF)
	ip := net.IPv4(239, 255, hi, lo)
	return &net.UDPAddr{IP: ip, Port: Port}
}

// Send serializes channels into an sACN packet for universe and transmits it
// to the universe's multicast group, incrementing the sequence counter.
func (t *Transmitter) Send(universe uint16, channels []byte) error {
	seq := t.sequences[universe]
	p := NewPacket(t.cid, t.sourceName, universe)
	p.Priority = t.priority
	p.Sequence = seq
	p.SetDMX(channels)

	_, err := t.conn.WriteToUDP(p.Bytes(), MulticastAddr(universe))
	t.sequences[universe] = seq + 1
	if err != nil {
		return fmt.Errorf("sacn: send failed for universe %d: %w", universe, err)
	}
	return nil
}

// SendTerminate sends a final stream-terminated packet for a universe,
// signalling receivers that this source is no longer sourcing the universe.
func (t *Transmitter) SendTerminate(universe uint16) error {
	seq := t.sequences[universe]
	p := NewPacket(t.cid, t.sourceName, universe)
	p.Sequence = seq
	p.StreamTerminated = true
	_, err := t.conn.WriteToUDP(p.Bytes(), MulticastAddr(universe))
	return err
}

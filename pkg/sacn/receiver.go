package sacn

import (
	"fmt"
	"net"
	"time"
)

// sequenceTolerance is how far a sequence number may jump backward (mod 256)
// before a packet is treated as stale rather than a benign out-of-order
// delivery or wraparound.
const sequenceTolerance = 20

// Receiver listens on the sACN multicast groups for a fixed set of
// universes and delivers validated packets. One UDP socket per universe is
// opened via net.ListenMulticastUDP, which handles IGMP group membership.
type Receiver struct {
	conns   []*net.UDPConn
	packets chan *Packet
	errors  chan error
	done    chan struct{}
	lastSeq map[uint16]byte
	haveSeq map[uint16]bool
	running bool
}

// NewReceiver joins the multicast groups for the given universes.
func NewReceiver(universes []uint16) (*Receiver, error) {
	r := &Receiver{
		packets: make(chan *Packet, 64),
		errors:  make(chan error, 16),
		done:    make(chan struct{}),
		lastSeq: make(map[uint16]byte),
		haveSeq: make(map[uint16]bool),
	}
	for _, u := range universes {
		conn, err := net.ListenMulticastUDP("udp4", nil, MulticastAddr(u))
		if err != nil {
			for _, c := range r.conns {
				_ = c.Close()
			}
			return nil, fmt.Errorf("sacn: join group for universe %d failed: %w", u, err)
		}
		r.conns = append(r.conns, conn)
	}
	return r, nil
}

// Packets returns the channel of accepted, in-sequence packets.
func (r *Receiver) Packets() <-chan *Packet { return r.packets }

// Errors returns the channel of parse/read/sequence errors.
func (r *Receiver) Errors() <-chan error { return r.errors }

// Start begins one receive loop per joined universe.
func (r *Receiver) Start() {
	r.running = true
	for _, conn := range r.conns {
		go r.receiveLoop(conn)
	}
}

// Stop closes every socket, ending all receive loops.
func (r *Receiver) Stop() error {
	if !r.running {
		return nil
	}
	r.running = false
	close(r.done)
	var firstErr error
	for _, c := range r.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Receiver) receiveLoop(conn *net.UDPConn) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-r.done:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case r.errors <- err:
			default:
			}
			continue
		}

		pkt, perr := ParsePacket(buf[:n])
		if perr != nil {
			select {
			case r.errors <- perr:
			default:
			}
			continue
		}

		if !r.acceptSequence(pkt.Universe, pkt.Sequence) {
			select {
			case r.errors <- fmt.Errorf("sacn: stale sequence %d for universe %d", pkt.Sequence, pkt.Universe):
			default:
			}
			continue
		}

		select {
		case r.packets <- pkt:
		default:
		}
	}
}

// acceptSequence is the per-universe sequence-number check: a packet is
// rejected only when its sequence is more than sequenceTolerance behind the
// last accepted one (signed mod-256 difference); anything newer, equal, or
// at most sequenceTolerance behind is accepted and becomes the new
// reference.
func (r *Receiver) acceptSequence(universe uint16, seq byte) bool {
	if !r.haveSeq[universe] {
		r.haveSeq[universe] = true
		r.lastSeq[universe] = seq
		return true
	}
	diff := int8(seq - r.lastSeq[universe])
	if diff <= 0 && -diff > sequenceTolerance {
		return false
	}
	r.lastSeq[universe] = seq
	return true
}

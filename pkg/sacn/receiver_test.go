package sacn

import "testing"

func TestAcceptSequence_FirstPacketAlwaysAccepted(t *testing.T) {
	r := &Receiver{lastSeq: make(map[uint16]byte), haveSeq: make(map[uint16]bool)}
	if !r.acceptSequence(1, 200) {
		t.Fatal("expected the first packet seen for a universe to be accepted")
	}
}

func TestAcceptSequence_MonotonicIncrease(t *testing.T) {
	r := &Receiver{lastSeq: make(map[uint16]byte), haveSeq: make(map[uint16]bool)}
	r.acceptSequence(1, 10)
	if !r.acceptSequence(1, 11) {
		t.Fatal("expected the next sequence number to be accepted")
	}
}

func TestAcceptSequence_WrapsAround(t *testing.T) {
	r := &Receiver{lastSeq: make(map[uint16]byte), haveSeq: make(map[uint16]bool)}
	r.acceptSequence(1, 254)
	if !r.acceptSequence(1, 255) {
		t.Fatal("expected sequence 255 after 254 to be accepted")
	}
	if !r.acceptSequence(1, 0) {
		t.Fatal("expected sequence 0 to be accepted as a wraparound from 255")
	}
}

func TestAcceptSequence_RejectsStalePacket(t *testing.T) {
	r := &Receiver{lastSeq: make(map[uint16]byte), haveSeq: make(map[uint16]bool)}
	r.acceptSequence(1, 100)
	if r.acceptSequence(1, 50) {
		t.Fatal("expected a sequence far behind the last seen one to be rejected as stale")
	}
}

func TestAcceptSequence_ToleratesSmallReorder(t *testing.T) {
	r := &Receiver{lastSeq: make(map[uint16]byte), haveSeq: make(map[uint16]bool)}
	r.acceptSequence(1, 100)
	// A packet arriving slightly out of order, within tolerance, is still
	// accepted (not flagged stale) even though it doesn't advance lastSeq
	// forward of the most recent value.
	if !r.acceptSequence(1, 99) {
		t.Fatal("expected a packet one behind the last seen sequence to be accepted")
	}
}

func TestAcceptSequence_TracksUniversesIndependently(t *testing.T) {
	r := &Receiver{lastSeq: make(map[uint16]byte), haveSeq: make(map[uint16]bool)}
	r.acceptSequence(1, 200)
	if !r.acceptSequence(2, 0) {
		t.Fatal("a different universe's sequence tracking should be independent")
	}
}

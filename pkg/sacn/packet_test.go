package sacn

import "testing"

func TestPacket_BytesRoundTripsThroughParsePacket(t *testing.T) {
	cid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	p := NewPacket(cid, "test-source", 5)
	p.Sequence = 42
	channels := make([]byte, 512)
	channels[0] = 255
	channels[511] = 1
	p.SetDMX(channels)

	got, err := ParsePacket(p.Bytes())
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got.CID != cid {
		t.Errorf("CID = %v, want %v", got.CID, cid)
	}
	if got.SourceName != "test-source" {
		t.Errorf("SourceName = %q, want %q", got.SourceName, "test-source")
	}
	if got.Priority != 100 {
		t.Errorf("Priority = %d, want 100", got.Priority)
	}
	if got.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", got.Sequence)
	}
	if got.Universe != 5 {
		t.Errorf("Universe = %d, want 5", got.Universe)
	}
	if got.Data[0] != 0 {
		t.Errorf("Data[0] (start code) = %d, want 0", got.Data[0])
	}
	if got.Data[1] != 255 || got.Data[512] != 1 {
		t.Errorf("Data[1]=%d Data[512]=%d, want 255 and 1", got.Data[1], got.Data[512])
	}
}

func TestPacket_StreamTerminatedFlagRoundTrips(t *testing.T) {
	p := NewPacket([16]byte{}, "src", 1)
	p.StreamTerminated = true

	got, err := ParsePacket(p.Bytes())
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if !got.StreamTerminated {
		t.Fatal("expected StreamTerminated to round-trip as true")
	}
}

func TestParsePacket_TooShort(t *testing.T) {
	if _, err := ParsePacket(make([]byte, 50)); err == nil {
		t.Fatal("expected an error for a packet shorter than the minimum header")
	}
}

func TestParsePacket_BadIdentifier(t *testing.T) {
	p := NewPacket([16]byte{}, "src", 1)
	buf := p.Bytes()
	buf[4] = 'X'
	if _, err := ParsePacket(buf); err == nil {
		t.Fatal("expected an error for a bad ACN packet identifier")
	}
}

func TestSetDMX_TruncatesOversizedInput(t *testing.T) {
	p := NewPacket([16]byte{}, "src", 1)
	oversized := make([]byte, 600)
	oversized[599] = 9
	p.SetDMX(oversized)
	if p.Data[512] != 0 {
		t.Fatalf("Data[512] = %d, want 0 (input beyond 512 channels should be ignored)", p.Data[512])
	}
}
